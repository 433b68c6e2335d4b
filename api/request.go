package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// money parses a major-unit amount, falling back to fallbackCurrency when
// currency is empty.
func money(amount, currency, fallbackCurrency string) (types.Money, error) {
	if currency == "" {
		currency = fallbackCurrency
	}
	m, err := types.ParseMajor(amount, currency)
	if err != nil {
		return types.Money{}, badRequest(fmt.Errorf("amount: %w", err))
	}
	return m, nil
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(badRequest(fmt.Errorf("invalid request body: %w", err)))
		return false
	}
	return true
}

// pathID parses a typed ID from a path parameter.
func pathID(c *gin.Context, param string, prefix id.Prefix) (id.ID, bool) {
	parsed, err := id.ParseWithPrefix(c.Param(param), prefix)
	if err != nil {
		_ = c.Error(badRequest(fmt.Errorf("%s: %w", param, err)))
		return id.Nil, false
	}
	return parsed, true
}

// optionalID parses a typed ID from a body field or query value that may
// be empty.
func optionalID(field, value string, prefix id.Prefix) (id.ID, error) {
	parsed, err := id.ParseOptional(value, prefix)
	if err != nil {
		return id.Nil, badRequest(fmt.Errorf("%s: %w", field, err))
	}
	return parsed, nil
}

type page struct {
	Limit  int
	Offset int
}

func pagination(c *gin.Context) (page, error) {
	var p page
	for _, q := range []struct {
		name string
		dst  *int
	}{
		{"limit", &p.Limit},
		{"offset", &p.Offset},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page{}, badRequest(fmt.Errorf("%s must be a non-negative integer", q.name))
		}
		*q.dst = n
	}
	return p, nil
}
