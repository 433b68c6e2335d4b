package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/user"
)

type registerUserRequest struct {
	ID              string            `json:"id" binding:"required"`
	DisplayName     string            `json:"display_name"`
	DefaultCurrency string            `json:"default_currency" binding:"required"`
	Metadata        map[string]string `json:"metadata"`
}

type currencyRequest struct {
	Currency string `json:"currency" binding:"required"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req registerUserRequest
	if !bindJSON(c, &req) {
		return
	}

	u := &user.User{
		ID:              req.ID,
		DisplayName:     req.DisplayName,
		DefaultCurrency: req.DefaultCurrency,
		Metadata:        req.Metadata,
	}
	if err := h.ledger.RegisterUser(c.Request.Context(), u); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.ledger.GetUser(c.Request.Context(), c.Param("userID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// setDefaultCurrency changes the unit of account and reports which
// snapshots were rebuilt in it.
func (h *Handler) setDefaultCurrency(c *gin.Context) {
	var req currencyRequest
	if !bindJSON(c, &req) {
		return
	}

	receipt, err := h.ledger.SetDefaultCurrency(c.Request.Context(), c.Param("userID"), req.Currency)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (h *Handler) listUserGroups(c *gin.Context) {
	p, err := pagination(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	groups, err := h.ledger.ListGroups(c.Request.Context(), c.Param("userID"), group.ListOpts{
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *Handler) refreshUser(c *gin.Context) {
	if err := h.ledger.Refresh(c.Request.Context(), c.Param("userID")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
