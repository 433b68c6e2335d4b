package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xraph/splitledger"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body written for failed requests.
type ErrorResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// RequestID reuses an inbound X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, kind := classify(err)

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"request_id", c.GetString(RequestIDKey),
			"error", err,
		}
		if status >= http.StatusInternalServerError {
			logger.Error("api: request failed", attrs...)
		} else {
			logger.Debug("api: request rejected", attrs...)
		}

		c.AbortWithStatusJSON(status, ErrorResponse{
			Type:      kind,
			Message:   err.Error(),
			RequestID: c.GetString(RequestIDKey),
		})
	}
}

// classify maps ledger errors onto HTTP statuses.
func classify(err error) (int, string) {
	var (
		stateErr *splitledger.InvalidStateError
		reqErr   *requestError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "bad_request"
	case splitledger.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &stateErr):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, splitledger.ErrAlreadyReversed),
		errors.Is(err, splitledger.ErrMemberHasBalance),
		splitledger.IsConflict(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, splitledger.ErrNotGroupMember):
		return http.StatusUnprocessableEntity, "not_group_member"
	case errors.Is(err, splitledger.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "invalid_input"
	case splitledger.IsRetryable(err):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// requestError is a malformed request caught before reaching the ledger.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }
