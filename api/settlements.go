package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
)

type settlementRequest struct {
	GroupID   string `json:"group_id"`
	PayerID   string `json:"payer_id" binding:"required"`
	PayeeID   string `json:"payee_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Currency  string `json:"currency"`
	Note      string `json:"note"`
	CreatedBy string `json:"created_by"`
}

type reverseRequest struct {
	Note      string `json:"note"`
	CreatedBy string `json:"created_by"`
}

func (h *Handler) recordSettlement(c *gin.Context) {
	var req settlementRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	groupID, err := optionalID("group_id", req.GroupID, id.PrefixGroup)
	if err != nil {
		_ = c.Error(err)
		return
	}
	fallback := ""
	if req.Currency == "" {
		payer, err := h.ledger.GetUser(ctx, req.PayerID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		fallback = payer.DefaultCurrency
	}
	amount, err := money(req.Amount, req.Currency, fallback)
	if err != nil {
		_ = c.Error(err)
		return
	}

	s := &settlement.Settlement{
		GroupID:   groupID,
		PayerID:   req.PayerID,
		PayeeID:   req.PayeeID,
		Amount:    amount,
		Note:      req.Note,
		CreatedBy: req.CreatedBy,
	}
	receipt, err := h.ledger.RecordSettlement(ctx, s)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"settlement": s, "receipt": receipt})
}

func (h *Handler) getSettlement(c *gin.Context) {
	settlementID, ok := pathID(c, "settlementID", id.PrefixSettlement)
	if !ok {
		return
	}

	s, err := h.ledger.GetSettlement(c.Request.Context(), settlementID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// reverseSettlement records the compensating settlement.
func (h *Handler) reverseSettlement(c *gin.Context) {
	settlementID, ok := pathID(c, "settlementID", id.PrefixSettlement)
	if !ok {
		return
	}
	var req reverseRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	rev, receipt, err := h.ledger.ReverseSettlement(c.Request.Context(), settlementID, req.Note, req.CreatedBy)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"settlement": rev, "receipt": receipt})
}

func (h *Handler) listSettlements(c *gin.Context) {
	p, err := pagination(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	groupID, err := optionalID("group_id", c.Query("group_id"), id.PrefixGroup)
	if err != nil {
		_ = c.Error(err)
		return
	}

	settlements, err := h.ledger.ListSettlements(c.Request.Context(), settlement.Filter{
		Involving: c.QueryArray("involving"),
		GroupID:   groupID,
		Limit:     p.Limit,
		Offset:    p.Offset,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settlements": settlements})
}
