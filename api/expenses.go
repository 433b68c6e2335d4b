package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/split"
)

// expenseRequest creates or replaces an expense. Shares come either as
// explicit major-unit amounts in Splits or as a Split rule applied to the
// amount. Currency defaults to the payer's unit of account.
type expenseRequest struct {
	GroupID     string            `json:"group_id"`
	PayerID     string            `json:"payer_id" binding:"required"`
	Amount      string            `json:"amount" binding:"required"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	CreatedBy   string            `json:"created_by"`
	Splits      []shareRequest    `json:"splits"`
	Split       *split.Rule       `json:"split"`
	Metadata    map[string]string `json:"metadata"`

	// Version is the version being replaced; updates only.
	Version int64 `json:"version"`
}

type shareRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Owed   string `json:"owed" binding:"required"`
}

// toExpense builds the record. When a split rule is given Splits is left
// empty for the ledger to fill.
func (h *Handler) toExpense(ctx context.Context, req *expenseRequest) (*expense.Expense, error) {
	if req.Split != nil && len(req.Splits) > 0 {
		return nil, badRequest(fmt.Errorf("give either splits or a split rule, not both"))
	}
	if req.Split == nil && len(req.Splits) == 0 {
		return nil, badRequest(fmt.Errorf("splits or a split rule is required"))
	}

	groupID, err := optionalID("group_id", req.GroupID, id.PrefixGroup)
	if err != nil {
		return nil, err
	}

	fallback := ""
	if req.Currency == "" {
		payer, err := h.ledger.GetUser(ctx, req.PayerID)
		if err != nil {
			return nil, err
		}
		fallback = payer.DefaultCurrency
	}
	amount, err := money(req.Amount, req.Currency, fallback)
	if err != nil {
		return nil, err
	}

	e := &expense.Expense{
		GroupID:     groupID,
		PayerID:     req.PayerID,
		Amount:      amount,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		Metadata:    req.Metadata,
	}
	for _, s := range req.Splits {
		owed, err := money(s.Owed, amount.Currency, "")
		if err != nil {
			return nil, err
		}
		e.Splits = append(e.Splits, expense.Split{UserID: s.UserID, Owed: owed})
	}
	return e, nil
}

func (h *Handler) addExpense(c *gin.Context) {
	var req expenseRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	e, err := h.toExpense(ctx, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var receipt *splitledger.Receipt
	if req.Split != nil {
		receipt, err = h.ledger.AddSplitExpense(ctx, e, *req.Split)
	} else {
		receipt, err = h.ledger.AddExpense(ctx, e)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"expense": e, "receipt": receipt})
}

func (h *Handler) getExpense(c *gin.Context) {
	expenseID, ok := pathID(c, "expenseID", id.PrefixExpense)
	if !ok {
		return
	}

	e, err := h.ledger.GetExpense(c.Request.Context(), expenseID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) updateExpense(c *gin.Context) {
	expenseID, ok := pathID(c, "expenseID", id.PrefixExpense)
	if !ok {
		return
	}
	var req expenseRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Version <= 0 {
		_ = c.Error(badRequest(fmt.Errorf("version is required")))
		return
	}
	ctx := c.Request.Context()

	e, err := h.toExpense(ctx, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	e.ID = expenseID
	if req.Split != nil {
		if e.Splits, err = req.Split.Apply(e.Amount); err != nil {
			_ = c.Error(badRequest(err))
			return
		}
	}

	receipt, err := h.ledger.UpdateExpense(ctx, e, req.Version)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expense": e, "receipt": receipt})
}

func (h *Handler) deleteExpense(c *gin.Context) {
	expenseID, ok := pathID(c, "expenseID", id.PrefixExpense)
	if !ok {
		return
	}

	receipt, err := h.ledger.DeleteExpense(c.Request.Context(), expenseID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

// listExpenses filters by ?involving=a&involving=b (all must be on the
// expense) and ?group_id=.
func (h *Handler) listExpenses(c *gin.Context) {
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

	expenses, err := h.ledger.ListExpenses(c.Request.Context(), expense.Filter{
		Involving: c.QueryArray("involving"),
		GroupID:   groupID,
		Limit:     p.Limit,
		Offset:    p.Offset,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}
