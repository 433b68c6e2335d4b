// Package settlement defines direct payments between two users. Settlements
// are immutable; a correction is a new compensating settlement.
package settlement

import (
	"errors"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

var (
	ErrMissingParty      = errors.New("settlement: payer and payee are required")
	ErrSelfSettlement    = errors.New("settlement: payer and payee must differ")
	ErrNonPositiveAmount = errors.New("settlement: amount must be positive")
	ErrInvalidCurrency   = errors.New("settlement: invalid currency")
)

type Settlement struct {
	ID        id.SettlementID `json:"id"`
	GroupID   id.GroupID      `json:"group_id,omitempty"`
	PayerID   string          `json:"payer_id"`
	PayeeID   string          `json:"payee_id"`
	Amount    types.Money     `json:"amount"`
	Note      string          `json:"note,omitempty"`
	CreatedBy string          `json:"created_by,omitempty"`
	Reverses  id.SettlementID `json:"reverses,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Settlement) Validate() error {
	if s.PayerID == "" || s.PayeeID == "" {
		return ErrMissingParty
	}
	if s.PayerID == s.PayeeID {
		return ErrSelfSettlement
	}
	if !types.ValidCurrency(s.Amount.Currency) {
		return ErrInvalidCurrency
	}
	if !s.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// Involves reports whether userID is either party.
func (s *Settlement) Involves(userID string) bool {
	return s.PayerID == userID || s.PayeeID == userID
}

// Compensation builds the settlement that cancels s: same amount and
// group, parties swapped.
func (s *Settlement) Compensation(note, createdBy string) *Settlement {
	return &Settlement{
		GroupID:   s.GroupID,
		PayerID:   s.PayeeID,
		PayeeID:   s.PayerID,
		Amount:    s.Amount,
		Note:      note,
		CreatedBy: createdBy,
		Reverses:  s.ID,
	}
}
