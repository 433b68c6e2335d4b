// Package expense defines split records: an amount paid by one user and
// its per-participant breakdown.
package expense

import (
	"errors"
	"fmt"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

var (
	ErrMissingPayer         = errors.New("expense: payer is required")
	ErrNonPositiveAmount    = errors.New("expense: amount must be positive")
	ErrNoParticipants       = errors.New("expense: at least one participant is required")
	ErrDuplicateParticipant = errors.New("expense: participant listed more than once")
	ErrNegativeShare        = errors.New("expense: owed amount must not be negative")
	ErrMixedCurrency        = errors.New("expense: split currency differs from expense currency")
	ErrInvalidCurrency      = errors.New("expense: invalid currency")
)

// Split is one participant's share of an expense.
type Split struct {
	UserID string      `json:"user_id"`
	Owed   types.Money `json:"owed"`
}

type Expense struct {
	types.Entity
	ID          id.ExpenseID      `json:"id"`
	GroupID     id.GroupID        `json:"group_id,omitempty"`
	PayerID     string            `json:"payer_id"`
	Amount      types.Money       `json:"amount"`
	Description string            `json:"description,omitempty"`
	Splits      []Split           `json:"splits"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Version     int64             `json:"version"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ConservationError reports a split whose shares do not add up to the
// expense amount.
type ConservationError struct {
	ExpenseID string
	Amount    types.Money
	Sum       types.Money
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("expense %s: shares sum to %s, amount is %s", e.ExpenseID, e.Sum, e.Amount)
}

// Validate checks the record is well formed and that its shares conserve
// the amount exactly.
func (e *Expense) Validate() error {
	if e.PayerID == "" {
		return ErrMissingPayer
	}
	if !types.ValidCurrency(e.Amount.Currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, e.Amount.Currency)
	}
	if !e.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if len(e.Splits) == 0 {
		return ErrNoParticipants
	}

	seen := make(map[string]bool, len(e.Splits))
	owed := make([]types.Money, 0, len(e.Splits))
	for _, s := range e.Splits {
		if s.UserID == "" {
			return fmt.Errorf("expense: split with empty user")
		}
		if seen[s.UserID] {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, s.UserID)
		}
		seen[s.UserID] = true
		if s.Owed.Currency != e.Amount.Currency {
			return fmt.Errorf("%w: %s owes %s", ErrMixedCurrency, s.UserID, s.Owed.Currency)
		}
		if s.Owed.IsNegative() {
			return fmt.Errorf("%w: %s", ErrNegativeShare, s.UserID)
		}
		owed = append(owed, s.Owed)
	}

	sum, err := types.Sum(e.Amount.Currency, owed...)
	if err != nil {
		return err
	}
	if !sum.Equal(e.Amount) {
		return &ConservationError{ExpenseID: e.ID.String(), Amount: e.Amount, Sum: sum}
	}
	return nil
}

// Involved returns the payer followed by every participant, without
// duplicates, in record order.
func (e *Expense) Involved() []string {
	out := make([]string, 0, len(e.Splits)+1)
	seen := make(map[string]bool, len(e.Splits)+1)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	add(e.PayerID)
	for _, s := range e.Splits {
		add(s.UserID)
	}
	return out
}

// Share returns what userID owes on this expense.
func (e *Expense) Share(userID string) (types.Money, bool) {
	for _, s := range e.Splits {
		if s.UserID == userID {
			return s.Owed, true
		}
	}
	return types.Zero(e.Amount.Currency), false
}

// Involves reports whether userID paid for or shares this expense.
func (e *Expense) Involves(userID string) bool {
	if e.PayerID == userID {
		return true
	}
	_, ok := e.Share(userID)
	return ok
}
