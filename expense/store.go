package expense

import (
	"context"

	"github.com/xraph/splitledger/id"
)

// Store is the expense half of the split record store. Every single-record
// write must be atomic.
type Store interface {
	CreateExpense(ctx context.Context, e *Expense) error
	GetExpense(ctx context.Context, expenseID id.ExpenseID) (*Expense, error)
	// UpdateExpense replaces the record if its stored version equals
	// expectedVersion, and bumps the version.
	UpdateExpense(ctx context.Context, e *Expense, expectedVersion int64) error
	DeleteExpense(ctx context.Context, expenseID id.ExpenseID) error
	ListExpenses(ctx context.Context, f Filter) ([]*Expense, error)
}

// Filter selects expenses. Involving requires every listed user to be the
// payer or a participant. A Nil GroupID does not filter by group.
type Filter struct {
	Involving []string
	GroupID   id.GroupID
	Limit     int
	Offset    int
}

// Matches applies the filter to a single record. Backends that cannot push
// a predicate down use it to post-filter.
func (f Filter) Matches(e *Expense) bool {
	if !f.GroupID.IsNil() && e.GroupID.String() != f.GroupID.String() {
		return false
	}
	for _, u := range f.Involving {
		if !e.Involves(u) {
			return false
		}
	}
	return true
}
