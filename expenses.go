package splitledger

import (
	"context"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/split"
	"github.com/xraph/splitledger/types"
)

// AddExpense validates and stores a new expense, then refreshes the
// balances of everyone on it. Shares must add up to the amount exactly.
func (l *Ledger) AddExpense(ctx context.Context, e *expense.Expense) (*Receipt, error) {
	if e.ID.IsNil() {
		e.ID = id.NewExpenseID()
	}
	now := l.now()
	e.Entity = types.Entity{CreatedAt: now, UpdatedAt: now}
	e.Version = 1
	normalizeExpense(e)

	unlock, err := l.lockGroups(ctx, e.GroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.checkExpense(ctx, e); err != nil {
		return nil, err
	}

	if err := l.call(ctx, "create expense", func(ctx context.Context) error {
		return l.store.CreateExpense(ctx, e)
	}); err != nil {
		return nil, err
	}

	l.plugins.EmitExpenseCreated(ctx, e)
	return l.propagate(ctx, actorOf(e.CreatedBy, e.PayerID), e.Involved()), nil
}

// AddSplitExpense fills e.Splits by applying rule to e.Amount and adds
// the expense.
func (l *Ledger) AddSplitExpense(ctx context.Context, e *expense.Expense, rule split.Rule) (*Receipt, error) {
	e.Amount.Currency = types.NormalizeCurrency(e.Amount.Currency)
	splits, err := rule.Apply(e.Amount)
	if err != nil {
		return nil, invalid(err)
	}
	e.Splits = splits
	return l.AddExpense(ctx, e)
}

// UpdateExpense replaces an expense if it is still at expectedVersion.
// Users dropped from the expense are refreshed along with the new ones.
func (l *Ledger) UpdateExpense(ctx context.Context, e *expense.Expense, expectedVersion int64) (*Receipt, error) {
	old, err := l.GetExpense(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if old.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	unlock, err := l.lockGroups(ctx, old.GroupID, e.GroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.checkStillMembers(ctx, old.GroupID, old.Involved()...); err != nil {
		return nil, err
	}

	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = l.now()
	normalizeExpense(e)
	if err := l.checkExpense(ctx, e); err != nil {
		return nil, err
	}

	if err := l.call(ctx, "update expense", func(ctx context.Context) error {
		return l.store.UpdateExpense(ctx, e, expectedVersion)
	}); err != nil {
		return nil, err
	}
	e.Version = expectedVersion + 1

	l.plugins.EmitExpenseUpdated(ctx, old, e)
	affected := append(old.Involved(), e.Involved()...)
	return l.propagate(ctx, actorOf(e.CreatedBy, e.PayerID), affected), nil
}

// DeleteExpense removes an expense and refreshes everyone it involved.
func (l *Ledger) DeleteExpense(ctx context.Context, expenseID id.ExpenseID) (*Receipt, error) {
	old, err := l.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	unlock, err := l.lockGroups(ctx, old.GroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.checkStillMembers(ctx, old.GroupID, old.Involved()...); err != nil {
		return nil, err
	}

	if err := l.call(ctx, "delete expense", func(ctx context.Context) error {
		return l.store.DeleteExpense(ctx, expenseID)
	}); err != nil {
		return nil, err
	}

	l.plugins.EmitExpenseDeleted(ctx, old)
	return l.propagate(ctx, actorOf(old.CreatedBy, old.PayerID), old.Involved()), nil
}

// GetExpense retrieves an expense by ID.
func (l *Ledger) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	return fetch(l, ctx, "get expense", func(ctx context.Context) (*expense.Expense, error) {
		return l.store.GetExpense(ctx, expenseID)
	})
}

// ListExpenses returns expenses matching f, oldest first.
func (l *Ledger) ListExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	return fetch(l, ctx, "list expenses", func(ctx context.Context) ([]*expense.Expense, error) {
		return l.store.ListExpenses(ctx, f)
	})
}

func normalizeExpense(e *expense.Expense) {
	e.Amount.Currency = types.NormalizeCurrency(e.Amount.Currency)
	for i := range e.Splits {
		e.Splits[i].Owed.Currency = types.NormalizeCurrency(e.Splits[i].Owed.Currency)
	}
}

// checkExpense runs record validation plus the checks that need the
// store: every user registered and, for group expenses, every user a
// member and the amount in the group's currency.
func (l *Ledger) checkExpense(ctx context.Context, e *expense.Expense) error {
	if err := e.Validate(); err != nil {
		return invalid(err)
	}
	if err := l.requireUsers(ctx, e.Involved()...); err != nil {
		return err
	}
	if e.GroupID.IsNil() {
		return nil
	}
	g, err := l.GetGroup(ctx, e.GroupID)
	if err != nil {
		return err
	}
	return checkGroupRecord(g, e.ID.String(), e.Amount.Currency, e.Involved()...)
}

// checkGroupRecord requires a group record to be in the group's currency
// and to involve members only.
func checkGroupRecord(g *group.Group, recordID, currency string, users ...string) error {
	if currency != g.Currency {
		return invalid(&CurrencyMismatchError{RecordID: recordID, Expected: g.Currency, Got: currency})
	}
	for _, u := range users {
		if !g.HasMember(u) {
			return ErrNotGroupMember
		}
	}
	return nil
}

func actorOf(createdBy, fallback string) string {
	if createdBy != "" {
		return createdBy
	}
	return fallback
}
