package expense_test

import (
	"errors"
	"testing"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

func dinner() *expense.Expense {
	return &expense.Expense{
		ID:      id.NewExpenseID(),
		PayerID: "alice",
		Amount:  types.USD(3000),
		Splits: []expense.Split{
			{UserID: "alice", Owed: types.USD(1500)},
			{UserID: "bob", Owed: types.USD(1500)},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *expense.Expense)
		want   error
	}{
		{"valid", func(*expense.Expense) {}, nil},
		{"missing payer", func(e *expense.Expense) { e.PayerID = "" }, expense.ErrMissingPayer},
		{"zero amount", func(e *expense.Expense) { e.Amount = types.USD(0) }, expense.ErrNonPositiveAmount},
		{"bad currency", func(e *expense.Expense) { e.Amount.Currency = "dollars" }, expense.ErrInvalidCurrency},
		{"no participants", func(e *expense.Expense) { e.Splits = nil }, expense.ErrNoParticipants},
		{"duplicate", func(e *expense.Expense) { e.Splits[1].UserID = "alice" }, expense.ErrDuplicateParticipant},
		{"mixed currency", func(e *expense.Expense) { e.Splits[1].Owed = types.EUR(1500) }, expense.ErrMixedCurrency},
		{"negative share", func(e *expense.Expense) {
			e.Splits[0].Owed = types.USD(3100)
			e.Splits[1].Owed = types.USD(-100)
		}, expense.ErrNegativeShare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := dinner()
			tt.mutate(e)
			err := e.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateConservation(t *testing.T) {
	e := dinner()
	e.Splits[1].Owed = types.USD(1499)

	var cerr *expense.ConservationError
	if !errors.As(e.Validate(), &cerr) {
		t.Fatal("expected ConservationError")
	}
	if cerr.ExpenseID != e.ID.String() || cerr.Sum.Amount != 2999 {
		t.Errorf("unexpected detail: %+v", cerr)
	}
}

func TestInvolved(t *testing.T) {
	e := &expense.Expense{
		PayerID: "carol",
		Splits: []expense.Split{
			{UserID: "alice"}, {UserID: "carol"}, {UserID: "bob"},
		},
	}
	got := e.Involved()
	want := []string{"carol", "alice", "bob"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if !e.Involves("carol") || !e.Involves("bob") || e.Involves("dave") {
		t.Error("Involves disagrees with Involved")
	}
}

func TestFilterMatches(t *testing.T) {
	g := id.NewGroupID()
	e := dinner()
	e.GroupID = g

	tests := []struct {
		name string
		f    expense.Filter
		want bool
	}{
		{"empty", expense.Filter{}, true},
		{"pair", expense.Filter{Involving: []string{"alice", "bob"}}, true},
		{"stranger", expense.Filter{Involving: []string{"alice", "carol"}}, false},
		{"group", expense.Filter{GroupID: g}, true},
		{"other group", expense.Filter{GroupID: id.NewGroupID()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(e); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
