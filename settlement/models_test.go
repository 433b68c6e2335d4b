package settlement_test

import (
	"errors"
	"testing"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		s    settlement.Settlement
		want error
	}{
		{"valid", settlement.Settlement{PayerID: "bob", PayeeID: "alice", Amount: types.USD(1000)}, nil},
		{"missing payee", settlement.Settlement{PayerID: "bob", Amount: types.USD(1000)}, settlement.ErrMissingParty},
		{"self", settlement.Settlement{PayerID: "bob", PayeeID: "bob", Amount: types.USD(1000)}, settlement.ErrSelfSettlement},
		{"zero", settlement.Settlement{PayerID: "bob", PayeeID: "alice", Amount: types.USD(0)}, settlement.ErrNonPositiveAmount},
		{"bad currency", settlement.Settlement{PayerID: "bob", PayeeID: "alice", Amount: types.Money{Amount: 1, Currency: "$"}}, settlement.ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompensation(t *testing.T) {
	orig := &settlement.Settlement{
		ID:      id.NewSettlementID(),
		GroupID: id.NewGroupID(),
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  types.USD(1000),
	}

	c := orig.Compensation("entered twice", "alice")
	if c.PayerID != "alice" || c.PayeeID != "bob" {
		t.Errorf("parties not swapped: %s -> %s", c.PayerID, c.PayeeID)
	}
	if !c.Amount.Equal(orig.Amount) {
		t.Errorf("amount: got %v", c.Amount)
	}
	if c.Reverses.String() != orig.ID.String() {
		t.Errorf("Reverses: got %q", c.Reverses.String())
	}
	if c.GroupID.String() != orig.GroupID.String() {
		t.Error("group not carried over")
	}
	if !c.ID.IsNil() {
		t.Error("compensation should not carry an ID yet")
	}
}

func TestFilterMatches(t *testing.T) {
	orig := id.NewSettlementID()
	s := &settlement.Settlement{PayerID: "bob", PayeeID: "alice", Reverses: orig}

	if !(settlement.Filter{Involving: []string{"alice", "bob"}}).Matches(s) {
		t.Error("expected pair match")
	}
	if (settlement.Filter{Involving: []string{"carol"}}).Matches(s) {
		t.Error("unexpected match for carol")
	}
	if !(settlement.Filter{Reverses: orig}).Matches(s) {
		t.Error("expected Reverses match")
	}
	if (settlement.Filter{Reverses: id.NewSettlementID()}).Matches(s) {
		t.Error("unexpected Reverses match")
	}
}
