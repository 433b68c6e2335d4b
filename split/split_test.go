package split_test

import (
	"errors"
	"testing"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/split"
	"github.com/xraph/splitledger/types"
)

func owed(t *testing.T, splits []expense.Split) map[string]int64 {
	t.Helper()
	out := make(map[string]int64, len(splits))
	for _, s := range splits {
		out[s.UserID] = s.Owed.Amount
	}
	return out
}

func assertConserves(t *testing.T, total types.Money, splits []expense.Split) {
	t.Helper()
	var sum int64
	for _, s := range splits {
		if s.Owed.Currency != total.Currency {
			t.Errorf("share for %s in %s, want %s", s.UserID, s.Owed.Currency, total.Currency)
		}
		sum += s.Owed.Amount
	}
	if sum != total.Amount {
		t.Errorf("shares sum to %d, total is %d", sum, total.Amount)
	}
}

func TestRules(t *testing.T) {
	tests := []struct {
		name  string
		total types.Money
		rule  split.Rule
		want  map[string]int64
	}{
		{
			name:  "equal two ways",
			total: types.USD(3000),
			rule:  split.Rule{Mode: split.ModeEqual, Participants: []string{"a", "b"}},
			want:  map[string]int64{"a": 1500, "b": 1500},
		},
		{
			name:  "equal residual goes to the first participants",
			total: types.USD(1001),
			rule:  split.Rule{Participants: []string{"a", "b", "c"}},
			want:  map[string]int64{"a": 334, "b": 334, "c": 333},
		},
		{
			name:  "exact",
			total: types.USD(1000),
			rule: split.Rule{Mode: split.ModeExact, Portions: []split.Portion{
				{UserID: "a", Value: 250}, {UserID: "b", Value: 750},
			}},
			want: map[string]int64{"a": 250, "b": 750},
		},
		{
			name:  "percent",
			total: types.USD(999),
			rule: split.Rule{Mode: split.ModePercent, Portions: []split.Portion{
				{UserID: "a", Value: 5000}, {UserID: "b", Value: 2500}, {UserID: "c", Value: 2500},
			}},
			want: map[string]int64{"a": 500, "b": 250, "c": 249},
		},
		{
			name:  "shares",
			total: types.EUR(1000),
			rule: split.Rule{Mode: split.ModeShares, Portions: []split.Portion{
				{UserID: "a", Value: 1}, {UserID: "b", Value: 2},
			}},
			want: map[string]int64{"a": 334, "b": 666},
		},
		{
			name:  "itemized with tax spread by subtotal",
			total: types.USD(3300),
			rule: split.Rule{
				Mode:         split.ModeItemized,
				Participants: []string{"a", "b"},
				Items: []split.Item{
					{Description: "pasta", Amount: 2000, AssignedTo: []string{"a"}},
					{Description: "salad", Amount: 1000, AssignedTo: []string{"b"}},
				},
			},
			want: map[string]int64{"a": 2200, "b": 1100},
		},
		{
			name:  "itemized shared item",
			total: types.USD(1001),
			rule: split.Rule{
				Mode:         split.ModeItemized,
				Participants: []string{"a", "b"},
				Items: []split.Item{
					{Amount: 1001, AssignedTo: []string{"a", "b"}},
				},
			},
			want: map[string]int64{"a": 501, "b": 500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits, err := tt.rule.Apply(tt.total)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			assertConserves(t, tt.total, splits)
			got := owed(t, splits)
			for u, want := range tt.want {
				if got[u] != want {
					t.Errorf("%s: got %d, want %d", u, got[u], want)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("got %d shares, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestRuleErrors(t *testing.T) {
	tests := []struct {
		name  string
		total types.Money
		rule  split.Rule
		want  error
	}{
		{"no participants", types.USD(100), split.Rule{Mode: split.ModeEqual}, split.ErrNoParticipants},
		{"duplicate", types.USD(100), split.Rule{Participants: []string{"a", "a"}}, split.ErrDuplicate},
		{"unknown mode", types.USD(100), split.Rule{Mode: "random", Participants: []string{"a"}}, split.ErrUnknownMode},
		{"percent not 100", types.USD(100), split.Rule{Mode: split.ModePercent, Portions: []split.Portion{
			{UserID: "a", Value: 5000}, {UserID: "b", Value: 4000},
		}}, split.ErrPercentTotal},
		{"negative portion", types.USD(100), split.Rule{Mode: split.ModeShares, Portions: []split.Portion{
			{UserID: "a", Value: -1},
		}}, split.ErrNegativePortion},
		{"items exceed total", types.USD(100), split.Rule{Mode: split.ModeItemized, Participants: []string{"a"},
			Items: []split.Item{{Amount: 200, AssignedTo: []string{"a"}}}}, split.ErrItemsExceedTotal},
		{"item for stranger", types.USD(100), split.Rule{Mode: split.ModeItemized, Participants: []string{"a"},
			Items: []split.Item{{Amount: 50, AssignedTo: []string{"z"}}}}, split.ErrUnknownParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rule.Apply(tt.total)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExactRejectsLeak(t *testing.T) {
	_, err := split.Exact(types.USD(1000), []split.Portion{
		{UserID: "a", Value: 500}, {UserID: "b", Value: 499},
	})
	var cerr *expense.ConservationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConservationError, got %v", err)
	}
	if cerr.Sum.Amount != 999 || cerr.Amount.Amount != 1000 {
		t.Errorf("unexpected error detail: %+v", cerr)
	}
}
