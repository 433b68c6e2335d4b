package balance_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
)

func exp(payer string, amount int64, shares map[string]int64, order ...string) *expense.Expense {
	e := &expense.Expense{ID: id.NewExpenseID(), PayerID: payer, Amount: types.USD(amount)}
	for _, u := range order {
		e.Splits = append(e.Splits, expense.Split{UserID: u, Owed: types.USD(shares[u])})
	}
	return e
}

func stl(payer, payee string, amount int64) *settlement.Settlement {
	return &settlement.Settlement{ID: id.NewSettlementID(), PayerID: payer, PayeeID: payee, Amount: types.USD(amount)}
}

func TestPairwiseScenario(t *testing.T) {
	dinner := exp("a", 3000, map[string]int64{"a": 1500, "b": 1500}, "a", "b")

	res := balance.Pairwise(balance.Input{
		UserID: "a", Currency: "usd", Counterparties: []string{"b"},
		Expenses: []*expense.Expense{dinner},
	})
	if err := res.Err(); err != nil {
		t.Fatalf("Pairwise: %v", err)
	}
	if got := res.Balances["b"].Amount; got != 1500 {
		t.Errorf("after dinner: got %d, want 1500", got)
	}

	res = balance.Pairwise(balance.Input{
		UserID: "a", Currency: "usd", Counterparties: []string{"b"},
		Expenses:    []*expense.Expense{dinner},
		Settlements: []*settlement.Settlement{stl("b", "a", 1000)},
	})
	if got := res.Balances["b"].Amount; got != 500 {
		t.Errorf("after settlement: got %d, want 500", got)
	}

	mirror := balance.Pairwise(balance.Input{
		UserID: "b", Currency: "usd", Counterparties: []string{"a"},
		Expenses:    []*expense.Expense{dinner},
		Settlements: []*settlement.Settlement{stl("b", "a", 1000)},
	})
	if got := mirror.Balances["a"].Amount; got != -500 {
		t.Errorf("mirror: got %d, want -500", got)
	}
}

func TestPairwiseRules(t *testing.T) {
	tests := []struct {
		name        string
		expenses    []*expense.Expense
		settlements []*settlement.Settlement
		want        map[string]int64
	}{
		{
			name:     "counterparty paid",
			expenses: []*expense.Expense{exp("b", 1000, map[string]int64{"a": 400, "b": 600}, "a", "b")},
			want:     map[string]int64{"b": -400, "c": 0},
		},
		{
			name:     "third party paid",
			expenses: []*expense.Expense{exp("c", 900, map[string]int64{"a": 300, "b": 300, "c": 300}, "a", "b", "c")},
			want:     map[string]int64{"b": 0, "c": -300},
		},
		{
			name:     "payer not sharing",
			expenses: []*expense.Expense{exp("a", 1000, map[string]int64{"b": 700, "c": 300}, "b", "c")},
			want:     map[string]int64{"b": 700, "c": 300},
		},
		{
			name:        "settlement directions",
			settlements: []*settlement.Settlement{stl("a", "b", 250), stl("c", "a", 100)},
			want:        map[string]int64{"b": 250, "c": -100},
		},
		{
			name:        "records between others ignored",
			expenses:    []*expense.Expense{exp("b", 1000, map[string]int64{"b": 500, "c": 500}, "b", "c")},
			settlements: []*settlement.Settlement{stl("b", "c", 500)},
			want:        map[string]int64{"b": 0, "c": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := balance.Pairwise(balance.Input{
				UserID: "a", Currency: "usd", Counterparties: []string{"b", "c"},
				Expenses: tt.expenses, Settlements: tt.settlements,
			})
			if err := res.Err(); err != nil {
				t.Fatalf("Pairwise: %v", err)
			}
			for cp, want := range tt.want {
				if got := res.Balances[cp].Amount; got != want {
					t.Errorf("%s: got %d, want %d", cp, got, want)
				}
			}
		})
	}
}

func TestPairwiseIsolatesBadRecords(t *testing.T) {
	good := exp("a", 1000, map[string]int64{"a": 500, "c": 500}, "a", "c")
	euro := &expense.Expense{
		ID: id.NewExpenseID(), PayerID: "a", Amount: types.EUR(1000),
		Splits: []expense.Split{{UserID: "a", Owed: types.EUR(500)}, {UserID: "b", Owed: types.EUR(500)}},
	}
	leaky := exp("d", 1000, map[string]int64{"a": 500, "d": 400}, "a", "d")

	res := balance.Pairwise(balance.Input{
		UserID: "a", Currency: "usd", Counterparties: []string{"b", "c", "d"},
		Expenses: []*expense.Expense{good, euro, leaky},
	})

	var mismatch *balance.CurrencyMismatchError
	if !errors.As(res.Errors["b"], &mismatch) {
		t.Fatalf("b: expected CurrencyMismatchError, got %v", res.Errors["b"])
	}
	if mismatch.RecordID != euro.ID.String() || mismatch.Got != "eur" {
		t.Errorf("unexpected detail: %+v", mismatch)
	}

	var malformed *balance.MalformedRecordError
	if !errors.As(res.Errors["d"], &malformed) || malformed.RecordID != leaky.ID.String() {
		t.Fatalf("d: expected MalformedRecordError for %s, got %v", leaky.ID, res.Errors["d"])
	}
	var cerr *expense.ConservationError
	if !errors.As(res.Errors["d"], &cerr) {
		t.Error("malformed error should unwrap to the conservation failure")
	}

	if got := res.Balances["c"].Amount; got != 500 {
		t.Errorf("c should still compute: got %d", got)
	}
	if _, ok := res.Balances["b"]; ok {
		t.Error("b must not have both a balance and an error")
	}
	if !errors.Is(res.Err(), res.Errors["b"]) {
		t.Error("Err should return the first failing counterparty in order")
	}
}

func TestPairwiseOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	users := []string{"a", "b", "c", "d"}

	var expenses []*expense.Expense
	var settlements []*settlement.Settlement
	for i := 0; i < 40; i++ {
		payer := users[rng.Intn(len(users))]
		total := types.USD(int64(rng.Intn(10000) + 1))
		parts, _ := total.Split(len(users))
		e := &expense.Expense{ID: id.NewExpenseID(), PayerID: payer, Amount: total}
		for j, u := range users {
			e.Splits = append(e.Splits, expense.Split{UserID: u, Owed: parts[j]})
		}
		expenses = append(expenses, e)

		from, to := users[rng.Intn(len(users))], users[rng.Intn(len(users))]
		if from != to {
			settlements = append(settlements, stl(from, to, int64(rng.Intn(500)+1)))
		}
	}

	in := balance.Input{UserID: "a", Currency: "usd", Counterparties: []string{"b", "c", "d"},
		Expenses: expenses, Settlements: settlements}
	first := balance.Pairwise(in)

	for round := 0; round < 5; round++ {
		rng.Shuffle(len(expenses), func(i, j int) { expenses[i], expenses[j] = expenses[j], expenses[i] })
		rng.Shuffle(len(settlements), func(i, j int) { settlements[i], settlements[j] = settlements[j], settlements[i] })
		again := balance.Pairwise(in)
		for cp, m := range first.Balances {
			if again.Balances[cp].Amount != m.Amount {
				t.Fatalf("round %d: %s changed from %d to %d", round, cp, m.Amount, again.Balances[cp].Amount)
			}
		}
	}

	// Pairwise balances are antisymmetric.
	for _, cp := range []string{"b", "c", "d"} {
		mirror := balance.Pairwise(balance.Input{UserID: cp, Currency: "usd", Counterparties: []string{"a"},
			Expenses: expenses, Settlements: settlements})
		if mirror.Balances["a"].Amount != -first.Balances[cp].Amount {
			t.Errorf("%s: %d is not the negation of %d", cp, mirror.Balances["a"].Amount, first.Balances[cp].Amount)
		}
	}
}

func TestGroupClosure(t *testing.T) {
	g := id.NewGroupID()
	other := id.NewGroupID()

	e1 := exp("a", 1001, map[string]int64{"a": 334, "b": 334, "c": 333}, "a", "b", "c")
	e1.GroupID = g
	e2 := exp("b", 600, map[string]int64{"a": 300, "c": 300}, "a", "c")
	e2.GroupID = g
	outside := exp("c", 5000, map[string]int64{"a": 5000}, "a")
	outside.GroupID = other
	s := stl("c", "a", 200)
	s.GroupID = g

	pos, err := balance.Group(balance.GroupInput{
		GroupID: g.String(), Currency: "usd", Members: []string{"a", "b", "c"},
		Expenses:    []*expense.Expense{e1, e2, outside},
		Settlements: []*settlement.Settlement{s},
	})
	if err != nil {
		t.Fatalf("Group: %v", err)
	}

	want := map[string]int64{"a": 1001 - 334 - 300 - 200, "b": 600 - 334, "c": -333 - 300 + 200}
	var sum int64
	for u, w := range want {
		if pos[u].Amount != w {
			t.Errorf("%s: got %d, want %d", u, pos[u].Amount, w)
		}
		sum += pos[u].Amount
	}
	if sum != 0 {
		t.Errorf("positions sum to %d", sum)
	}
}

func TestGroupClosureViolation(t *testing.T) {
	g := id.NewGroupID()
	e := exp("a", 1000, map[string]int64{"a": 500, "gone": 500}, "a", "gone")
	e.GroupID = g

	_, err := balance.Group(balance.GroupInput{
		GroupID: g.String(), Currency: "usd", Members: []string{"a"},
		Expenses: []*expense.Expense{e},
	})
	var cerr *balance.ClosureError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ClosureError, got %v", err)
	}
	if cerr.Sum.Amount != 500 {
		t.Errorf("Sum: got %d, want 500", cerr.Sum.Amount)
	}
}

func TestSimplify(t *testing.T) {
	positions := map[string]types.Money{
		"a": types.USD(1500),
		"b": types.USD(-1000),
		"c": types.USD(-300),
		"d": types.USD(-200),
		"e": types.USD(0),
	}

	got := balance.Simplify(positions)
	want := []balance.Transfer{
		{From: "b", To: "a", Amount: types.USD(1000)},
		{From: "c", To: "a", Amount: types.USD(300)},
		{From: "d", To: "a", Amount: types.USD(200)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d transfers, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].From != want[i].From || got[i].To != want[i].To || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("transfer %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSimplifySettlesEverything(t *testing.T) {
	positions := map[string]types.Money{
		"a": types.USD(700), "b": types.USD(300), "c": types.USD(-450), "d": types.USD(-550),
	}
	net := map[string]int64{}
	for u, m := range positions {
		net[u] = m.Amount
	}
	transfers := balance.Simplify(positions)
	if len(transfers) > len(positions)-1 {
		t.Errorf("too many transfers: %d", len(transfers))
	}
	for _, tr := range transfers {
		net[tr.From] += tr.Amount.Amount
		net[tr.To] -= tr.Amount.Amount
	}
	for u, v := range net {
		if v != 0 {
			t.Errorf("%s left with %d", u, v)
		}
	}
}

func TestSnapshotClone(t *testing.T) {
	s := &balance.Snapshot{OwnerID: "a", Currency: "usd", Balances: map[string]int64{"b": 500}, Stale: []string{"c"}}
	c := s.Clone()
	c.Balances["b"] = 0
	c.Stale[0] = "x"

	if s.Balance("b").Amount != 500 || !s.IsStale("c") {
		t.Error("clone shares state with the original")
	}
	if s.Balance("nobody").Amount != 0 {
		t.Error("missing friend should be zero")
	}
}
