package splitledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/split"
	"github.com/xraph/splitledger/store"
	"github.com/xraph/splitledger/store/memory"
	"github.com/xraph/splitledger/types"
	"github.com/xraph/splitledger/user"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setup returns a ledger over s with alice, bob and carol registered in
// USD.
func setup(t *testing.T, s store.Store, opts ...splitledger.Option) (*splitledger.Ledger, context.Context) {
	t.Helper()

	opts = append([]splitledger.Option{
		splitledger.WithLogger(quietLogger()),
		splitledger.WithReconcileInterval(0),
	}, opts...)
	l := splitledger.New(s, opts...)

	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		if err := l.RegisterUser(ctx, &user.User{ID: name, DefaultCurrency: "USD"}); err != nil {
			t.Fatalf("RegisterUser(%s): %v", name, err)
		}
	}
	return l, ctx
}

func newLedger(t *testing.T, opts ...splitledger.Option) (*splitledger.Ledger, context.Context) {
	t.Helper()
	return setup(t, memory.New(), opts...)
}

// friendRow finds friendID in ownerID's friend list.
func friendRow(t *testing.T, ctx context.Context, l *splitledger.Ledger, ownerID, friendID string) splitledger.FriendWithBalance {
	t.Helper()

	friends, err := l.FetchFriends(ctx, ownerID)
	if err != nil {
		t.Fatalf("FetchFriends(%s): %v", ownerID, err)
	}
	for _, f := range friends {
		if f.Relationship.FriendID == friendID {
			return f
		}
	}
	t.Fatalf("%s has no relationship with %s", ownerID, friendID)
	return splitledger.FriendWithBalance{}
}

func assertBalance(t *testing.T, ctx context.Context, l *splitledger.Ledger, ownerID, friendID string, want int64) {
	t.Helper()
	if got := friendRow(t, ctx, l, ownerID, friendID).Balance.Amount; got != want {
		t.Errorf("balance %s->%s: got %d, want %d", ownerID, friendID, got, want)
	}
}

func link(t *testing.T, ctx context.Context, l *splitledger.Ledger, a, b string) {
	t.Helper()
	if _, err := l.AddFriend(ctx, a, b); err != nil {
		t.Fatalf("AddFriend(%s, %s): %v", a, b, err)
	}
}

func dinner(payer string, shares map[string]int64) *expense.Expense {
	e := &expense.Expense{PayerID: payer, Description: "dinner", CreatedBy: payer}
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		if amt, ok := shares[u]; ok {
			e.Splits = append(e.Splits, expense.Split{UserID: u, Owed: types.USD(amt)})
			e.Amount.Amount += amt
		}
	}
	e.Amount.Currency = "usd"
	return e
}

func TestBalanceLifecycle(t *testing.T) {
	l, ctx := newLedger(t)
	link(t, ctx, l, "alice", "bob")

	// Alice pays 30.00 split evenly.
	if _, err := l.AddExpense(ctx, dinner("alice", map[string]int64{"alice": 1500, "bob": 1500})); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	assertBalance(t, ctx, l, "alice", "bob", 1500)
	assertBalance(t, ctx, l, "bob", "alice", -1500)

	// Bob pays back 10.00.
	receipt, err := l.RecordSettlement(ctx, &settlement.Settlement{
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  types.USD(1000),
	})
	if err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}
	if receipt.Degraded() {
		t.Errorf("unexpected stale snapshots: %v", receipt.Stale)
	}
	assertBalance(t, ctx, l, "alice", "bob", 500)
	assertBalance(t, ctx, l, "bob", "alice", -500)

	// Removing the link hides the balance without touching the records.
	if _, err := l.RemoveFriend(ctx, "alice", "bob"); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	row := friendRow(t, ctx, l, "alice", "bob")
	if row.Relationship.Status != friend.StatusRemoved {
		t.Errorf("expected removed, got %s", row.Relationship.Status)
	}
	assertBalance(t, ctx, l, "alice", "bob", 0)
	assertBalance(t, ctx, l, "bob", "alice", 0)

	// Re-linking brings it back.
	link(t, ctx, l, "bob", "alice")
	assertBalance(t, ctx, l, "alice", "bob", 500)
	assertBalance(t, ctx, l, "bob", "alice", -500)

	rels, err := l.ListRelationships(ctx, "alice")
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	if len(rels) != 1 || rels[0].Status != friend.StatusLinked {
		t.Errorf("expected one linked relationship, got %d", len(rels))
	}
}

func TestEqualSplitResidualCents(t *testing.T) {
	l, ctx := newLedger(t)
	link(t, ctx, l, "alice", "bob")
	link(t, ctx, l, "alice", "carol")

	e := &expense.Expense{PayerID: "alice", Amount: types.USD(1001)}
	rule := split.Rule{Mode: split.ModeEqual, Participants: []string{"alice", "bob", "carol"}}
	if _, err := l.AddSplitExpense(ctx, e, rule); err != nil {
		t.Fatalf("AddSplitExpense: %v", err)
	}

	stored, err := l.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	want := []int64{334, 334, 333}
	for i, s := range stored.Splits {
		if s.Owed.Amount != want[i] {
			t.Errorf("share %d (%s): got %d, want %d", i, s.UserID, s.Owed.Amount, want[i])
		}
	}

	assertBalance(t, ctx, l, "alice", "bob", 334)
	assertBalance(t, ctx, l, "alice", "carol", 333)
	assertBalance(t, ctx, l, "carol", "alice", -333)
}

func TestRelationshipStateMachine(t *testing.T) {
	l, ctx := newLedger(t)

	pending, err := l.RequestLink(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("RequestLink: %v", err)
	}
	if pending.Status != friend.StatusPending || pending.RequestedBy != "alice" {
		t.Errorf("unexpected request row: %+v", pending)
	}

	row := friendRow(t, ctx, l, "bob", "alice")
	if row.Relationship.Status != friend.StatusPending || !row.Balance.IsZero() || row.Stale {
		t.Errorf("pending row should show a fresh zero balance: %+v", row)
	}

	var stateErr *splitledger.InvalidStateError
	if _, err := l.AcceptLink(ctx, "alice", "bob"); !errors.As(err, &stateErr) {
		t.Errorf("requester accepting own request: got %v", err)
	}
	if _, err := l.RequestLink(ctx, "bob", "alice"); !errors.As(err, &stateErr) {
		t.Errorf("request while pending: got %v", err)
	}

	if _, err := l.AcceptLink(ctx, "bob", "alice"); err != nil {
		t.Fatalf("AcceptLink: %v", err)
	}
	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		r, err := l.GetRelationship(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("GetRelationship: %v", err)
		}
		if r.Status != friend.StatusLinked {
			t.Errorf("%s->%s: expected linked, got %s", pair[0], pair[1], r.Status)
		}
	}

	if _, err := l.AcceptLink(ctx, "bob", "alice"); !errors.As(err, &stateErr) {
		t.Errorf("accepting a linked relationship: got %v", err)
	}
	if _, err := l.RequestLink(ctx, "alice", "bob"); !errors.As(err, &stateErr) {
		t.Errorf("request while linked: got %v", err)
	}

	if _, err := l.RequestLink(ctx, "alice", "alice"); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("self link: got %v", err)
	}
	if _, err := l.RequestLink(ctx, "alice", "zed"); !errors.Is(err, splitledger.ErrUserNotFound) {
		t.Errorf("unknown friend: got %v", err)
	}
	if _, err := l.AcceptLink(ctx, "alice", "carol"); !errors.Is(err, splitledger.ErrRelationshipNotFound) {
		t.Errorf("accept without request: got %v", err)
	}

	// A pending request can be withdrawn.
	if _, err := l.RequestLink(ctx, "carol", "alice"); err != nil {
		t.Fatalf("RequestLink: %v", err)
	}
	if _, err := l.RemoveLink(ctx, "carol", "alice"); err != nil {
		t.Fatalf("RemoveLink(pending): %v", err)
	}
	if _, err := l.RemoveLink(ctx, "carol", "alice"); !errors.As(err, &stateErr) {
		t.Errorf("removing twice: got %v", err)
	}
}

func TestExpenseValidation(t *testing.T) {
	l, ctx := newLedger(t)

	leaky := dinner("alice", map[string]int64{"alice": 1500, "bob": 1500})
	leaky.Amount = types.USD(3001)
	_, err := l.AddExpense(ctx, leaky)
	if !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("shares not adding up: got %v", err)
	}
	var conservation *splitledger.ConservationError
	if !errors.As(err, &conservation) {
		t.Errorf("expected ConservationError, got %T", err)
	}

	stranger := dinner("alice", map[string]int64{"alice": 1500, "dave": 1500})
	if _, err := l.AddExpense(ctx, stranger); !errors.Is(err, splitledger.ErrUserNotFound) {
		t.Errorf("unregistered participant: got %v", err)
	}

	if _, err := l.AddSplitExpense(ctx, &expense.Expense{PayerID: "alice", Amount: types.USD(1000)},
		split.Rule{Mode: split.ModePercent, Portions: []split.Portion{{UserID: "alice", Value: 5000}}}); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("percentages not adding up: got %v", err)
	}

	list, err := l.ListExpenses(ctx, expense.Filter{})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("rejected expenses were stored: %d", len(list))
	}
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	l, ctx := newLedger(t)
	link(t, ctx, l, "alice", "bob")
	link(t, ctx, l, "alice", "carol")

	e := dinner("alice", map[string]int64{"alice": 1500, "bob": 1500})
	if _, err := l.AddExpense(ctx, e); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	// Carol takes over Bob's half.
	stored, err := l.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	stored.Splits = []expense.Split{
		{UserID: "alice", Owed: types.USD(1500)},
		{UserID: "carol", Owed: types.USD(1500)},
	}
	receipt, err := l.UpdateExpense(ctx, stored, 1)
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if len(receipt.Refreshed) != 3 {
		t.Errorf("expected alice, bob and carol refreshed, got %v", receipt.Refreshed)
	}
	assertBalance(t, ctx, l, "alice", "bob", 0)
	assertBalance(t, ctx, l, "alice", "carol", 1500)

	if _, err := l.UpdateExpense(ctx, stored, 1); !errors.Is(err, splitledger.ErrVersionConflict) {
		t.Errorf("stale update: got %v", err)
	}
	if !splitledger.IsConflict(splitledger.ErrVersionConflict) {
		t.Error("version conflict should be a conflict")
	}

	if _, err := l.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	assertBalance(t, ctx, l, "alice", "carol", 0)
	if _, err := l.GetExpense(ctx, e.ID); !splitledger.IsNotFound(err) {
		t.Errorf("GetExpense after delete: got %v", err)
	}
}

func TestReverseSettlement(t *testing.T) {
	l, ctx := newLedger(t)
	link(t, ctx, l, "alice", "bob")

	if _, err := l.AddExpense(ctx, dinner("alice", map[string]int64{"alice": 1500, "bob": 1500})); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	paid := &settlement.Settlement{PayerID: "bob", PayeeID: "alice", Amount: types.USD(1000)}
	if _, err := l.RecordSettlement(ctx, paid); err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}
	assertBalance(t, ctx, l, "alice", "bob", 500)

	comp, _, err := l.ReverseSettlement(ctx, paid.ID, "bounced", "alice")
	if err != nil {
		t.Fatalf("ReverseSettlement: %v", err)
	}
	if comp.PayerID != "alice" || comp.PayeeID != "bob" || comp.Reverses.String() != paid.ID.String() {
		t.Errorf("unexpected compensation: %+v", comp)
	}
	assertBalance(t, ctx, l, "alice", "bob", 1500)

	if _, _, err := l.ReverseSettlement(ctx, paid.ID, "again", "alice"); !errors.Is(err, splitledger.ErrAlreadyReversed) {
		t.Errorf("second reversal: got %v", err)
	}
	if _, _, err := l.ReverseSettlement(ctx, comp.ID, "undo", "alice"); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("reversing a reversal: got %v", err)
	}

	if _, err := l.RecordSettlement(ctx, &settlement.Settlement{PayerID: "bob", PayeeID: "bob", Amount: types.USD(1)}); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("self settlement: got %v", err)
	}
}

func TestGroups(t *testing.T) {
	l, ctx := newLedger(t)
	if err := l.RegisterUser(ctx, &user.User{ID: "dave", DefaultCurrency: "usd"}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	g := &group.Group{Name: "ski trip", Currency: "USD", Members: []string{"alice", "bob", "carol", "bob"}}
	if err := l.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if len(g.Members) != 3 {
		t.Errorf("expected duplicate member dropped, got %v", g.Members)
	}

	cabin := &expense.Expense{GroupID: g.ID, PayerID: "alice", Amount: types.USD(3000)}
	if _, err := l.AddSplitExpense(ctx, cabin, split.Rule{Participants: g.Members}); err != nil {
		t.Fatalf("AddSplitExpense: %v", err)
	}

	positions, err := l.GroupBalances(ctx, g.ID)
	if err != nil {
		t.Fatalf("GroupBalances: %v", err)
	}
	want := map[string]int64{"alice": 2000, "bob": -1000, "carol": -1000}
	for m, amt := range want {
		if positions[m].Amount != amt {
			t.Errorf("position %s: got %d, want %d", m, positions[m].Amount, amt)
		}
	}

	transfers, err := l.SimplifyGroupDebts(ctx, g.ID)
	if err != nil {
		t.Fatalf("SimplifyGroupDebts: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}
	for _, tr := range transfers {
		if tr.To != "alice" || tr.Amount.Amount != 1000 {
			t.Errorf("unexpected transfer %+v", tr)
		}
	}

	euro := &expense.Expense{GroupID: g.ID, PayerID: "alice", Amount: types.EUR(100),
		Splits: []expense.Split{{UserID: "alice", Owed: types.EUR(100)}}}
	_, err = l.AddExpense(ctx, euro)
	var mismatch *splitledger.CurrencyMismatchError
	if !errors.Is(err, splitledger.ErrInvalidInput) || !errors.As(err, &mismatch) {
		t.Errorf("foreign currency in group: got %v", err)
	}

	outsider := dinner("alice", map[string]int64{"alice": 100, "dave": 100})
	outsider.GroupID = g.ID
	if _, err := l.AddExpense(ctx, outsider); !errors.Is(err, splitledger.ErrNotGroupMember) {
		t.Errorf("non-member on group expense: got %v", err)
	}

	if err := l.RemoveGroupMember(ctx, g.ID, "bob"); !errors.Is(err, splitledger.ErrMemberHasBalance) {
		t.Errorf("removing a member who owes: got %v", err)
	}
	if _, err := l.RecordSettlement(ctx, &settlement.Settlement{
		GroupID: g.ID, PayerID: "bob", PayeeID: "alice", Amount: types.USD(1000),
	}); err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}
	if err := l.RemoveGroupMember(ctx, g.ID, "bob"); err != nil {
		t.Fatalf("RemoveGroupMember: %v", err)
	}
	if err := l.RemoveGroupMember(ctx, g.ID, "bob"); !errors.Is(err, splitledger.ErrNotGroupMember) {
		t.Errorf("removing twice: got %v", err)
	}

	if err := l.AddGroupMember(ctx, g.ID, "dave"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
	groups, err := l.ListGroups(ctx, "dave", group.ListOpts{})
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("expected dave in one group, got %d", len(groups))
	}

	positions, err = l.GroupBalances(ctx, g.ID)
	if err != nil {
		t.Fatalf("GroupBalances: %v", err)
	}
	var sum int64
	for _, p := range positions {
		sum += p.Amount
	}
	if sum != 0 {
		t.Errorf("group positions sum to %d", sum)
	}
}

func TestDepartedMemberFreezesGroupRecords(t *testing.T) {
	l, ctx := newLedger(t)

	g := &group.Group{Name: "cabin", Currency: "usd", Members: []string{"alice", "bob", "carol"}}
	if err := l.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	cabin := &expense.Expense{GroupID: g.ID, PayerID: "alice", Amount: types.USD(3000)}
	if _, err := l.AddSplitExpense(ctx, cabin, split.Rule{Participants: g.Members}); err != nil {
		t.Fatalf("AddSplitExpense: %v", err)
	}
	paid := &settlement.Settlement{GroupID: g.ID, PayerID: "carol", PayeeID: "alice", Amount: types.USD(1000)}
	if _, err := l.RecordSettlement(ctx, paid); err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}
	if err := l.RemoveGroupMember(ctx, g.ID, "carol"); err != nil {
		t.Fatalf("RemoveGroupMember: %v", err)
	}

	if _, err := l.DeleteExpense(ctx, cabin.ID); !errors.Is(err, splitledger.ErrNotGroupMember) {
		t.Errorf("deleting a record of a departed member: got %v", err)
	}

	edited := *cabin
	edited.Description = "cabin, two nights"
	if _, err := l.UpdateExpense(ctx, &edited, cabin.Version); !errors.Is(err, splitledger.ErrNotGroupMember) {
		t.Errorf("editing a record of a departed member: got %v", err)
	}
	if _, _, err := l.ReverseSettlement(ctx, paid.ID, "", "alice"); !errors.Is(err, splitledger.ErrNotGroupMember) {
		t.Errorf("reversing a settlement of a departed member: got %v", err)
	}

	if _, err := l.GetExpense(ctx, cabin.ID); err != nil {
		t.Fatalf("expense should survive: %v", err)
	}
	positions, err := l.GroupBalances(ctx, g.ID)
	if err != nil {
		t.Fatalf("GroupBalances: %v", err)
	}
	want := map[string]int64{"alice": 1000, "bob": -1000}
	if len(positions) != len(want) {
		t.Fatalf("positions: got %v", positions)
	}
	for m, amt := range want {
		if positions[m].Amount != amt {
			t.Errorf("position %s: got %d, want %d", m, positions[m].Amount, amt)
		}
	}
	if _, err := l.SimplifyGroupDebts(ctx, g.ID); err != nil {
		t.Errorf("SimplifyGroupDebts: %v", err)
	}
}

func TestUpdateBalanceOverride(t *testing.T) {
	l, ctx := newLedger(t)
	link(t, ctx, l, "alice", "bob")
	if _, err := l.AddExpense(ctx, dinner("alice", map[string]int64{"alice": 1500, "bob": 1500})); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	if err := l.UpdateBalance(ctx, "alice", "bob", types.USD(9999)); err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	row := friendRow(t, ctx, l, "alice", "bob")
	if row.Balance.Amount != 9999 || !row.Overridden {
		t.Errorf("expected overridden 9999, got %+v", row)
	}

	if err := l.UpdateBalance(ctx, "alice", "bob", types.EUR(1)); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("override in another currency: got %v", err)
	}

	if err := l.Refresh(ctx, "alice"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	row = friendRow(t, ctx, l, "alice", "bob")
	if row.Balance.Amount != 1500 || row.Overridden {
		t.Errorf("refresh should restore the computed balance, got %+v", row)
	}
}

func TestDefaultCurrencyChange(t *testing.T) {
	l, ctx := newLedger(t)
	link(t, ctx, l, "alice", "bob")
	if _, err := l.AddExpense(ctx, dinner("alice", map[string]int64{"alice": 1500, "bob": 1500})); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	if _, err := l.SetDefaultCurrency(ctx, "alice", "eur"); err != nil {
		t.Fatalf("SetDefaultCurrency: %v", err)
	}

	row := friendRow(t, ctx, l, "alice", "bob")
	if row.Currency != "eur" || !row.Stale {
		t.Errorf("expected a stale EUR row, got %+v", row)
	}

	res, err := l.ComputeBalances(ctx, "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("ComputeBalances: %v", err)
	}
	var mismatch *splitledger.CurrencyMismatchError
	if !errors.As(res.Errors["bob"], &mismatch) {
		t.Errorf("expected currency mismatch for bob, got %v", res.Errors["bob"])
	}

	// Bob's view is unaffected.
	assertBalance(t, ctx, l, "bob", "alice", -1500)
}

func TestImportLegacyRelationship(t *testing.T) {
	l, ctx := newLedger(t)
	if _, err := l.AddExpense(ctx, dinner("bob", map[string]int64{"alice": 700, "bob": 300})); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	r, receipt, err := l.ImportRelationship(ctx, splitledger.LegacyRelationship{OwnerID: "alice", FriendID: "bob"})
	if err != nil {
		t.Fatalf("ImportRelationship: %v", err)
	}
	if r.Status != friend.StatusLinked {
		t.Errorf("missing status should import as linked, got %s", r.Status)
	}
	if len(receipt.Refreshed) != 1 || receipt.Refreshed[0] != "alice" {
		t.Errorf("expected alice refreshed, got %+v", receipt)
	}
	assertBalance(t, ctx, l, "alice", "bob", -700)

	older := splitledger.LegacyRelationship{
		OwnerID: "alice", FriendID: "bob", Status: "removed",
		CreatedAt: r.CreatedAt.Add(-24 * time.Hour),
	}
	if _, _, err := l.ImportRelationship(ctx, older); !errors.Is(err, splitledger.ErrAlreadyExists) {
		t.Errorf("importing a row older than the current one: got %v", err)
	}
	assertBalance(t, ctx, l, "alice", "bob", -700)

	newer := older
	newer.CreatedAt = r.CreatedAt.Add(time.Hour)
	if _, _, err := l.ImportRelationship(ctx, newer); err != nil {
		t.Fatalf("importing a newer row: %v", err)
	}
	if got := friendRow(t, ctx, l, "alice", "bob"); got.Relationship.Status != friend.StatusRemoved || !got.Balance.IsZero() {
		t.Errorf("newer removed row should win, got %s %v", got.Relationship.Status, got.Balance)
	}

	if _, _, err := l.ImportRelationship(ctx, splitledger.LegacyRelationship{
		OwnerID: "alice", FriendID: "carol", Status: "besties",
	}); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("unknown legacy status: got %v", err)
	}
}

// flakyStore fails snapshot writes on demand.
type flakyStore struct {
	*memory.Store
	failSaves atomic.Bool
}

func (s *flakyStore) SaveSnapshot(ctx context.Context, snap *balance.Snapshot, expectedVersion int64) error {
	if s.failSaves.Load() {
		return errors.New("connection reset by peer")
	}
	return s.Store.SaveSnapshot(ctx, snap, expectedVersion)
}

type failureRecorder struct {
	mu    sync.Mutex
	users []string
}

func (r *failureRecorder) Name() string { return "failure-recorder" }

func (r *failureRecorder) OnRefreshFailed(_ context.Context, userID string, _ error) error {
	r.mu.Lock()
	r.users = append(r.users, userID)
	r.mu.Unlock()
	return nil
}

func TestFailedRefreshIsStaleUntilReconciled(t *testing.T) {
	fs := &flakyStore{Store: memory.New()}
	rec := &failureRecorder{}
	l, ctx := setup(t, fs, splitledger.WithPlugin(rec), splitledger.WithRefreshRetries(0))
	link(t, ctx, l, "alice", "bob")
	if _, err := l.AddExpense(ctx, dinner("alice", map[string]int64{"alice": 1500, "bob": 1500})); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	fs.failSaves.Store(true)
	receipt, err := l.RecordSettlement(ctx, &settlement.Settlement{PayerID: "bob", PayeeID: "alice", Amount: types.USD(1000)})
	if err != nil {
		t.Fatalf("the write itself must succeed: %v", err)
	}
	if !receipt.Degraded() || len(receipt.Stale) != 2 {
		t.Errorf("expected both snapshots stale, got %+v", receipt)
	}

	row := friendRow(t, ctx, l, "alice", "bob")
	if row.Balance.Amount != 1500 || !row.Stale {
		t.Errorf("expected last known balance flagged stale, got %+v", row)
	}
	if got := l.Dirty(); len(got) != 2 {
		t.Errorf("expected 2 dirty users, got %v", got)
	}

	rec.mu.Lock()
	failures := len(rec.users)
	rec.mu.Unlock()
	if failures != 2 {
		t.Errorf("expected 2 refresh failure hooks, got %d", failures)
	}

	err = l.Reconcile(ctx)
	if !errors.Is(err, splitledger.ErrStoreUnavailable) || !splitledger.IsRetryable(err) {
		t.Errorf("reconcile during outage: got %v", err)
	}

	fs.failSaves.Store(false)
	if err := l.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := l.Dirty(); len(got) != 0 {
		t.Errorf("expected nothing dirty, got %v", got)
	}
	row = friendRow(t, ctx, l, "alice", "bob")
	if row.Balance.Amount != 500 || row.Stale {
		t.Errorf("expected fresh 500, got %+v", row)
	}
}

func TestAsyncRefresh(t *testing.T) {
	l, ctx := newLedger(t, splitledger.WithAsyncRefresh(true))
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = l.Stop() }()

	link(t, ctx, l, "alice", "bob")

	receipt, err := l.AddExpense(ctx, dinner("alice", map[string]int64{"alice": 1500, "bob": 1500}))
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if len(receipt.Refreshed) != 1 || receipt.Refreshed[0] != "alice" {
		t.Errorf("expected the payer refreshed inline, got %+v", receipt)
	}
	if len(receipt.Queued) != 1 || receipt.Queued[0] != "bob" {
		t.Errorf("expected bob queued, got %+v", receipt)
	}
	assertBalance(t, ctx, l, "alice", "bob", 1500)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if friendRow(t, ctx, l, "bob", "alice").Balance.Amount == -1500 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bob's balance was never refreshed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegisterUserValidation(t *testing.T) {
	l, ctx := newLedger(t)

	if err := l.RegisterUser(ctx, &user.User{ID: "  ", DefaultCurrency: "usd"}); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("blank ID: got %v", err)
	}
	if err := l.RegisterUser(ctx, &user.User{ID: "erin", DefaultCurrency: "dollars"}); !errors.Is(err, splitledger.ErrInvalidInput) {
		t.Errorf("bad currency: got %v", err)
	}
	if err := l.RegisterUser(ctx, &user.User{ID: "alice", DefaultCurrency: "usd"}); !errors.Is(err, splitledger.ErrAlreadyExists) {
		t.Errorf("duplicate: got %v", err)
	}
}
