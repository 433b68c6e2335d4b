package splitledger

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/user"
)

func balanceLockKey(userID string) string { return "balance:" + userID }

// Refresh rebuilds userID's balance snapshot from the record store. On
// failure the previous snapshot is left untouched.
func (l *Ledger) Refresh(ctx context.Context, userID string) error {
	if err := l.refresh(ctx, userID); err != nil {
		l.markDirty(ctx, userID, err)
		return err
	}
	return nil
}

func (l *Ledger) refresh(ctx context.Context, userID string) error {
	start := time.Now()

	unlock, err := l.locker.Lock(ctx, balanceLockKey(userID))
	if err != nil {
		return &StoreUnavailableError{Op: "lock balance", Err: err}
	}
	defer unlock()

	var snap *balance.Snapshot
	for attempt := 0; ; attempt++ {
		snap, err = l.refreshOnce(ctx, userID)
		if err == nil || !errors.Is(err, ErrVersionConflict) || attempt >= l.refreshRetries {
			break
		}
		l.logger.Debug("snapshot version conflict, re-reading",
			"user_id", userID,
			"attempt", attempt+1,
		)
	}
	if err != nil {
		return err
	}

	l.clearDirty(userID)

	elapsed := time.Since(start)
	l.plugins.EmitBalancesRefreshed(ctx, userID, len(snap.Balances), elapsed)
	l.logger.Debug("balances refreshed",
		"user_id", userID,
		"friends", len(snap.Balances),
		"stale", len(snap.Stale),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}

// refreshOnce is one read-fold-write cycle. Counterparties whose records
// cannot be folded keep their previous cached value and are flagged stale.
func (l *Ledger) refreshOnce(ctx context.Context, userID string) (*balance.Snapshot, error) {
	u, err := fetch(l, ctx, "get user", func(ctx context.Context) (*user.User, error) {
		return l.store.GetUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	prev, err := l.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	friends, err := l.linkedFriends(ctx, userID)
	if err != nil {
		return nil, err
	}

	expenses, settlements, err := l.recordsInvolving(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := balance.Pairwise(balance.Input{
		UserID:         userID,
		Currency:       u.DefaultCurrency,
		Counterparties: friends,
		Expenses:       expenses,
		Settlements:    settlements,
	})

	next := &balance.Snapshot{
		OwnerID:     userID,
		Currency:    u.DefaultCurrency,
		Balances:    make(map[string]int64, len(friends)),
		RefreshedAt: l.now(),
	}
	for cp, m := range res.Balances {
		next.Balances[cp] = m.Amount
	}
	for _, cp := range sortedKeys(res.Errors) {
		if prev != nil && prev.Currency == next.Currency {
			next.Balances[cp] = prev.Balances[cp]
		}
		next.Stale = append(next.Stale, cp)
		l.logger.Warn("balance left stale for counterparty",
			"user_id", userID,
			"counterparty", cp,
			"error", res.Errors[cp],
		)
	}

	var expected int64
	if prev != nil {
		expected = prev.Version
	}
	if err := l.call(ctx, "save snapshot", func(ctx context.Context) error {
		return l.store.SaveSnapshot(ctx, next, expected)
	}); err != nil {
		return nil, err
	}
	return next, nil
}

// snapshot returns the stored snapshot, or nil if none exists yet.
func (l *Ledger) snapshot(ctx context.Context, userID string) (*balance.Snapshot, error) {
	snap, err := fetch(l, ctx, "get snapshot", func(ctx context.Context) (*balance.Snapshot, error) {
		return l.store.GetSnapshot(ctx, userID)
	})
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, nil
	}
	return snap, err
}

// currentRelationships returns the latest relationship per friend.
func (l *Ledger) currentRelationships(ctx context.Context, userID string) ([]*friend.Relationship, error) {
	rels, err := fetch(l, ctx, "list relationships", func(ctx context.Context) ([]*friend.Relationship, error) {
		return l.store.ListRelationships(ctx, userID, friend.ListOpts{})
	})
	if err != nil {
		return nil, err
	}
	return friend.Latest(rels), nil
}

// linkedFriends returns the friends whose balances are materialized.
func (l *Ledger) linkedFriends(ctx context.Context, userID string) ([]string, error) {
	rels, err := l.currentRelationships(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rels {
		if r.Status.Live() {
			out = append(out, r.FriendID)
		}
	}
	return out, nil
}

func (l *Ledger) recordsInvolving(ctx context.Context, userID string, others ...string) ([]*expense.Expense, []*settlement.Settlement, error) {
	involving := append([]string{userID}, others...)

	expenses, err := fetch(l, ctx, "list expenses", func(ctx context.Context) ([]*expense.Expense, error) {
		return l.store.ListExpenses(ctx, expense.Filter{Involving: involving})
	})
	if err != nil {
		return nil, nil, err
	}
	settlements, err := fetch(l, ctx, "list settlements", func(ctx context.Context) ([]*settlement.Settlement, error) {
		return l.store.ListSettlements(ctx, settlement.Filter{Involving: involving})
	})
	if err != nil {
		return nil, nil, err
	}
	return expenses, settlements, nil
}

// propagate refreshes the snapshots of everyone a committed write touched.
// The actor is always refreshed inline so they read their own write; in
// async mode everyone else is queued.
func (l *Ledger) propagate(ctx context.Context, actor string, users []string) *Receipt {
	r := &Receipt{}
	seen := make(map[string]bool, len(users))

	ordered := make([]string, 0, len(users)+1)
	if actor != "" && slices.Contains(users, actor) {
		ordered = append(ordered, actor)
	}
	ordered = append(ordered, users...)

	for _, u := range ordered {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true

		if l.asyncRefresh && u != actor {
			if l.enqueue(u) {
				r.Queued = append(r.Queued, u)
				continue
			}
			l.markDirty(ctx, u, ErrRefreshQueueFull)
			r.Stale = append(r.Stale, u)
			continue
		}

		if err := l.refresh(ctx, u); err != nil {
			l.markDirty(ctx, u, err)
			r.Stale = append(r.Stale, u)
			continue
		}
		r.Refreshed = append(r.Refreshed, u)
	}
	return r
}

func (l *Ledger) enqueue(userID string) bool {
	select {
	case <-l.stopChan:
		return false
	default:
	}
	select {
	case l.refreshQueue <- userID:
		return true
	default:
		return false
	}
}

func (l *Ledger) markDirty(ctx context.Context, userID string, cause error) {
	l.dirtyMu.Lock()
	l.dirty[userID] = struct{}{}
	l.dirtyMu.Unlock()

	l.logger.Warn("balance refresh failed, snapshot left stale",
		"user_id", userID,
		"error", cause,
	)
	l.plugins.EmitRefreshFailed(ctx, userID, cause)
}

func (l *Ledger) clearDirty(userID string) {
	l.dirtyMu.Lock()
	delete(l.dirty, userID)
	l.dirtyMu.Unlock()
}

func (l *Ledger) isDirty(userID string) bool {
	l.dirtyMu.Lock()
	defer l.dirtyMu.Unlock()
	_, ok := l.dirty[userID]
	return ok
}

// Dirty returns the users awaiting reconciliation, sorted.
func (l *Ledger) Dirty() []string {
	l.dirtyMu.Lock()
	out := make([]string, 0, len(l.dirty))
	for u := range l.dirty {
		out = append(out, u)
	}
	l.dirtyMu.Unlock()
	sort.Strings(out)
	return out
}

// Reconcile retries every stale snapshot once. Users that still fail stay
// dirty; users that no longer exist are dropped.
func (l *Ledger) Reconcile(ctx context.Context) error {
	var errs []error
	for _, u := range l.Dirty() {
		err := l.refresh(ctx, u)
		switch {
		case err == nil:
			l.logger.Info("stale snapshot reconciled", "user_id", u)
		case errors.Is(err, ErrUserNotFound):
			l.clearDirty(u)
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
