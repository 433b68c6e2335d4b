package splitledger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/types"
)

// FriendWithBalance is one row of a user's friend list. Balance is zero
// unless the relationship is linked.
type FriendWithBalance struct {
	Relationship *friend.Relationship `json:"relationship"`
	Balance      types.Money          `json:"balance"`
	Currency     string               `json:"currency"`
	Stale        bool                 `json:"stale"`
	Overridden   bool                 `json:"overridden,omitempty"`
	RefreshedAt  time.Time            `json:"refreshed_at,omitempty"`
}

// ComputeBalances folds the record store into userID's balance with each
// counterparty, ignoring relationship status and the cache. Counterparties
// whose records cannot be folded are reported in Result.Errors.
func (l *Ledger) ComputeBalances(ctx context.Context, userID string, counterparties []string) (*balance.Result, error) {
	u, err := l.GetUser(ctx, userID)
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
		Counterparties: counterparties,
		Expenses:       expenses,
		Settlements:    settlements,
	})
	return &res, nil
}

// FetchFriends lists userID's friends with their cached balances. It never
// computes: a friend whose balance could not be refreshed is returned with
// its last known value and Stale set.
func (l *Ledger) FetchFriends(ctx context.Context, userID string) ([]FriendWithBalance, error) {
	u, err := l.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rels, err := l.currentRelationships(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap, err := l.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	dirty := l.isDirty(userID)

	currency := u.DefaultCurrency
	if snap != nil {
		currency = snap.Currency
	}

	out := make([]FriendWithBalance, 0, len(rels))
	for _, r := range rels {
		f := FriendWithBalance{
			Relationship: r,
			Balance:      types.Zero(currency),
			Currency:     currency,
		}
		if r.Status.Live() {
			switch {
			case snap != nil:
				f.Balance = snap.Balance(r.FriendID)
				f.Stale = dirty || snap.IsStale(r.FriendID)
				f.Overridden = snap.IsOverridden(r.FriendID)
				f.RefreshedAt = snap.RefreshedAt
			default:
				f.Stale = true
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// UpdateBalance force-sets the cached balance ownerID sees for friendID.
// The value is flagged as overridden and is replaced by the next refresh;
// the record store is not touched.
func (l *Ledger) UpdateBalance(ctx context.Context, ownerID, friendID string, explicit types.Money) error {
	if err := validatePair(ownerID, friendID); err != nil {
		return err
	}
	u, err := l.GetUser(ctx, ownerID)
	if err != nil {
		return err
	}
	explicit.Currency = types.NormalizeCurrency(explicit.Currency)

	unlock, err := l.locker.Lock(ctx, balanceLockKey(ownerID))
	if err != nil {
		return &StoreUnavailableError{Op: "lock balance", Err: err}
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		err = l.overrideOnce(ctx, u.DefaultCurrency, ownerID, friendID, explicit)
		if err == nil || !errors.Is(err, ErrVersionConflict) || attempt >= l.refreshRetries {
			break
		}
	}
	if err != nil {
		return err
	}

	l.logger.Info("balance overridden",
		"owner_id", ownerID,
		"friend_id", friendID,
		"amount", explicit.String(),
	)
	l.plugins.EmitBalanceOverridden(ctx, ownerID, friendID, explicit)
	return nil
}

func (l *Ledger) overrideOnce(ctx context.Context, currency, ownerID, friendID string, explicit types.Money) error {
	prev, err := l.snapshot(ctx, ownerID)
	if err != nil {
		return err
	}

	var next *balance.Snapshot
	var expected int64
	if prev != nil {
		next = prev.Clone()
		expected = prev.Version
	} else {
		next = &balance.Snapshot{
			OwnerID:     ownerID,
			Currency:    currency,
			Balances:    make(map[string]int64),
			RefreshedAt: l.now(),
		}
	}

	if explicit.Currency != next.Currency {
		return invalid(&CurrencyMismatchError{RecordID: "override:" + friendID, Expected: next.Currency, Got: explicit.Currency})
	}

	next.Balances[friendID] = explicit.Amount
	if !slices.Contains(next.Overridden, friendID) {
		next.Overridden = append(next.Overridden, friendID)
	}

	return l.call(ctx, "save snapshot", func(ctx context.Context) error {
		return l.store.SaveSnapshot(ctx, next, expected)
	})
}
