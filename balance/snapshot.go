package balance

import (
	"context"
	"slices"
	"time"

	"github.com/xraph/splitledger/types"
)

// Snapshot is the materialized balance cache of one user. It is derived
// data: the split records stay the source of truth and a refresh rebuilds
// it from scratch.
type Snapshot struct {
	OwnerID     string           `json:"owner_id"`
	Currency    string           `json:"currency"`
	Balances    map[string]int64 `json:"balances"`
	Stale       []string         `json:"stale,omitempty"`
	Overridden  []string         `json:"overridden,omitempty"`
	Version     int64            `json:"version"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// Balance returns the cached amount for friendID. A friend without an
// entry has a zero balance.
func (s *Snapshot) Balance(friendID string) types.Money {
	return types.Money{Amount: s.Balances[friendID], Currency: s.Currency}
}

func (s *Snapshot) IsStale(friendID string) bool {
	return slices.Contains(s.Stale, friendID)
}

func (s *Snapshot) IsOverridden(friendID string) bool {
	return slices.Contains(s.Overridden, friendID)
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Balances = make(map[string]int64, len(s.Balances))
	for k, v := range s.Balances {
		c.Balances[k] = v
	}
	c.Stale = slices.Clone(s.Stale)
	c.Overridden = slices.Clone(s.Overridden)
	return &c
}

// Store persists snapshots. SaveSnapshot is a compare-and-set on Version:
// expectedVersion 0 inserts a new snapshot, anything else replaces the
// stored one only if its version still matches. On success the stored
// version is expectedVersion+1 and snap.Version is updated to it.
type Store interface {
	GetSnapshot(ctx context.Context, ownerID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *Snapshot, expectedVersion int64) error
}
