// Package memory is an in-process store for tests and single-node use.
// Records are copied on the way in and out so callers never share state
// with the store.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/store"
	"github.com/xraph/splitledger/user"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	users         map[string]*user.User
	relationships map[string]*friend.Relationship
	expenses      map[string]*expense.Expense
	settlements   map[string]*settlement.Settlement
	groups        map[string]*group.Group
	snapshots     map[string]*balance.Snapshot
}

func New() *Store {
	return &Store{
		users:         make(map[string]*user.User),
		relationships: make(map[string]*friend.Relationship),
		expenses:      make(map[string]*expense.Expense),
		settlements:   make(map[string]*settlement.Settlement),
		groups:        make(map[string]*group.Group),
		snapshots:     make(map[string]*balance.Snapshot),
	}
}

// ──────────────────────────────────────────────────
// Users
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return splitledger.ErrAlreadyExists
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[userID]; ok {
		return copyUser(u), nil
	}
	return nil, splitledger.ErrUserNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; !exists {
		return splitledger.ErrUserNotFound
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func copyUser(u *user.User) *user.User {
	c := *u
	c.Metadata = maps.Clone(u.Metadata)
	return &c
}

// ──────────────────────────────────────────────────
// Relationships
// ──────────────────────────────────────────────────

func (s *Store) CreateRelationship(_ context.Context, r *friend.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.relationships[r.ID.String()]; exists {
		return splitledger.ErrAlreadyExists
	}
	c := *r
	s.relationships[r.ID.String()] = &c
	return nil
}

func (s *Store) GetRelationship(_ context.Context, ownerID, friendID string) (*friend.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pair []*friend.Relationship
	for _, r := range s.relationships {
		if r.OwnerID == ownerID && r.FriendID == friendID {
			pair = append(pair, r)
		}
	}
	if len(pair) == 0 {
		return nil, splitledger.ErrRelationshipNotFound
	}
	c := *friend.Latest(pair)[0]
	return &c, nil
}

func (s *Store) ListRelationships(_ context.Context, ownerID string, opts friend.ListOpts) ([]*friend.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*friend.Relationship, 0)
	for _, r := range s.relationships {
		if r.OwnerID != ownerID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		c := *r
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdateRelationshipStatus(_ context.Context, relID id.RelationshipID, from, to friend.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.relationships[relID.String()]
	if !ok {
		return splitledger.ErrRelationshipNotFound
	}
	if r.Status != from {
		return splitledger.ErrStatusConflict
	}
	r.Status = to
	r.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Expenses
// ──────────────────────────────────────────────────

func (s *Store) CreateExpense(_ context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[e.ID.String()]; exists {
		return splitledger.ErrAlreadyExists
	}
	s.expenses[e.ID.String()] = copyExpense(e)
	return nil
}

func (s *Store) GetExpense(_ context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.expenses[expenseID.String()]; ok {
		return copyExpense(e), nil
	}
	return nil, splitledger.ErrExpenseNotFound
}

func (s *Store) UpdateExpense(_ context.Context, e *expense.Expense, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.expenses[e.ID.String()]
	if !ok {
		return splitledger.ErrExpenseNotFound
	}
	if cur.Version != expectedVersion {
		return splitledger.ErrVersionConflict
	}
	c := copyExpense(e)
	c.Version = expectedVersion + 1
	s.expenses[e.ID.String()] = c
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, expenseID id.ExpenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[expenseID.String()]; !ok {
		return splitledger.ErrExpenseNotFound
	}
	delete(s.expenses, expenseID.String())
	return nil
}

func (s *Store) ListExpenses(_ context.Context, f expense.Filter) ([]*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*expense.Expense, 0)
	for _, e := range s.expenses {
		if f.Matches(e) {
			result = append(result, copyExpense(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return page(result, f.Limit, f.Offset), nil
}

func copyExpense(e *expense.Expense) *expense.Expense {
	c := *e
	c.Splits = slices.Clone(e.Splits)
	c.Metadata = maps.Clone(e.Metadata)
	return &c
}

// ──────────────────────────────────────────────────
// Settlements
// ──────────────────────────────────────────────────

func (s *Store) CreateSettlement(_ context.Context, st *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.settlements[st.ID.String()]; exists {
		return splitledger.ErrAlreadyExists
	}
	// At most one compensation per settlement.
	if !st.Reverses.IsNil() {
		for _, other := range s.settlements {
			if other.Reverses.String() == st.Reverses.String() {
				return splitledger.ErrAlreadyExists
			}
		}
	}
	c := *st
	s.settlements[st.ID.String()] = &c
	return nil
}

func (s *Store) GetSettlement(_ context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.settlements[settlementID.String()]; ok {
		c := *st
		return &c, nil
	}
	return nil, splitledger.ErrSettlementNotFound
}

func (s *Store) ListSettlements(_ context.Context, f settlement.Filter) ([]*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*settlement.Settlement, 0)
	for _, st := range s.settlements {
		if f.Matches(st) {
			c := *st
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return page(result, f.Limit, f.Offset), nil
}

// ──────────────────────────────────────────────────
// Groups
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID.String()]; exists {
		return splitledger.ErrAlreadyExists
	}
	s.groups[g.ID.String()] = copyGroup(g)
	return nil
}

func (s *Store) GetGroup(_ context.Context, groupID id.GroupID) (*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if g, ok := s.groups[groupID.String()]; ok {
		return copyGroup(g), nil
	}
	return nil, splitledger.ErrGroupNotFound
}

func (s *Store) UpdateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID.String()]; !exists {
		return splitledger.ErrGroupNotFound
	}
	s.groups[g.ID.String()] = copyGroup(g)
	return nil
}

func (s *Store) ListGroups(_ context.Context, memberID string, opts group.ListOpts) ([]*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*group.Group, 0)
	for _, g := range s.groups {
		if memberID == "" || g.HasMember(memberID) {
			result = append(result, copyGroup(g))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return page(result, opts.Limit, opts.Offset), nil
}

func copyGroup(g *group.Group) *group.Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	c.Metadata = maps.Clone(g.Metadata)
	return &c
}

// ──────────────────────────────────────────────────
// Balance snapshots
// ──────────────────────────────────────────────────

func (s *Store) GetSnapshot(_ context.Context, ownerID string) (*balance.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, ok := s.snapshots[ownerID]; ok {
		return snap.Clone(), nil
	}
	return nil, splitledger.ErrSnapshotNotFound
}

func (s *Store) SaveSnapshot(_ context.Context, snap *balance.Snapshot, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.snapshots[snap.OwnerID]
	switch {
	case expectedVersion == 0 && exists:
		return splitledger.ErrVersionConflict
	case expectedVersion != 0 && (!exists || cur.Version != expectedVersion):
		return splitledger.ErrVersionConflict
	}

	snap.Version = expectedVersion + 1
	s.snapshots[snap.OwnerID] = snap.Clone()
	return nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func page[T any](items []T, limit, offset int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
