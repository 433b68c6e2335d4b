package splitledger

import (
	"context"
	"slices"
	"strings"

	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
)

// CreateGroup stores a new group. Every initial member must be registered.
func (l *Ledger) CreateGroup(ctx context.Context, g *group.Group) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return ValidationError{Field: "name", Message: "is required"}
	}
	g.Currency = types.NormalizeCurrency(g.Currency)
	if !types.ValidCurrency(g.Currency) {
		return ValidationError{Field: "currency", Message: "must be a three-letter ISO 4217 code"}
	}

	members := g.Members
	g.Members = nil
	for _, m := range members {
		g.AddMember(m)
	}
	if err := l.requireUsers(ctx, g.Members...); err != nil {
		return err
	}

	if g.ID.IsNil() {
		g.ID = id.NewGroupID()
	}
	now := l.now()
	g.Entity = types.Entity{CreatedAt: now, UpdatedAt: now}

	if err := l.call(ctx, "create group", func(ctx context.Context) error {
		return l.store.CreateGroup(ctx, g)
	}); err != nil {
		return err
	}

	l.plugins.EmitGroupCreated(ctx, g)
	return nil
}

// GetGroup retrieves a group by ID.
func (l *Ledger) GetGroup(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	return fetch(l, ctx, "get group", func(ctx context.Context) (*group.Group, error) {
		return l.store.GetGroup(ctx, groupID)
	})
}

// ListGroups returns the groups userID belongs to.
func (l *Ledger) ListGroups(ctx context.Context, userID string, opts group.ListOpts) ([]*group.Group, error) {
	return fetch(l, ctx, "list groups", func(ctx context.Context) ([]*group.Group, error) {
		return l.store.ListGroups(ctx, userID, opts)
	})
}

func (l *Ledger) lockGroup(ctx context.Context, groupID id.GroupID) (func(), error) {
	unlock, err := l.locker.Lock(ctx, "group:"+groupID.String())
	if err != nil {
		return nil, &StoreUnavailableError{Op: "lock group", Err: err}
	}
	return unlock, nil
}

// lockGroups takes the group lock of every non-nil ID in ID order. Group
// record writes hold it so a member cannot leave between the membership
// check and the write.
func (l *Ledger) lockGroups(ctx context.Context, groupIDs ...id.GroupID) (func(), error) {
	var keys []string
	byKey := make(map[string]id.GroupID)
	for _, g := range groupIDs {
		if g.IsNil() {
			continue
		}
		if _, ok := byKey[g.String()]; !ok {
			byKey[g.String()] = g
			keys = append(keys, g.String())
		}
	}
	slices.Sort(keys)

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, k := range keys {
		unlock, err := l.lockGroup(ctx, byKey[k])
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

// checkStillMembers refuses to touch a stored group record once one of
// the users on it has left the group. Changing it would move a position
// that no longer counts toward the group total.
func (l *Ledger) checkStillMembers(ctx context.Context, groupID id.GroupID, users ...string) error {
	if groupID.IsNil() {
		return nil
	}
	g, err := l.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, u := range users {
		if !g.HasMember(u) {
			return ErrNotGroupMember
		}
	}
	return nil
}

// AddGroupMember adds a registered user to a group. Adding an existing
// member is a no-op.
func (l *Ledger) AddGroupMember(ctx context.Context, groupID id.GroupID, userID string) error {
	if err := l.requireUsers(ctx, userID); err != nil {
		return err
	}

	unlock, err := l.lockGroup(ctx, groupID)
	if err != nil {
		return err
	}
	defer unlock()

	g, err := l.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.AddMember(userID) {
		return nil
	}
	g.UpdatedAt = l.now()

	if err := l.call(ctx, "update group", func(ctx context.Context) error {
		return l.store.UpdateGroup(ctx, g)
	}); err != nil {
		return err
	}

	l.plugins.EmitGroupMemberAdded(ctx, groupID.String(), userID)
	return nil
}

// RemoveGroupMember drops a member whose position in the group is
// settled. A member who still owes or is owed cannot leave, since the
// remaining positions would no longer add up to zero.
func (l *Ledger) RemoveGroupMember(ctx context.Context, groupID id.GroupID, userID string) error {
	unlock, err := l.lockGroup(ctx, groupID)
	if err != nil {
		return err
	}
	defer unlock()

	g, err := l.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(userID) {
		return ErrNotGroupMember
	}

	positions, err := l.groupPositions(ctx, g)
	if err != nil {
		return err
	}
	if !positions[userID].IsZero() {
		return ErrMemberHasBalance
	}

	g.RemoveMember(userID)
	g.UpdatedAt = l.now()
	if err := l.call(ctx, "update group", func(ctx context.Context) error {
		return l.store.UpdateGroup(ctx, g)
	}); err != nil {
		return err
	}

	l.plugins.EmitGroupMemberRemoved(ctx, groupID.String(), userID)
	return nil
}

// GroupBalances returns each current member's net position in the group.
// Positions add up to zero.
func (l *Ledger) GroupBalances(ctx context.Context, groupID id.GroupID) (map[string]types.Money, error) {
	g, err := l.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return l.groupPositions(ctx, g)
}

// SimplifyGroupDebts suggests a short list of payments that would settle
// the group.
func (l *Ledger) SimplifyGroupDebts(ctx context.Context, groupID id.GroupID) ([]balance.Transfer, error) {
	positions, err := l.GroupBalances(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return balance.Simplify(positions), nil
}

func (l *Ledger) groupPositions(ctx context.Context, g *group.Group) (map[string]types.Money, error) {
	expenses, err := l.ListExpenses(ctx, expense.Filter{GroupID: g.ID})
	if err != nil {
		return nil, err
	}
	settlements, err := l.ListSettlements(ctx, settlement.Filter{GroupID: g.ID})
	if err != nil {
		return nil, err
	}

	return balance.Group(balance.GroupInput{
		GroupID:     g.ID.String(),
		Currency:    g.Currency,
		Members:     g.Members,
		Expenses:    expenses,
		Settlements: settlements,
	})
}
