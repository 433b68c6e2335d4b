// Package plugin provides lifecycle hooks for SplitLedger.
// Plugins implement any subset of the hook interfaces below and are
// dispatched by type after every committed mutation.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
	"github.com/xraph/splitledger/user"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

type OnUserRegistered interface {
	Plugin
	OnUserRegistered(ctx context.Context, u *user.User) error
}

// ──────────────────────────────────────────────────
// Relationship hooks
// ──────────────────────────────────────────────────

// OnLinkRequested receives the requester's row of a new pending link.
type OnLinkRequested interface {
	Plugin
	OnLinkRequested(ctx context.Context, r *friend.Relationship) error
}

type OnLinkAccepted interface {
	Plugin
	OnLinkAccepted(ctx context.Context, r *friend.Relationship) error
}

type OnLinkRemoved interface {
	Plugin
	OnLinkRemoved(ctx context.Context, r *friend.Relationship) error
}

// ──────────────────────────────────────────────────
// Record hooks
// ──────────────────────────────────────────────────

type OnExpenseCreated interface {
	Plugin
	OnExpenseCreated(ctx context.Context, e *expense.Expense) error
}

type OnExpenseUpdated interface {
	Plugin
	OnExpenseUpdated(ctx context.Context, old, updated *expense.Expense) error
}

type OnExpenseDeleted interface {
	Plugin
	OnExpenseDeleted(ctx context.Context, e *expense.Expense) error
}

// OnSettlementRecorded fires for new settlements and for compensating
// ones; the latter have Reverses set.
type OnSettlementRecorded interface {
	Plugin
	OnSettlementRecorded(ctx context.Context, s *settlement.Settlement) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnBalancesRefreshed is called after a snapshot is rewritten.
type OnBalancesRefreshed interface {
	Plugin
	OnBalancesRefreshed(ctx context.Context, userID string, count int, elapsed time.Duration) error
}

// OnRefreshFailed is called when a snapshot could not be rewritten and
// the user was marked for reconciliation.
type OnRefreshFailed interface {
	Plugin
	OnRefreshFailed(ctx context.Context, userID string, err error) error
}

type OnBalanceOverridden interface {
	Plugin
	OnBalanceOverridden(ctx context.Context, ownerID, friendID string, amount types.Money) error
}

// ──────────────────────────────────────────────────
// Group hooks
// ──────────────────────────────────────────────────

type OnGroupCreated interface {
	Plugin
	OnGroupCreated(ctx context.Context, g *group.Group) error
}

type OnGroupMemberAdded interface {
	Plugin
	OnGroupMemberAdded(ctx context.Context, groupID, userID string) error
}

type OnGroupMemberRemoved interface {
	Plugin
	OnGroupMemberRemoved(ctx context.Context, groupID, userID string) error
}
