package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
	"github.com/xraph/splitledger/user"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages registered plugins. Hook implementations are cached by
// type at registration so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit               []OnInit
	onShutdown           []OnShutdown
	onUserRegistered     []OnUserRegistered
	onLinkRequested      []OnLinkRequested
	onLinkAccepted       []OnLinkAccepted
	onLinkRemoved        []OnLinkRemoved
	onExpenseCreated     []OnExpenseCreated
	onExpenseUpdated     []OnExpenseUpdated
	onExpenseDeleted     []OnExpenseDeleted
	onSettlementRecorded []OnSettlementRecorded
	onBalancesRefreshed  []OnBalancesRefreshed
	onRefreshFailed      []OnRefreshFailed
	onBalanceOverridden  []OnBalanceOverridden
	onGroupCreated       []OnGroupCreated
	onGroupMemberAdded   []OnGroupMemberAdded
	onGroupMemberRemoved []OnGroupMemberRemoved
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin and caches the hooks it implements.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnUserRegistered); ok {
		r.onUserRegistered = append(r.onUserRegistered, v)
		hooks = append(hooks, "OnUserRegistered")
	}
	if v, ok := p.(OnLinkRequested); ok {
		r.onLinkRequested = append(r.onLinkRequested, v)
		hooks = append(hooks, "OnLinkRequested")
	}
	if v, ok := p.(OnLinkAccepted); ok {
		r.onLinkAccepted = append(r.onLinkAccepted, v)
		hooks = append(hooks, "OnLinkAccepted")
	}
	if v, ok := p.(OnLinkRemoved); ok {
		r.onLinkRemoved = append(r.onLinkRemoved, v)
		hooks = append(hooks, "OnLinkRemoved")
	}
	if v, ok := p.(OnExpenseCreated); ok {
		r.onExpenseCreated = append(r.onExpenseCreated, v)
		hooks = append(hooks, "OnExpenseCreated")
	}
	if v, ok := p.(OnExpenseUpdated); ok {
		r.onExpenseUpdated = append(r.onExpenseUpdated, v)
		hooks = append(hooks, "OnExpenseUpdated")
	}
	if v, ok := p.(OnExpenseDeleted); ok {
		r.onExpenseDeleted = append(r.onExpenseDeleted, v)
		hooks = append(hooks, "OnExpenseDeleted")
	}
	if v, ok := p.(OnSettlementRecorded); ok {
		r.onSettlementRecorded = append(r.onSettlementRecorded, v)
		hooks = append(hooks, "OnSettlementRecorded")
	}
	if v, ok := p.(OnBalancesRefreshed); ok {
		r.onBalancesRefreshed = append(r.onBalancesRefreshed, v)
		hooks = append(hooks, "OnBalancesRefreshed")
	}
	if v, ok := p.(OnRefreshFailed); ok {
		r.onRefreshFailed = append(r.onRefreshFailed, v)
		hooks = append(hooks, "OnRefreshFailed")
	}
	if v, ok := p.(OnBalanceOverridden); ok {
		r.onBalanceOverridden = append(r.onBalanceOverridden, v)
		hooks = append(hooks, "OnBalanceOverridden")
	}
	if v, ok := p.(OnGroupCreated); ok {
		r.onGroupCreated = append(r.onGroupCreated, v)
		hooks = append(hooks, "OnGroupCreated")
	}
	if v, ok := p.(OnGroupMemberAdded); ok {
		r.onGroupMemberAdded = append(r.onGroupMemberAdded, v)
		hooks = append(hooks, "OnGroupMemberAdded")
	}
	if v, ok := p.(OnGroupMemberRemoved); ok {
		r.onGroupMemberRemoved = append(r.onGroupMemberRemoved, v)
		hooks = append(hooks, "OnGroupMemberRemoved")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// dispatch calls fn for every plugin in hooks. Hook failures are logged,
// never returned: a plugin cannot fail a committed mutation.
func dispatch[T Plugin](r *Registry, ctx context.Context, hook string, hooks *[]T, fn func(T) error) {
	r.mu.RLock()
	plugins := *hooks
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	dispatch(r, ctx, "OnInit", &r.onInit, func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(r, ctx, "OnShutdown", &r.onShutdown, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitUserRegistered(ctx context.Context, u *user.User) {
	dispatch(r, ctx, "OnUserRegistered", &r.onUserRegistered, func(p OnUserRegistered) error {
		return p.OnUserRegistered(ctx, u)
	})
}

func (r *Registry) EmitLinkRequested(ctx context.Context, rel *friend.Relationship) {
	dispatch(r, ctx, "OnLinkRequested", &r.onLinkRequested, func(p OnLinkRequested) error {
		return p.OnLinkRequested(ctx, rel)
	})
}

func (r *Registry) EmitLinkAccepted(ctx context.Context, rel *friend.Relationship) {
	dispatch(r, ctx, "OnLinkAccepted", &r.onLinkAccepted, func(p OnLinkAccepted) error {
		return p.OnLinkAccepted(ctx, rel)
	})
}

func (r *Registry) EmitLinkRemoved(ctx context.Context, rel *friend.Relationship) {
	dispatch(r, ctx, "OnLinkRemoved", &r.onLinkRemoved, func(p OnLinkRemoved) error {
		return p.OnLinkRemoved(ctx, rel)
	})
}

func (r *Registry) EmitExpenseCreated(ctx context.Context, e *expense.Expense) {
	dispatch(r, ctx, "OnExpenseCreated", &r.onExpenseCreated, func(p OnExpenseCreated) error {
		return p.OnExpenseCreated(ctx, e)
	})
}

func (r *Registry) EmitExpenseUpdated(ctx context.Context, old, updated *expense.Expense) {
	dispatch(r, ctx, "OnExpenseUpdated", &r.onExpenseUpdated, func(p OnExpenseUpdated) error {
		return p.OnExpenseUpdated(ctx, old, updated)
	})
}

func (r *Registry) EmitExpenseDeleted(ctx context.Context, e *expense.Expense) {
	dispatch(r, ctx, "OnExpenseDeleted", &r.onExpenseDeleted, func(p OnExpenseDeleted) error {
		return p.OnExpenseDeleted(ctx, e)
	})
}

func (r *Registry) EmitSettlementRecorded(ctx context.Context, s *settlement.Settlement) {
	dispatch(r, ctx, "OnSettlementRecorded", &r.onSettlementRecorded, func(p OnSettlementRecorded) error {
		return p.OnSettlementRecorded(ctx, s)
	})
}

func (r *Registry) EmitBalancesRefreshed(ctx context.Context, userID string, count int, elapsed time.Duration) {
	dispatch(r, ctx, "OnBalancesRefreshed", &r.onBalancesRefreshed, func(p OnBalancesRefreshed) error {
		return p.OnBalancesRefreshed(ctx, userID, count, elapsed)
	})
}

func (r *Registry) EmitRefreshFailed(ctx context.Context, userID string, err error) {
	dispatch(r, ctx, "OnRefreshFailed", &r.onRefreshFailed, func(p OnRefreshFailed) error {
		return p.OnRefreshFailed(ctx, userID, err)
	})
}

func (r *Registry) EmitBalanceOverridden(ctx context.Context, ownerID, friendID string, amount types.Money) {
	dispatch(r, ctx, "OnBalanceOverridden", &r.onBalanceOverridden, func(p OnBalanceOverridden) error {
		return p.OnBalanceOverridden(ctx, ownerID, friendID, amount)
	})
}

func (r *Registry) EmitGroupCreated(ctx context.Context, g *group.Group) {
	dispatch(r, ctx, "OnGroupCreated", &r.onGroupCreated, func(p OnGroupCreated) error {
		return p.OnGroupCreated(ctx, g)
	})
}

func (r *Registry) EmitGroupMemberAdded(ctx context.Context, groupID, userID string) {
	dispatch(r, ctx, "OnGroupMemberAdded", &r.onGroupMemberAdded, func(p OnGroupMemberAdded) error {
		return p.OnGroupMemberAdded(ctx, groupID, userID)
	})
}

func (r *Registry) EmitGroupMemberRemoved(ctx context.Context, groupID, userID string) {
	dispatch(r, ctx, "OnGroupMemberRemoved", &r.onGroupMemberRemoved, func(p OnGroupMemberRemoved) error {
		return p.OnGroupMemberRemoved(ctx, groupID, userID)
	})
}

// callWithTimeout runs a hook with a deadline so a slow plugin cannot
// stall the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
