// Package observability provides a metrics extension for SplitLedger that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
	"github.com/xraph/splitledger/user"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnUserRegistered     = (*MetricsExtension)(nil)
	_ plugin.OnLinkRequested      = (*MetricsExtension)(nil)
	_ plugin.OnLinkAccepted       = (*MetricsExtension)(nil)
	_ plugin.OnLinkRemoved        = (*MetricsExtension)(nil)
	_ plugin.OnExpenseCreated     = (*MetricsExtension)(nil)
	_ plugin.OnExpenseUpdated     = (*MetricsExtension)(nil)
	_ plugin.OnExpenseDeleted     = (*MetricsExtension)(nil)
	_ plugin.OnSettlementRecorded = (*MetricsExtension)(nil)
	_ plugin.OnBalancesRefreshed  = (*MetricsExtension)(nil)
	_ plugin.OnRefreshFailed      = (*MetricsExtension)(nil)
	_ plugin.OnBalanceOverridden  = (*MetricsExtension)(nil)
	_ plugin.OnGroupCreated       = (*MetricsExtension)(nil)
	_ plugin.OnGroupMemberAdded   = (*MetricsExtension)(nil)
	_ plugin.OnGroupMemberRemoved = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a SplitLedger plugin to track ledger activity.
type MetricsExtension struct {
	factory MetricFactory

	// User metrics
	UserRegistered Counter

	// Relationship metrics
	LinkRequested Counter
	LinkAccepted  Counter
	LinkRemoved   Counter

	// Record metrics
	ExpenseCreated      Counter
	ExpenseUpdated      Counter
	ExpenseDeleted      Counter
	ExpenseAmount       Histogram
	ExpenseParticipants Histogram
	SettlementRecorded  Counter
	SettlementReversed  Counter
	SettlementAmount    Histogram

	// Balance metrics
	BalancesRefreshed     Counter
	RefreshFailed         Counter
	RefreshLatency        Histogram
	RefreshCounterparties Histogram
	BalanceOverridden     Counter

	// Group metrics
	GroupCreated       Counter
	GroupMemberAdded   Counter
	GroupMemberRemoved Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		UserRegistered: factory.Counter("splitledger.user.registered"),

		LinkRequested: factory.Counter("splitledger.link.requested"),
		LinkAccepted:  factory.Counter("splitledger.link.accepted"),
		LinkRemoved:   factory.Counter("splitledger.link.removed"),

		ExpenseCreated:      factory.Counter("splitledger.expense.created"),
		ExpenseUpdated:      factory.Counter("splitledger.expense.updated"),
		ExpenseDeleted:      factory.Counter("splitledger.expense.deleted"),
		ExpenseAmount:       factory.Histogram("splitledger.expense.amount_minor"),
		ExpenseParticipants: factory.Histogram("splitledger.expense.participants"),
		SettlementRecorded:  factory.Counter("splitledger.settlement.recorded"),
		SettlementReversed:  factory.Counter("splitledger.settlement.reversed"),
		SettlementAmount:    factory.Histogram("splitledger.settlement.amount_minor"),

		BalancesRefreshed:     factory.Counter("splitledger.balance.refreshed"),
		RefreshFailed:         factory.Counter("splitledger.balance.refresh.failed"),
		RefreshLatency:        factory.Histogram("splitledger.balance.refresh.latency_ms"),
		RefreshCounterparties: factory.Histogram("splitledger.balance.refresh.counterparties"),
		BalanceOverridden:     factory.Counter("splitledger.balance.overridden"),

		GroupCreated:       factory.Counter("splitledger.group.created"),
		GroupMemberAdded:   factory.Counter("splitledger.group.member.added"),
		GroupMemberRemoved: factory.Counter("splitledger.group.member.removed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnUserRegistered implements plugin.OnUserRegistered.
func (m *MetricsExtension) OnUserRegistered(_ context.Context, _ *user.User) error {
	m.UserRegistered.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Relationship hooks
// ──────────────────────────────────────────────────

// OnLinkRequested implements plugin.OnLinkRequested.
func (m *MetricsExtension) OnLinkRequested(_ context.Context, _ *friend.Relationship) error {
	m.LinkRequested.Inc()
	return nil
}

// OnLinkAccepted implements plugin.OnLinkAccepted.
func (m *MetricsExtension) OnLinkAccepted(_ context.Context, _ *friend.Relationship) error {
	m.LinkAccepted.Inc()
	return nil
}

// OnLinkRemoved implements plugin.OnLinkRemoved.
func (m *MetricsExtension) OnLinkRemoved(_ context.Context, _ *friend.Relationship) error {
	m.LinkRemoved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Record hooks
// ──────────────────────────────────────────────────

// OnExpenseCreated implements plugin.OnExpenseCreated.
func (m *MetricsExtension) OnExpenseCreated(_ context.Context, e *expense.Expense) error {
	m.ExpenseCreated.Inc()
	m.ExpenseAmount.Observe(float64(e.Amount.Amount))
	m.ExpenseParticipants.Observe(float64(len(e.Splits)))
	return nil
}

// OnExpenseUpdated implements plugin.OnExpenseUpdated.
func (m *MetricsExtension) OnExpenseUpdated(_ context.Context, _, _ *expense.Expense) error {
	m.ExpenseUpdated.Inc()
	return nil
}

// OnExpenseDeleted implements plugin.OnExpenseDeleted.
func (m *MetricsExtension) OnExpenseDeleted(_ context.Context, _ *expense.Expense) error {
	m.ExpenseDeleted.Inc()
	return nil
}

// OnSettlementRecorded implements plugin.OnSettlementRecorded.
func (m *MetricsExtension) OnSettlementRecorded(_ context.Context, s *settlement.Settlement) error {
	if !s.Reverses.IsNil() {
		m.SettlementReversed.Inc()
		return nil
	}
	m.SettlementRecorded.Inc()
	m.SettlementAmount.Observe(float64(s.Amount.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnBalancesRefreshed implements plugin.OnBalancesRefreshed.
func (m *MetricsExtension) OnBalancesRefreshed(_ context.Context, _ string, count int, elapsed time.Duration) error {
	m.BalancesRefreshed.Inc()
	m.RefreshLatency.Observe(float64(elapsed.Milliseconds()))
	m.RefreshCounterparties.Observe(float64(count))
	return nil
}

// OnRefreshFailed implements plugin.OnRefreshFailed.
func (m *MetricsExtension) OnRefreshFailed(_ context.Context, _ string, _ error) error {
	m.RefreshFailed.Inc()
	return nil
}

// OnBalanceOverridden implements plugin.OnBalanceOverridden.
func (m *MetricsExtension) OnBalanceOverridden(_ context.Context, _, _ string, _ types.Money) error {
	m.BalanceOverridden.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Group hooks
// ──────────────────────────────────────────────────

// OnGroupCreated implements plugin.OnGroupCreated.
func (m *MetricsExtension) OnGroupCreated(_ context.Context, _ *group.Group) error {
	m.GroupCreated.Inc()
	return nil
}

// OnGroupMemberAdded implements plugin.OnGroupMemberAdded.
func (m *MetricsExtension) OnGroupMemberAdded(_ context.Context, _, _ string) error {
	m.GroupMemberAdded.Inc()
	return nil
}

// OnGroupMemberRemoved implements plugin.OnGroupMemberRemoved.
func (m *MetricsExtension) OnGroupMemberRemoved(_ context.Context, _, _ string) error {
	m.GroupMemberRemoved.Inc()
	return nil
}
