// Package audithook bridges SplitLedger lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
	"github.com/xraph/splitledger/user"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnUserRegistered     = (*Extension)(nil)
	_ plugin.OnLinkRequested      = (*Extension)(nil)
	_ plugin.OnLinkAccepted       = (*Extension)(nil)
	_ plugin.OnLinkRemoved        = (*Extension)(nil)
	_ plugin.OnExpenseCreated     = (*Extension)(nil)
	_ plugin.OnExpenseUpdated     = (*Extension)(nil)
	_ plugin.OnExpenseDeleted     = (*Extension)(nil)
	_ plugin.OnSettlementRecorded = (*Extension)(nil)
	_ plugin.OnBalanceOverridden  = (*Extension)(nil)
	_ plugin.OnRefreshFailed      = (*Extension)(nil)
	_ plugin.OnGroupCreated       = (*Extension)(nil)
	_ plugin.OnGroupMemberAdded   = (*Extension)(nil)
	_ plugin.OnGroupMemberRemoved = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single entry in the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges SplitLedger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnUserRegistered implements plugin.OnUserRegistered.
func (e *Extension) OnUserRegistered(ctx context.Context, u *user.User) error {
	return e.record(ctx, ActionUserRegistered, SeverityInfo, OutcomeSuccess,
		ResourceUser, u.ID, CategoryAccount, nil,
		"default_currency", u.DefaultCurrency,
	)
}

// ──────────────────────────────────────────────────
// Relationship hooks
// ──────────────────────────────────────────────────

// OnLinkRequested implements plugin.OnLinkRequested.
func (e *Extension) OnLinkRequested(ctx context.Context, r *friend.Relationship) error {
	return e.recordLink(ctx, ActionLinkRequested, r)
}

// OnLinkAccepted implements plugin.OnLinkAccepted.
func (e *Extension) OnLinkAccepted(ctx context.Context, r *friend.Relationship) error {
	return e.recordLink(ctx, ActionLinkAccepted, r)
}

// OnLinkRemoved implements plugin.OnLinkRemoved.
func (e *Extension) OnLinkRemoved(ctx context.Context, r *friend.Relationship) error {
	return e.recordLink(ctx, ActionLinkRemoved, r)
}

func (e *Extension) recordLink(ctx context.Context, action string, r *friend.Relationship) error {
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceRelationship, r.ID.String(), CategorySocial, nil,
		"owner_id", r.OwnerID,
		"friend_id", r.FriendID,
		"status", string(r.Status),
		"requested_by", r.RequestedBy,
	)
}

// ──────────────────────────────────────────────────
// Record hooks
// ──────────────────────────────────────────────────

// OnExpenseCreated implements plugin.OnExpenseCreated.
func (e *Extension) OnExpenseCreated(ctx context.Context, exp *expense.Expense) error {
	return e.record(ctx, ActionExpenseCreated, SeverityInfo, OutcomeSuccess,
		ResourceExpense, exp.ID.String(), CategoryRecord, nil,
		expenseFields(exp)...,
	)
}

// OnExpenseUpdated implements plugin.OnExpenseUpdated.
func (e *Extension) OnExpenseUpdated(ctx context.Context, old, updated *expense.Expense) error {
	kv := append(expenseFields(updated),
		"previous_amount", old.Amount.Amount,
		"previous_payer_id", old.PayerID,
		"version", updated.Version,
	)
	return e.record(ctx, ActionExpenseUpdated, SeverityInfo, OutcomeSuccess,
		ResourceExpense, updated.ID.String(), CategoryRecord, nil,
		kv...,
	)
}

// OnExpenseDeleted implements plugin.OnExpenseDeleted.
func (e *Extension) OnExpenseDeleted(ctx context.Context, exp *expense.Expense) error {
	return e.record(ctx, ActionExpenseDeleted, SeverityWarning, OutcomeSuccess,
		ResourceExpense, exp.ID.String(), CategoryRecord, nil,
		expenseFields(exp)...,
	)
}

// OnSettlementRecorded implements plugin.OnSettlementRecorded.
// Compensating settlements are audited as reversals.
func (e *Extension) OnSettlementRecorded(ctx context.Context, s *settlement.Settlement) error {
	action, severity := ActionSettlementRecorded, SeverityInfo
	kv := []any{
		"payer_id", s.PayerID,
		"payee_id", s.PayeeID,
		"amount", s.Amount.Amount,
		"currency", s.Amount.Currency,
	}
	if !s.Reverses.IsNil() {
		action, severity = ActionSettlementReversed, SeverityWarning
		kv = append(kv, "reverses", s.Reverses.String())
	}
	if !s.GroupID.IsNil() {
		kv = append(kv, "group_id", s.GroupID.String())
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceSettlement, s.ID.String(), CategoryPayment, nil,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnBalanceOverridden implements plugin.OnBalanceOverridden.
func (e *Extension) OnBalanceOverridden(ctx context.Context, ownerID, friendID string, amount types.Money) error {
	return e.record(ctx, ActionBalanceOverridden, SeverityWarning, OutcomeSuccess,
		ResourceBalance, ownerID, CategoryBalance, nil,
		"friend_id", friendID,
		"amount", amount.Amount,
		"currency", amount.Currency,
	)
}

// OnRefreshFailed implements plugin.OnRefreshFailed.
func (e *Extension) OnRefreshFailed(ctx context.Context, userID string, err error) error {
	return e.record(ctx, ActionRefreshFailed, SeverityError, OutcomeFailure,
		ResourceBalance, userID, CategoryBalance, err,
	)
}

// ──────────────────────────────────────────────────
// Group hooks
// ──────────────────────────────────────────────────

// OnGroupCreated implements plugin.OnGroupCreated.
func (e *Extension) OnGroupCreated(ctx context.Context, g *group.Group) error {
	return e.record(ctx, ActionGroupCreated, SeverityInfo, OutcomeSuccess,
		ResourceGroup, g.ID.String(), CategorySocial, nil,
		"name", g.Name,
		"currency", g.Currency,
		"members", len(g.Members),
	)
}

// OnGroupMemberAdded implements plugin.OnGroupMemberAdded.
func (e *Extension) OnGroupMemberAdded(ctx context.Context, groupID, userID string) error {
	return e.record(ctx, ActionGroupMemberAdded, SeverityInfo, OutcomeSuccess,
		ResourceGroup, groupID, CategorySocial, nil,
		"user_id", userID,
	)
}

// OnGroupMemberRemoved implements plugin.OnGroupMemberRemoved.
func (e *Extension) OnGroupMemberRemoved(ctx context.Context, groupID, userID string) error {
	return e.record(ctx, ActionGroupMemberRemoved, SeverityInfo, OutcomeSuccess,
		ResourceGroup, groupID, CategorySocial, nil,
		"user_id", userID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func expenseFields(exp *expense.Expense) []any {
	kv := []any{
		"payer_id", exp.PayerID,
		"amount", exp.Amount.Amount,
		"currency", exp.Amount.Currency,
		"participants", len(exp.Splits),
	}
	if !exp.GroupID.IsNil() {
		kv = append(kv, "group_id", exp.GroupID.String())
	}
	if exp.CreatedBy != "" {
		kv = append(kv, "actor", exp.CreatedBy)
	}
	return kv
}

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged and swallowed.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
