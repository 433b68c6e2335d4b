package audithook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*AuditEvent
}

func (r *memRecorder) Record(_ context.Context, evt *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func TestSettlementReversalIsAudited(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := New(rec)

	orig := &settlement.Settlement{
		ID:      id.NewSettlementID(),
		PayerID: "bob",
		PayeeID: "alice",
		Amount:  types.USD(1000),
	}
	rev := &settlement.Settlement{
		ID:       id.NewSettlementID(),
		PayerID:  "alice",
		PayeeID:  "bob",
		Amount:   types.USD(1000),
		Reverses: orig.ID,
	}
	_ = ext.OnSettlementRecorded(ctx, orig)
	_ = ext.OnSettlementRecorded(ctx, rev)

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	first, second := rec.events[0], rec.events[1]
	if first.Action != ActionSettlementRecorded || first.Severity != SeverityInfo {
		t.Errorf("first: got %s/%s", first.Action, first.Severity)
	}
	if second.Action != ActionSettlementReversed || second.Severity != SeverityWarning {
		t.Errorf("second: got %s/%s", second.Action, second.Severity)
	}
	if second.Metadata["reverses"] != orig.ID.String() {
		t.Errorf("reverses: got %v", second.Metadata["reverses"])
	}
	if second.ResourceID != rev.ID.String() {
		t.Errorf("resource id: got %s", second.ResourceID)
	}
}

func TestExpenseAndLinkMetadata(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := New(rec)

	exp := &expense.Expense{
		ID:        id.NewExpenseID(),
		PayerID:   "alice",
		Amount:    types.USD(3000),
		CreatedBy: "alice",
		Splits: []expense.Split{
			{UserID: "alice", Owed: types.USD(1500)},
			{UserID: "bob", Owed: types.USD(1500)},
		},
	}
	_ = ext.OnExpenseCreated(ctx, exp)

	rel := &friend.Relationship{
		ID:          id.NewRelationshipID(),
		OwnerID:     "alice",
		FriendID:    "bob",
		Status:      friend.StatusRemoved,
		RequestedBy: "alice",
	}
	_ = ext.OnLinkRemoved(ctx, rel)

	ev := rec.events[0]
	if ev.Metadata["amount"] != int64(3000) || ev.Metadata["participants"] != 2 || ev.Metadata["actor"] != "alice" {
		t.Errorf("expense metadata: %v", ev.Metadata)
	}
	if _, ok := ev.Metadata["group_id"]; ok {
		t.Error("group_id should be omitted for non-group expenses")
	}

	ev = rec.events[1]
	if ev.Action != ActionLinkRemoved || ev.Metadata["status"] != "removed" {
		t.Errorf("link event: %s %v", ev.Action, ev.Metadata)
	}
}

func TestRefreshFailureCarriesReason(t *testing.T) {
	rec := &memRecorder{}
	ext := New(rec)

	_ = ext.OnRefreshFailed(context.Background(), "bob", errors.New("store unavailable"))

	ev := rec.events[0]
	if ev.Outcome != OutcomeFailure || ev.Severity != SeverityError {
		t.Errorf("got %s/%s", ev.Outcome, ev.Severity)
	}
	if ev.Reason != "store unavailable" || ev.ResourceID != "bob" {
		t.Errorf("got reason %q resource %q", ev.Reason, ev.ResourceID)
	}
}

func TestActionFiltering(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{"all enabled", nil, []string{ActionGroupMemberAdded, ActionGroupMemberRemoved}},
		{"enabled subset", []Option{WithEnabledActions(ActionGroupMemberRemoved)}, []string{ActionGroupMemberRemoved}},
		{"disabled", []Option{WithDisabledActions(ActionGroupMemberRemoved)}, []string{ActionGroupMemberAdded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			ext := New(rec, tt.opts...)
			_ = ext.OnGroupMemberAdded(ctx, "grp_1", "carol")
			_ = ext.OnGroupMemberRemoved(ctx, "grp_1", "carol")

			got := rec.actions()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event %d: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("sink down")
	}), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := ext.OnGroupMemberAdded(context.Background(), "grp_1", "carol"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
