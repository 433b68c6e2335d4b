// Package friend holds the relationship directory: directed friend
// relationships and the state machine that gates balance visibility.
package friend

import (
	"fmt"
	"sort"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusLinked  Status = "linked"
	StatusRemoved Status = "removed"
)

// ParseStatus converts a stored value into a Status. There is no implicit
// default: an empty or unknown value is an error.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusLinked, StatusRemoved:
		return Status(s), nil
	default:
		return "", fmt.Errorf("friend: unknown relationship status %q", s)
	}
}

// NormalizeLegacyStatus maps a status from a legacy import. Records written
// before statuses existed carry none and are treated as linked; defaulted
// reports when that happened so the caller can flag it.
func NormalizeLegacyStatus(s string) (status Status, defaulted bool, err error) {
	if s == "" {
		return StatusLinked, true, nil
	}
	status, err = ParseStatus(s)
	return status, false, err
}

// CanTransition reports whether the state machine allows s -> to.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusLinked || to == StatusRemoved
	case StatusLinked:
		return to == StatusRemoved
	default:
		return false
	}
}

// Live reports whether balances are surfaced for this status.
func (s Status) Live() bool { return s == StatusLinked }

// Relationship is one directed row of a friendship. The counterpart owns
// the mirrored row. A re-link after removal creates fresh rows.
type Relationship struct {
	types.Entity
	ID          id.RelationshipID `json:"id"`
	OwnerID     string            `json:"owner_id"`
	FriendID    string            `json:"friend_id"`
	Status      Status            `json:"status"`
	RequestedBy string            `json:"requested_by"`
}

// Op names a directory operation for error reporting.
type Op string

const (
	OpRequest Op = "request"
	OpAccept  Op = "accept"
	OpRemove  Op = "remove"
)

// InvalidStateError is returned when an operation is not allowed from the
// relationship's current state.
type InvalidStateError struct {
	RelationshipID string
	Op             Op
	From           Status
	Reason         string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("friend: cannot %s relationship %s in state %q", e.Op, e.RelationshipID, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Transition validates moving r to the status op implies.
func Transition(r *Relationship, op Op, to Status) error {
	if !r.Status.CanTransition(to) {
		return &InvalidStateError{RelationshipID: r.ID.String(), Op: op, From: r.Status}
	}
	return nil
}

// Latest keeps the most recent relationship per friend. Input order does
// not matter; the result is sorted by friend ID.
func Latest(rels []*Relationship) []*Relationship {
	byFriend := make(map[string]*Relationship, len(rels))
	for _, r := range rels {
		cur, ok := byFriend[r.FriendID]
		if !ok || newer(r, cur) {
			byFriend[r.FriendID] = r
		}
	}

	out := make([]*Relationship, 0, len(byFriend))
	for _, r := range byFriend {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FriendID < out[j].FriendID })
	return out
}

// newer orders by creation time, falling back to the K-sortable ID for
// rows created in the same instant.
func newer(a, b *Relationship) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}
