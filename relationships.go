package splitledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// LegacyRelationship is a relationship row coming from an older system,
// possibly without a status.
type LegacyRelationship struct {
	OwnerID     string    `json:"owner_id"`
	FriendID    string    `json:"friend_id"`
	Status      string    `json:"status,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

func linkLockKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "link:" + a + "|" + b
}

func validatePair(userID, friendID string) error {
	if strings.TrimSpace(userID) == "" {
		return ValidationError{Field: "user_id", Message: "is required"}
	}
	if strings.TrimSpace(friendID) == "" {
		return ValidationError{Field: "friend_id", Message: "is required"}
	}
	if userID == friendID {
		return ValidationError{Field: "friend_id", Message: "cannot link a user to themselves"}
	}
	return nil
}

func (l *Ledger) lockPair(ctx context.Context, userID, friendID string) (func(), error) {
	unlock, err := l.locker.Lock(ctx, linkLockKey(userID, friendID))
	if err != nil {
		return nil, &StoreUnavailableError{Op: "lock relationship", Err: err}
	}
	return unlock, nil
}

// relationship returns the current row for (ownerID, friendID), or nil.
func (l *Ledger) relationship(ctx context.Context, ownerID, friendID string) (*friend.Relationship, error) {
	r, err := fetch(l, ctx, "get relationship", func(ctx context.Context) (*friend.Relationship, error) {
		return l.store.GetRelationship(ctx, ownerID, friendID)
	})
	if errors.Is(err, ErrRelationshipNotFound) {
		return nil, nil
	}
	return r, err
}

// GetRelationship returns the current relationship userID holds with
// friendID.
func (l *Ledger) GetRelationship(ctx context.Context, userID, friendID string) (*friend.Relationship, error) {
	r, err := l.relationship(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRelationshipNotFound
	}
	return r, nil
}

// RequestLink opens a pending link from requesterID to friendID. It fails
// while a pending or linked relationship exists; after removal it starts
// a fresh relationship.
func (l *Ledger) RequestLink(ctx context.Context, requesterID, friendID string) (*friend.Relationship, error) {
	if err := validatePair(requesterID, friendID); err != nil {
		return nil, err
	}
	if err := l.requireUsers(ctx, requesterID, friendID); err != nil {
		return nil, err
	}

	unlock, err := l.lockPair(ctx, requesterID, friendID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	mine, err := l.requestLocked(ctx, requesterID, friendID)
	if err != nil {
		return nil, err
	}

	l.plugins.EmitLinkRequested(ctx, mine)
	return mine, nil
}

func (l *Ledger) requestLocked(ctx context.Context, requesterID, friendID string) (*friend.Relationship, error) {
	for _, pair := range [][2]string{{requesterID, friendID}, {friendID, requesterID}} {
		cur, err := l.relationship(ctx, pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		if cur != nil && cur.Status != friend.StatusRemoved {
			return nil, &friend.InvalidStateError{
				RelationshipID: cur.ID.String(),
				Op:             friend.OpRequest,
				From:           cur.Status,
				Reason:         "a relationship already exists",
			}
		}
	}

	now := l.now()
	mine := &friend.Relationship{
		Entity:      types.Entity{CreatedAt: now, UpdatedAt: now},
		ID:          id.NewRelationshipID(),
		OwnerID:     requesterID,
		FriendID:    friendID,
		Status:      friend.StatusPending,
		RequestedBy: requesterID,
	}
	theirs := &friend.Relationship{
		Entity:      types.Entity{CreatedAt: now, UpdatedAt: now},
		ID:          id.NewRelationshipID(),
		OwnerID:     friendID,
		FriendID:    requesterID,
		Status:      friend.StatusPending,
		RequestedBy: requesterID,
	}

	if err := l.call(ctx, "create relationship", func(ctx context.Context) error {
		return l.store.CreateRelationship(ctx, mine)
	}); err != nil {
		return nil, err
	}
	if err := l.call(ctx, "create relationship", func(ctx context.Context) error {
		return l.store.CreateRelationship(ctx, theirs)
	}); err != nil {
		// Retire the half-created link so a retry can start over.
		if rerr := l.call(ctx, "update relationship status", func(ctx context.Context) error {
			return l.store.UpdateRelationshipStatus(ctx, mine.ID, friend.StatusPending, friend.StatusRemoved)
		}); rerr != nil {
			l.logger.Error("failed to retire half-created relationship",
				"relationship_id", mine.ID.String(),
				"error", rerr,
			)
		}
		return nil, err
	}

	return mine, nil
}

// AcceptLink moves a pending link to linked. Only the side that did not
// request it may accept. Both users' balances are rebuilt.
func (l *Ledger) AcceptLink(ctx context.Context, userID, friendID string) (*Receipt, error) {
	if err := validatePair(userID, friendID); err != nil {
		return nil, err
	}

	unlock, err := l.lockPair(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	mine, err := l.transitionLocked(ctx, userID, friendID, friend.OpAccept, friend.StatusLinked,
		func(r *friend.Relationship) error {
			if r.RequestedBy == userID {
				return &friend.InvalidStateError{
					RelationshipID: r.ID.String(),
					Op:             friend.OpAccept,
					From:           r.Status,
					Reason:         "the requester cannot accept their own request",
				}
			}
			return nil
		})
	unlock()
	if err != nil {
		return nil, err
	}

	l.plugins.EmitLinkAccepted(ctx, mine)
	return l.propagate(ctx, userID, []string{userID, friendID}), nil
}

// RemoveLink ends a pending or linked relationship. The balance stops
// being reported but the underlying records are kept, so a later re-link
// shows it again.
func (l *Ledger) RemoveLink(ctx context.Context, userID, friendID string) (*Receipt, error) {
	if err := validatePair(userID, friendID); err != nil {
		return nil, err
	}

	unlock, err := l.lockPair(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	mine, err := l.transitionLocked(ctx, userID, friendID, friend.OpRemove, friend.StatusRemoved, nil)
	unlock()
	if err != nil {
		return nil, err
	}

	l.plugins.EmitLinkRemoved(ctx, mine)
	return l.propagate(ctx, userID, []string{userID, friendID}), nil
}

// AddFriend links two users in one step, creating or accepting the
// pending request as needed.
func (l *Ledger) AddFriend(ctx context.Context, userID, friendID string) (*Receipt, error) {
	if err := validatePair(userID, friendID); err != nil {
		return nil, err
	}
	if err := l.requireUsers(ctx, userID, friendID); err != nil {
		return nil, err
	}

	unlock, err := l.lockPair(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}

	cur, err := l.relationship(ctx, userID, friendID)
	if err == nil && (cur == nil || cur.Status == friend.StatusRemoved) {
		var req *friend.Relationship
		if req, err = l.requestLocked(ctx, userID, friendID); err == nil {
			l.plugins.EmitLinkRequested(ctx, req)
		}
	}
	var mine *friend.Relationship
	if err == nil {
		mine, err = l.transitionLocked(ctx, userID, friendID, friend.OpAccept, friend.StatusLinked, nil)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	l.plugins.EmitLinkAccepted(ctx, mine)
	return l.propagate(ctx, userID, []string{userID, friendID}), nil
}

// RemoveFriend is RemoveLink under its presentation-layer name.
func (l *Ledger) RemoveFriend(ctx context.Context, userID, friendID string) (*Receipt, error) {
	return l.RemoveLink(ctx, userID, friendID)
}

// transitionLocked moves both directed rows of a relationship with
// compare-and-set. The caller holds the pair lock.
func (l *Ledger) transitionLocked(
	ctx context.Context,
	userID, friendID string,
	op friend.Op,
	to friend.Status,
	guard func(*friend.Relationship) error,
) (*friend.Relationship, error) {
	mine, err := l.relationship(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	if mine == nil {
		return nil, ErrRelationshipNotFound
	}
	if err := friend.Transition(mine, op, to); err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(mine); err != nil {
			return nil, err
		}
	}

	theirs, err := l.relationship(ctx, friendID, userID)
	if err != nil {
		return nil, err
	}

	from := mine.Status
	if err := l.call(ctx, "update relationship status", func(ctx context.Context) error {
		return l.store.UpdateRelationshipStatus(ctx, mine.ID, from, to)
	}); err != nil {
		return nil, err
	}

	if theirs != nil && theirs.Status == from {
		if err := l.call(ctx, "update relationship status", func(ctx context.Context) error {
			return l.store.UpdateRelationshipStatus(ctx, theirs.ID, from, to)
		}); err != nil {
			if rerr := l.call(ctx, "update relationship status", func(ctx context.Context) error {
				return l.store.UpdateRelationshipStatus(ctx, mine.ID, to, from)
			}); rerr != nil {
				l.logger.Error("relationship rows diverged",
					"relationship_id", mine.ID.String(),
					"mirror_id", theirs.ID.String(),
					"error", rerr,
				)
			}
			return nil, err
		}
	}

	mine.Status = to
	mine.UpdatedAt = l.now()
	return mine, nil
}

// ListRelationships returns the current relationship with every friend.
func (l *Ledger) ListRelationships(ctx context.Context, userID string) ([]*friend.Relationship, error) {
	return l.currentRelationships(ctx, userID)
}

// ImportRelationship ingests one directed row from a legacy system. A
// missing status is defaulted to linked here, once, and logged; nothing
// downstream ever sees an empty status. A row that would not become the
// pair's current relationship, because an existing one is at least as
// recent, is rejected with ErrAlreadyExists.
func (l *Ledger) ImportRelationship(ctx context.Context, in LegacyRelationship) (*friend.Relationship, *Receipt, error) {
	if err := validatePair(in.OwnerID, in.FriendID); err != nil {
		return nil, nil, err
	}
	status, defaulted, err := friend.NormalizeLegacyStatus(in.Status)
	if err != nil {
		return nil, nil, invalid(err)
	}
	if defaulted {
		l.logger.Warn("legacy relationship without status imported as linked",
			"owner_id", in.OwnerID,
			"friend_id", in.FriendID,
		)
	}

	created := in.CreatedAt
	if created.IsZero() {
		created = l.now()
	}
	requestedBy := in.RequestedBy
	if requestedBy == "" {
		requestedBy = in.OwnerID
	}

	unlock, err := l.lockPair(ctx, in.OwnerID, in.FriendID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	current, err := l.relationship(ctx, in.OwnerID, in.FriendID)
	if err != nil {
		return nil, nil, err
	}
	if current != nil && !current.CreatedAt.Before(created.UTC()) {
		return nil, nil, fmt.Errorf("%w: %s already has a relationship with %s since %s",
			ErrAlreadyExists, in.OwnerID, in.FriendID, current.CreatedAt.Format(time.RFC3339))
	}

	r := &friend.Relationship{
		Entity:      types.Entity{CreatedAt: created.UTC(), UpdatedAt: l.now()},
		ID:          id.NewRelationshipID(),
		OwnerID:     in.OwnerID,
		FriendID:    in.FriendID,
		Status:      status,
		RequestedBy: requestedBy,
	}
	if err := l.call(ctx, "create relationship", func(ctx context.Context) error {
		return l.store.CreateRelationship(ctx, r)
	}); err != nil {
		return nil, nil, err
	}

	receipt := &Receipt{}
	if status.Live() {
		receipt = l.propagate(ctx, in.OwnerID, []string{in.OwnerID})
	}
	return r, receipt, nil
}
