package friend

import (
	"context"

	"github.com/xraph/splitledger/id"
)

type Store interface {
	CreateRelationship(ctx context.Context, r *Relationship) error
	// GetRelationship returns the most recent relationship for the
	// directed pair (ownerID, friendID).
	GetRelationship(ctx context.Context, ownerID, friendID string) (*Relationship, error)
	ListRelationships(ctx context.Context, ownerID string, opts ListOpts) ([]*Relationship, error)
	// UpdateRelationshipStatus moves a row from one status to another and
	// fails with a conflict if the row is no longer in from.
	UpdateRelationshipStatus(ctx context.Context, relID id.RelationshipID, from, to Status) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
