package group

import (
	"context"

	"github.com/xraph/splitledger/id"
)

type Store interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, groupID id.GroupID) (*Group, error)
	UpdateGroup(ctx context.Context, g *Group) error
	ListGroups(ctx context.Context, memberID string, opts ListOpts) ([]*Group, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
