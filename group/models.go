// Package group defines named sets of users whose expenses are a filtered
// view of the split records.
package group

import (
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

type Group struct {
	types.Entity
	ID       id.GroupID        `json:"id"`
	Name     string            `json:"name"`
	Currency string            `json:"currency"`
	Members  []string          `json:"members"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// AddMember appends userID if absent and reports whether it changed.
func (g *Group) AddMember(userID string) bool {
	if g.HasMember(userID) {
		return false
	}
	g.Members = append(g.Members, userID)
	return true
}

// RemoveMember drops userID and reports whether it was present.
func (g *Group) RemoveMember(userID string) bool {
	for i, m := range g.Members {
		if m == userID {
			g.Members = append(g.Members[:i:i], g.Members[i+1:]...)
			return true
		}
	}
	return false
}
