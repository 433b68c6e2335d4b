package group_test

import (
	"testing"

	"github.com/xraph/splitledger/group"
)

func TestMembers(t *testing.T) {
	g := &group.Group{Members: []string{"alice", "bob"}}

	if g.AddMember("alice") {
		t.Error("adding an existing member should be a no-op")
	}
	if !g.AddMember("carol") || !g.HasMember("carol") {
		t.Error("carol should have been added")
	}
	if !g.RemoveMember("bob") {
		t.Error("bob should have been removed")
	}
	if g.HasMember("bob") {
		t.Error("bob still a member")
	}
	if g.RemoveMember("bob") {
		t.Error("removing twice should report false")
	}
	if len(g.Members) != 2 || g.Members[0] != "alice" || g.Members[1] != "carol" {
		t.Errorf("unexpected members: %v", g.Members)
	}
}
