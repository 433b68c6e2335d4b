package settlement

import (
	"context"

	"github.com/xraph/splitledger/id"
)

type Store interface {
	CreateSettlement(ctx context.Context, s *Settlement) error
	GetSettlement(ctx context.Context, settlementID id.SettlementID) (*Settlement, error)
	ListSettlements(ctx context.Context, f Filter) ([]*Settlement, error)
}

// Filter selects settlements. Involving requires every listed user to be a
// party; Reverses finds the compensation of a given settlement.
type Filter struct {
	Involving []string
	GroupID   id.GroupID
	Reverses  id.SettlementID
	Limit     int
	Offset    int
}

func (f Filter) Matches(s *Settlement) bool {
	if !f.GroupID.IsNil() && s.GroupID.String() != f.GroupID.String() {
		return false
	}
	if !f.Reverses.IsNil() && s.Reverses.String() != f.Reverses.String() {
		return false
	}
	for _, u := range f.Involving {
		if !s.Involves(u) {
			return false
		}
	}
	return true
}
