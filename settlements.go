package splitledger

import (
	"context"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
)

// RecordSettlement stores a direct payment from PayerID to PayeeID and
// refreshes both balances. Settlements are immutable.
func (l *Ledger) RecordSettlement(ctx context.Context, s *settlement.Settlement) (*Receipt, error) {
	if s.ID.IsNil() {
		s.ID = id.NewSettlementID()
	}
	s.CreatedAt = l.now()
	s.Amount.Currency = types.NormalizeCurrency(s.Amount.Currency)

	unlock, err := l.lockGroups(ctx, s.GroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.checkSettlement(ctx, s); err != nil {
		return nil, err
	}

	if err := l.call(ctx, "create settlement", func(ctx context.Context) error {
		return l.store.CreateSettlement(ctx, s)
	}); err != nil {
		return nil, err
	}

	l.plugins.EmitSettlementRecorded(ctx, s)
	return l.propagate(ctx, actorOf(s.CreatedBy, s.PayerID), []string{s.PayerID, s.PayeeID}), nil
}

// ReverseSettlement records the compensating settlement that cancels
// settlementID. A settlement can be reversed once, and a compensation
// cannot itself be reversed.
func (l *Ledger) ReverseSettlement(ctx context.Context, settlementID id.SettlementID, note, createdBy string) (*settlement.Settlement, *Receipt, error) {
	unlock, err := l.locker.Lock(ctx, "settlement:"+settlementID.String())
	if err != nil {
		return nil, nil, &StoreUnavailableError{Op: "lock settlement", Err: err}
	}
	defer unlock()

	orig, err := l.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, nil, err
	}
	if !orig.Reverses.IsNil() {
		return nil, nil, ValidationError{Field: "settlement_id", Message: "is itself a reversal"}
	}

	existing, err := l.ListSettlements(ctx, settlement.Filter{Reverses: settlementID, Limit: 1})
	if err != nil {
		return nil, nil, err
	}
	if len(existing) > 0 {
		return nil, nil, ErrAlreadyReversed
	}

	comp := orig.Compensation(note, createdBy)
	receipt, err := l.RecordSettlement(ctx, comp)
	if err != nil {
		return nil, nil, err
	}
	return comp, receipt, nil
}

// GetSettlement retrieves a settlement by ID.
func (l *Ledger) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	return fetch(l, ctx, "get settlement", func(ctx context.Context) (*settlement.Settlement, error) {
		return l.store.GetSettlement(ctx, settlementID)
	})
}

// ListSettlements returns settlements matching f, oldest first.
func (l *Ledger) ListSettlements(ctx context.Context, f settlement.Filter) ([]*settlement.Settlement, error) {
	return fetch(l, ctx, "list settlements", func(ctx context.Context) ([]*settlement.Settlement, error) {
		return l.store.ListSettlements(ctx, f)
	})
}

func (l *Ledger) checkSettlement(ctx context.Context, s *settlement.Settlement) error {
	if err := s.Validate(); err != nil {
		return invalid(err)
	}
	if err := l.requireUsers(ctx, s.PayerID, s.PayeeID); err != nil {
		return err
	}
	if s.GroupID.IsNil() {
		return nil
	}
	g, err := l.GetGroup(ctx, s.GroupID)
	if err != nil {
		return err
	}
	return checkGroupRecord(g, s.ID.String(), s.Amount.Currency, s.PayerID, s.PayeeID)
}
