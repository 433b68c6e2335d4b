package balance

import (
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
)

// GroupInput is the record set of one group. Records tagged with another
// group are ignored.
type GroupInput struct {
	GroupID     string
	Currency    string
	Members     []string
	Expenses    []*expense.Expense
	Settlements []*settlement.Settlement
}

// Group computes each current member's position in the group: what they
// paid minus what they owe, adjusted by settlements. Positions of all
// members sum to zero; anything else is a ClosureError. The first bad
// record aborts the computation.
func Group(in GroupInput) (map[string]types.Money, error) {
	currency := types.NormalizeCurrency(in.Currency)
	pos := make(map[string]int64, len(in.Members))
	for _, m := range in.Members {
		pos[m] = 0
	}

	for _, e := range in.Expenses {
		if e == nil || e.GroupID.String() != in.GroupID {
			continue
		}
		if err := checkExpense(e, currency); err != nil {
			return nil, err
		}
		pos[e.PayerID] += e.Amount.Amount
		for _, s := range e.Splits {
			pos[s.UserID] -= s.Owed.Amount
		}
	}

	for _, s := range in.Settlements {
		if s == nil || s.GroupID.String() != in.GroupID {
			continue
		}
		if err := checkSettlement(s, currency); err != nil {
			return nil, err
		}
		pos[s.PayerID] += s.Amount.Amount
		pos[s.PayeeID] -= s.Amount.Amount
	}

	out := make(map[string]types.Money, len(in.Members))
	var sum int64
	for _, m := range in.Members {
		out[m] = types.Money{Amount: pos[m], Currency: currency}
		sum += pos[m]
	}
	if sum != 0 {
		return nil, &ClosureError{GroupID: in.GroupID, Sum: types.Money{Amount: sum, Currency: currency}}
	}
	return out, nil
}
