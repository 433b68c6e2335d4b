package balance

import (
	"sort"

	"github.com/xraph/splitledger/types"
)

// Transfer is one suggested payment that settles part of a group's debts.
type Transfer struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount types.Money `json:"amount"`
}

type party struct {
	id  string
	amt int64
}

// Simplify matches the largest debtor with the largest creditor until all
// positions are settled. Ties break on user ID so the output is stable.
// It needs at most n-1 transfers for n non-zero positions.
func Simplify(positions map[string]types.Money) []Transfer {
	var creditors, debtors []party
	currency := ""
	for u, m := range positions {
		currency = m.Currency
		switch {
		case m.Amount > 0:
			creditors = append(creditors, party{u, m.Amount})
		case m.Amount < 0:
			debtors = append(debtors, party{u, m.Abs().Amount})
		}
	}
	byAmount := func(ps []party) {
		sort.Slice(ps, func(i, j int) bool {
			if ps[i].amt != ps[j].amt {
				return ps[i].amt > ps[j].amt
			}
			return ps[i].id < ps[j].id
		})
	}
	byAmount(creditors)
	byAmount(debtors)

	var out []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]
		amt := min(d.amt, c.amt)
		out = append(out, Transfer{From: d.id, To: c.id, Amount: types.Money{Amount: amt, Currency: currency}})
		d.amt -= amt
		c.amt -= amt
		if d.amt == 0 {
			i++
		}
		if c.amt == 0 {
			j++
		}
	}
	return out
}
