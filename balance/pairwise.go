// Package balance folds split and settlement records into net balances.
//
// Everything here is a pure function of its inputs: records go in, signed
// minor-unit amounts come out. A positive balance means the counterparty
// owes the user; a negative one means the user owes the counterparty.
package balance

import (
	"sort"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
)

// Input is everything the pairwise fold needs. Records that do not involve
// UserID are ignored, so callers may pass a superset.
type Input struct {
	UserID         string
	Currency       string
	Counterparties []string
	Expenses       []*expense.Expense
	Settlements    []*settlement.Settlement
}

// Result holds one balance per counterparty that computed cleanly and one
// error per counterparty that did not. A counterparty never appears in
// both.
type Result struct {
	Balances map[string]types.Money
	Errors   map[string]error
}

// Err returns the failure of the lexically first failing counterparty, or
// nil.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return r.Errors[keys[0]]
}

// Pairwise computes the user's net balance with each counterparty.
//
// For an expense shared by both: if the user paid, the counterparty's
// share is added; if the counterparty paid, the user's share is
// subtracted. A settlement from the user to the counterparty adds its
// amount; one in the other direction subtracts it. A bad record only
// poisons the counterparties it touches.
func Pairwise(in Input) Result {
	currency := types.NormalizeCurrency(in.Currency)

	want := make(map[string]bool, len(in.Counterparties))
	sums := make(map[string]int64, len(in.Counterparties))
	for _, cp := range in.Counterparties {
		if cp == "" || cp == in.UserID {
			continue
		}
		want[cp] = true
		sums[cp] = 0
	}

	errs := make(map[string]error)
	fail := func(cps []string, err error) {
		for _, cp := range cps {
			if _, seen := errs[cp]; !seen {
				errs[cp] = err
			}
		}
	}

	for _, e := range in.Expenses {
		if e == nil || !e.Involves(in.UserID) {
			continue
		}
		touched := touchedBy(e.Involved(), in.UserID, want)
		if len(touched) == 0 {
			continue
		}
		if err := checkExpense(e, currency); err != nil {
			fail(touched, err)
			continue
		}

		userShare, _ := e.Share(in.UserID)
		for _, cp := range touched {
			switch {
			case e.PayerID == in.UserID:
				if owed, ok := e.Share(cp); ok {
					sums[cp] += owed.Amount
				}
			case e.PayerID == cp:
				sums[cp] -= userShare.Amount
			}
		}
	}

	for _, s := range in.Settlements {
		if s == nil {
			continue
		}
		var cp string
		var sign int64
		switch {
		case s.PayerID == in.UserID:
			cp, sign = s.PayeeID, 1
		case s.PayeeID == in.UserID:
			cp, sign = s.PayerID, -1
		default:
			continue
		}
		if !want[cp] {
			continue
		}
		if err := checkSettlement(s, currency); err != nil {
			fail([]string{cp}, err)
			continue
		}
		sums[cp] += sign * s.Amount.Amount
	}

	res := Result{
		Balances: make(map[string]types.Money, len(sums)),
		Errors:   errs,
	}
	for cp, amt := range sums {
		if _, bad := errs[cp]; bad {
			continue
		}
		res.Balances[cp] = types.Money{Amount: amt, Currency: currency}
	}
	return res
}

func touchedBy(involved []string, userID string, want map[string]bool) []string {
	var out []string
	for _, u := range involved {
		if u != userID && want[u] {
			out = append(out, u)
		}
	}
	return out
}

func checkExpense(e *expense.Expense, currency string) error {
	if err := e.Validate(); err != nil {
		return &MalformedRecordError{RecordID: e.ID.String(), Err: err}
	}
	if e.Amount.Currency != currency {
		return &CurrencyMismatchError{RecordID: e.ID.String(), Expected: currency, Got: e.Amount.Currency}
	}
	return nil
}

func checkSettlement(s *settlement.Settlement, currency string) error {
	if err := s.Validate(); err != nil {
		return &MalformedRecordError{RecordID: s.ID.String(), Err: err}
	}
	if s.Amount.Currency != currency {
		return &CurrencyMismatchError{RecordID: s.ID.String(), Expected: currency, Got: s.Amount.Currency}
	}
	return nil
}
