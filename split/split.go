// Package split turns a total and a split rule into per-participant shares.
//
// Every strategy produces shares in whole minor units that sum exactly to
// the total. Residual units left by integer division go one at a time to
// participants in list order, starting with the first.
package split

import (
	"errors"
	"fmt"

	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/types"
)

// Mode selects a split strategy.
type Mode string

const (
	ModeEqual    Mode = "equal"
	ModeExact    Mode = "exact"
	ModePercent  Mode = "percent"
	ModeShares   Mode = "shares"
	ModeItemized Mode = "itemized"
)

// BasisPointsTotal is 100% expressed in basis points.
const BasisPointsTotal = 10000

var (
	ErrUnknownMode         = errors.New("split: unknown mode")
	ErrNoParticipants      = errors.New("split: no participants")
	ErrDuplicate           = errors.New("split: participant listed more than once")
	ErrPercentTotal        = errors.New("split: percentages must add up to 100%")
	ErrNegativePortion     = errors.New("split: portions must not be negative")
	ErrItemsExceedTotal    = errors.New("split: items add up to more than the total")
	ErrUnassignedItem      = errors.New("split: item has no assignee")
	ErrUnknownParticipant  = errors.New("split: item assigned to a non-participant")
	ErrZeroItemizedTotal   = errors.New("split: items add up to zero")
	ErrNonPositiveSubtotal = errors.New("split: total must be positive")
)

// Portion is one participant's input to a non-equal split. Value is in
// minor units for exact splits, basis points for percent splits, and a
// relative weight for share splits.
type Portion struct {
	UserID string `json:"user_id"`
	Value  int64  `json:"value"`
}

// Item is a line on an itemized bill, in minor units of the total's
// currency.
type Item struct {
	Description string   `json:"description,omitempty"`
	Amount      int64    `json:"amount"`
	AssignedTo  []string `json:"assigned_to"`
}

// Rule describes how to split a total.
type Rule struct {
	Mode         Mode      `json:"mode"`
	Participants []string  `json:"participants,omitempty"`
	Portions     []Portion `json:"portions,omitempty"`
	Items        []Item    `json:"items,omitempty"`
}

// Apply builds the shares for total under r.
func (r Rule) Apply(total types.Money) ([]expense.Split, error) {
	switch r.Mode {
	case ModeEqual, "":
		return Equal(total, r.Participants)
	case ModeExact:
		return Exact(total, r.Portions)
	case ModePercent:
		return Percent(total, r.Portions)
	case ModeShares:
		return Shares(total, r.Portions)
	case ModeItemized:
		return Itemized(total, r.Items, r.Participants)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, r.Mode)
	}
}

// Equal divides total evenly.
func Equal(total types.Money, participants []string) ([]expense.Split, error) {
	if err := checkParticipants(participants); err != nil {
		return nil, err
	}
	parts, err := total.Split(len(participants))
	if err != nil {
		return nil, err
	}
	return zip(participants, parts), nil
}

// Exact takes the portions as given and fails if they do not conserve the
// total.
func Exact(total types.Money, portions []Portion) ([]expense.Split, error) {
	users, values, err := unzip(portions)
	if err != nil {
		return nil, err
	}

	parts := make([]types.Money, len(values))
	for i, v := range values {
		parts[i] = types.Money{Amount: v, Currency: total.Currency}
	}
	sum, err := types.Sum(total.Currency, parts...)
	if err != nil {
		return nil, err
	}
	if !sum.Equal(total) {
		return nil, &expense.ConservationError{Amount: total, Sum: sum}
	}
	return zip(users, parts), nil
}

// Percent splits by basis points, which must add up to 10000.
func Percent(total types.Money, portions []Portion) ([]expense.Split, error) {
	users, values, err := unzip(portions)
	if err != nil {
		return nil, err
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	if sum != BasisPointsTotal {
		return nil, fmt.Errorf("%w: got %d basis points", ErrPercentTotal, sum)
	}
	parts, err := total.Allocate(values)
	if err != nil {
		return nil, err
	}
	return zip(users, parts), nil
}

// Shares splits proportionally to relative weights.
func Shares(total types.Money, portions []Portion) ([]expense.Split, error) {
	users, values, err := unzip(portions)
	if err != nil {
		return nil, err
	}
	parts, err := total.Allocate(values)
	if err != nil {
		return nil, err
	}
	return zip(users, parts), nil
}

// Itemized assigns each item to its assignees, then spreads whatever the
// total has on top of the items (tax, tip, service) in proportion to each
// participant's item subtotal.
func Itemized(total types.Money, items []Item, participants []string) ([]expense.Split, error) {
	if err := checkParticipants(participants); err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, ErrNonPositiveSubtotal
	}

	index := make(map[string]int, len(participants))
	for i, p := range participants {
		index[p] = i
	}

	subtotals := make([]int64, len(participants))
	var itemsTotal int64
	for _, it := range items {
		if it.Amount < 0 {
			return nil, ErrNegativePortion
		}
		if len(it.AssignedTo) == 0 {
			return nil, ErrUnassignedItem
		}
		parts, err := types.Money{Amount: it.Amount, Currency: total.Currency}.Split(len(it.AssignedTo))
		if err != nil {
			return nil, err
		}
		for i, u := range it.AssignedTo {
			pos, ok := index[u]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, u)
			}
			subtotals[pos] += parts[i].Amount
		}
		itemsTotal += it.Amount
	}

	if itemsTotal == 0 {
		return nil, ErrZeroItemizedTotal
	}
	if itemsTotal > total.Amount {
		return nil, fmt.Errorf("%w: %d > %d", ErrItemsExceedTotal, itemsTotal, total.Amount)
	}

	extra := types.Money{Amount: total.Amount - itemsTotal, Currency: total.Currency}
	extras, err := extra.Allocate(subtotals)
	if err != nil {
		return nil, err
	}

	parts := make([]types.Money, len(participants))
	for i := range participants {
		parts[i] = types.Money{Amount: subtotals[i] + extras[i].Amount, Currency: total.Currency}
	}
	return zip(participants, parts), nil
}

func checkParticipants(participants []string) error {
	if len(participants) == 0 {
		return ErrNoParticipants
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return ErrNoParticipants
		}
		if seen[p] {
			return fmt.Errorf("%w: %s", ErrDuplicate, p)
		}
		seen[p] = true
	}
	return nil
}

func unzip(portions []Portion) ([]string, []int64, error) {
	users := make([]string, len(portions))
	values := make([]int64, len(portions))
	for i, p := range portions {
		if p.Value < 0 {
			return nil, nil, ErrNegativePortion
		}
		users[i] = p.UserID
		values[i] = p.Value
	}
	if err := checkParticipants(users); err != nil {
		return nil, nil, err
	}
	return users, values, nil
}

func zip(users []string, parts []types.Money) []expense.Split {
	out := make([]expense.Split, len(users))
	for i, u := range users {
		out[i] = expense.Split{UserID: u, Owed: parts[i]}
	}
	return out
}
