package balance

import (
	"fmt"

	"github.com/xraph/splitledger/types"
)

// CurrencyMismatchError reports a record whose currency differs from the
// unit of account the balance is computed in. The ledger does not convert
// currencies, so this is a configuration error.
type CurrencyMismatchError struct {
	RecordID string
	Expected string
	Got      string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("balance: record %s is in %q, expected %q", e.RecordID, e.Got, e.Expected)
}

// MalformedRecordError reports a record that fails validation while being
// folded into a balance.
type MalformedRecordError struct {
	RecordID string
	Err      error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("balance: record %s is malformed: %v", e.RecordID, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// ClosureError reports group positions that do not add up to zero.
type ClosureError struct {
	GroupID string
	Sum     types.Money
}

func (e *ClosureError) Error() string {
	return fmt.Sprintf("balance: positions in group %s sum to %s", e.GroupID, e.Sum)
}
