package splitledger

import (
	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/split"
	"github.com/xraph/splitledger/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	USD        = types.USD
	EUR        = types.EUR
	GBP        = types.GBP
	JPY        = types.JPY
	CAD        = types.CAD
	AUD        = types.AUD
	Zero       = types.Zero
	Sum        = types.Sum
	ParseMajor = types.ParseMajor
)

// Errors defined next to the data they describe.
type (
	InvalidStateError     = friend.InvalidStateError
	ConservationError     = expense.ConservationError
	CurrencyMismatchError = balance.CurrencyMismatchError
	MalformedRecordError  = balance.MalformedRecordError
	ClosureError          = balance.ClosureError
)

// ConservationViolationError is another name for ConservationError.
type ConservationViolationError = expense.ConservationError

type (
	Transfer  = balance.Transfer
	Snapshot  = balance.Snapshot
	SplitRule = split.Rule
)
