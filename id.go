package splitledger

import "github.com/xraph/splitledger/id"

// ID is the primary identifier type for all SplitLedger records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
