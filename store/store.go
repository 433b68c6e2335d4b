// Package store declares the composite storage interface every backend
// implements.
package store

import (
	"context"

	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/user"
)

// Store is the unified storage interface for all SplitLedger entities.
// Backends map missing records to the ledger's not-found sentinels and
// lost compare-and-set races to its conflict sentinels.
type Store interface {
	user.Store
	friend.Store
	expense.Store
	settlement.Store
	group.Store
	balance.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
