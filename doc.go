// Package splitledger keeps shared-expense balances between users.
//
// SplitLedger is a library, not a service. Expenses and settlements are
// written to a record store, which stays the source of truth; after every
// write the ledger rebuilds a per-user balance snapshot that friend lists
// read without recomputing. It provides:
//
//   - Exact integer arithmetic in minor currency units, with a
//     deterministic residual-cent rule for uneven splits
//   - Pairwise balances between friends and zero-sum group positions
//   - A friend relationship state machine (pending, linked, removed) that
//     gates which balances are shown
//   - Compare-and-set snapshot writes serialized per user, with stale
//     snapshots retried in the background
//   - Memory, PostgreSQL, SQLite, and MongoDB stores
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/splitledger"
//	    "github.com/xraph/splitledger/store/memory"
//	)
//
//	l := splitledger.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Balances
//
// A balance is signed from the viewer's side: positive means the friend
// owes the viewer. When alice pays 30.00 split evenly with bob:
//
//	l.AddSplitExpense(ctx, &expense.Expense{
//	    PayerID: "alice",
//	    Amount:  splitledger.USD(3000),
//	}, split.Rule{Mode: split.ModeEqual, Participants: []string{"alice", "bob"}})
//
//	friends, _ := l.FetchFriends(ctx, "alice") // bob: +15.00
//
// Mutations return a Receipt. If a snapshot could not be rebuilt the write
// still stands; the affected users are listed in Receipt.Stale and their
// friend rows carry Stale until the reconciler catches up.
//
// # Relationships
//
// Only linked friends have balances on their friend list. Removing a
// friend hides the balance without touching the records, so linking again
// brings it back.
//
// # TypeID
//
// Records use TypeID for globally unique, type-safe identifiers:
//
//	exp_01h2xcejqtf2nbrexx3vqjhp41   // Expense ID
//	stl_01h2xcejqtf2nbrexx3vqjhp41   // Settlement ID
//	frnd_01h455vb4pex5vsknk084sn02q  // Relationship ID
//	grp_01h455vb4pex5vsknk084sn02q   // Group ID
package splitledger
