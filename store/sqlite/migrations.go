package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the SplitLedger store (SQLite).
var Migrations = migrate.NewGroup("splitledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_splitledger_users",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS splitledger_users (
    id               TEXT PRIMARY KEY,
    display_name     TEXT NOT NULL DEFAULT '',
    default_currency TEXT NOT NULL,
    metadata         TEXT NOT NULL DEFAULT '{}',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_splitledger_relationships",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS splitledger_relationships (
    id           TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL,
    friend_id    TEXT NOT NULL,
    status       TEXT NOT NULL CHECK (status IN ('pending', 'linked', 'removed')),
    requested_by TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_splitledger_rel_pair ON splitledger_relationships (owner_id, friend_id, created_at);
CREATE INDEX IF NOT EXISTS idx_splitledger_rel_owner_status ON splitledger_relationships (owner_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_relationships`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_splitledger_expenses",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS splitledger_expenses (
    id          TEXT PRIMARY KEY,
    group_id    TEXT NOT NULL DEFAULT '',
    payer_id    TEXT NOT NULL,
    amount      INTEGER NOT NULL CHECK (amount > 0),
    currency    TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    splits      TEXT NOT NULL DEFAULT '[]',
    involved    TEXT NOT NULL DEFAULT '[]',
    created_by  TEXT NOT NULL DEFAULT '',
    version     INTEGER NOT NULL DEFAULT 1,
    metadata    TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_splitledger_expenses_payer ON splitledger_expenses (payer_id);
CREATE INDEX IF NOT EXISTS idx_splitledger_expenses_group ON splitledger_expenses (group_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_expenses`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_splitledger_settlements",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS splitledger_settlements (
    id         TEXT PRIMARY KEY,
    group_id   TEXT NOT NULL DEFAULT '',
    payer_id   TEXT NOT NULL,
    payee_id   TEXT NOT NULL,
    amount     INTEGER NOT NULL CHECK (amount > 0),
    currency   TEXT NOT NULL,
    note       TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    reverses   TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_splitledger_settlements_payer ON splitledger_settlements (payer_id);
CREATE INDEX IF NOT EXISTS idx_splitledger_settlements_payee ON splitledger_settlements (payee_id);
CREATE INDEX IF NOT EXISTS idx_splitledger_settlements_group ON splitledger_settlements (group_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_splitledger_settlements_reverses ON splitledger_settlements (reverses) WHERE reverses != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_settlements`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_splitledger_groups",
			Version: "20260101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS splitledger_groups (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    currency   TEXT NOT NULL,
    members    TEXT NOT NULL DEFAULT '[]',
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_groups`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_splitledger_balance_snapshots",
			Version: "20260101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS splitledger_balance_snapshots (
    owner_id     TEXT PRIMARY KEY,
    currency     TEXT NOT NULL,
    balances     TEXT NOT NULL DEFAULT '{}',
    stale        TEXT NOT NULL DEFAULT '[]',
    overridden   TEXT NOT NULL DEFAULT '[]',
    version      INTEGER NOT NULL DEFAULT 1,
    refreshed_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS splitledger_balance_snapshots`)
				return err
			},
		},
	)
}
