package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	slstore "github.com/xraph/splitledger/store"
	"github.com/xraph/splitledger/user"
)

// compile-time interface check
var _ slstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("splitledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("splitledger/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	res, err := s.pg.NewInsert(toUserModel(u)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create user")
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	m := new(userModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrUserNotFound
		}
		return nil, wrap("get user", err)
	}
	return fromUserModel(m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	return affected(res, err, "update user", splitledger.ErrUserNotFound)
}

// ==================== Relationship Store ====================

func (s *Store) CreateRelationship(ctx context.Context, r *friend.Relationship) error {
	res, err := s.pg.NewInsert(toRelationshipModel(r)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create relationship")
}

func (s *Store) GetRelationship(ctx context.Context, ownerID, friendID string) (*friend.Relationship, error) {
	m := new(relationshipModel)
	err := s.pg.NewSelect(m).
		Where("owner_id = $1", ownerID).
		Where("friend_id = $2", friendID).
		OrderExpr("created_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrRelationshipNotFound
		}
		return nil, wrap("get relationship", err)
	}
	return fromRelationshipModel(m)
}

func (s *Store) ListRelationships(ctx context.Context, ownerID string, opts friend.ListOpts) ([]*friend.Relationship, error) {
	var models []relationshipModel
	q := s.pg.NewSelect(&models).Where("owner_id = $1", ownerID)

	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list relationships", err)
	}

	result := make([]*friend.Relationship, len(models))
	for i := range models {
		r, err := fromRelationshipModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) UpdateRelationshipStatus(ctx context.Context, relID id.RelationshipID, from, to friend.Status) error {
	res, err := s.pg.NewUpdate((*relationshipModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", now()).
		Where("id = $3", relID.String()).
		Where("status = $4", string(from)).
		Exec(ctx)
	if err != nil {
		return wrap("update relationship status", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrap("update relationship status", err)
	}
	if rows > 0 {
		return nil
	}

	// Nothing matched: either the row is gone or its status moved on.
	var count int64
	if err := s.pg.NewRaw(`SELECT COUNT(*) FROM splitledger_relationships WHERE id = $1`, relID.String()).
		Scan(ctx, &count); err != nil {
		return wrap("update relationship status", err)
	}
	if count == 0 {
		return splitledger.ErrRelationshipNotFound
	}
	return splitledger.ErrStatusConflict
}

// ==================== Expense Store ====================

func (s *Store) CreateExpense(ctx context.Context, e *expense.Expense) error {
	res, err := s.pg.NewInsert(toExpenseModel(e)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create expense")
}

func (s *Store) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	m := new(expenseModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", expenseID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrExpenseNotFound
		}
		return nil, wrap("get expense", err)
	}
	return fromExpenseModel(m)
}

func (s *Store) UpdateExpense(ctx context.Context, e *expense.Expense, expectedVersion int64) error {
	m := toExpenseModel(e)
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return wrap("update expense", err)
	}
	res, err := s.pg.NewUpdate((*expenseModel)(nil)).
		Set("group_id = $1", m.GroupID).
		Set("payer_id = $2", m.PayerID).
		Set("amount = $3", m.Amount).
		Set("currency = $4", m.Currency).
		Set("description = $5", m.Description).
		Set("splits = $6::jsonb", string(m.Splits)).
		Set("involved = $7::jsonb", string(m.Involved)).
		Set("created_by = $8", m.CreatedBy).
		Set("metadata = $9::jsonb", string(metadata)).
		Set("updated_at = $10", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = $11", m.ID).
		Where("version = $12", expectedVersion).
		Exec(ctx)
	if err != nil {
		return wrap("update expense", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrap("update expense", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := s.GetExpense(ctx, e.ID); err != nil {
		return err
	}
	return splitledger.ErrVersionConflict
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID id.ExpenseID) error {
	res, err := s.pg.NewDelete((*expenseModel)(nil)).
		Where("id = $1", expenseID.String()).
		Exec(ctx)
	return affected(res, err, "delete expense", splitledger.ErrExpenseNotFound)
}

// ListExpenses pushes the participant filter down as JSONB containment on
// the denormalized involved column.
func (s *Store) ListExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	var models []expenseModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	for _, u := range f.Involving {
		argIdx++
		q = q.Where(fmt.Sprintf("involved @> jsonb_build_array($%d::text)", argIdx), u)
	}
	if !f.GroupID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("group_id = $%d", argIdx), f.GroupID.String())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list expenses", err)
	}

	result := make([]*expense.Expense, len(models))
	for i := range models {
		e, err := fromExpenseModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Settlement Store ====================

func (s *Store) CreateSettlement(ctx context.Context, st *settlement.Settlement) error {
	res, err := s.pg.NewInsert(toSettlementModel(st)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create settlement")
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	m := new(settlementModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", settlementID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrSettlementNotFound
		}
		return nil, wrap("get settlement", err)
	}
	return fromSettlementModel(m)
}

func (s *Store) ListSettlements(ctx context.Context, f settlement.Filter) ([]*settlement.Settlement, error) {
	var models []settlementModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	for _, u := range f.Involving {
		argIdx += 2
		q = q.Where(fmt.Sprintf("(payer_id = $%d OR payee_id = $%d)", argIdx-1, argIdx), u, u)
	}
	if !f.GroupID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("group_id = $%d", argIdx), f.GroupID.String())
	}
	if !f.Reverses.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("reverses = $%d", argIdx), f.Reverses.String())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list settlements", err)
	}

	result := make([]*settlement.Settlement, len(models))
	for i := range models {
		st, err := fromSettlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

// ==================== Group Store ====================

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	res, err := s.pg.NewInsert(toGroupModel(g)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create group")
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	m := new(groupModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", groupID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrGroupNotFound
		}
		return nil, wrap("get group", err)
	}
	return fromGroupModel(m)
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	res, err := s.pg.NewUpdate(toGroupModel(g)).WherePK().Exec(ctx)
	return affected(res, err, "update group", splitledger.ErrGroupNotFound)
}

func (s *Store) ListGroups(ctx context.Context, memberID string, opts group.ListOpts) ([]*group.Group, error) {
	var models []groupModel
	q := s.pg.NewSelect(&models)

	if memberID != "" {
		q = q.Where("members @> jsonb_build_array($1::text)", memberID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list groups", err)
	}

	result := make([]*group.Group, len(models))
	for i := range models {
		g, err := fromGroupModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = g
	}
	return result, nil
}

// ==================== Snapshot Store ====================

func (s *Store) GetSnapshot(ctx context.Context, ownerID string) (*balance.Snapshot, error) {
	m := new(snapshotModel)
	err := s.pg.NewSelect(m).
		Where("owner_id = $1", ownerID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrSnapshotNotFound
		}
		return nil, wrap("get snapshot", err)
	}
	return fromSnapshotModel(m)
}

// SaveSnapshot inserts on expectedVersion 0 and otherwise updates only the
// row still at expectedVersion. Losing either race is a version conflict.
func (s *Store) SaveSnapshot(ctx context.Context, snap *balance.Snapshot, expectedVersion int64) error {
	m := toSnapshotModel(snap)
	m.Version = expectedVersion + 1

	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = s.pg.NewInsert(m).
			OnConflict("(owner_id) DO NOTHING").
			Exec(ctx)
	} else {
		res, err = s.pg.NewUpdate((*snapshotModel)(nil)).
			Set("currency = $1", m.Currency).
			Set("balances = $2::jsonb", string(m.Balances)).
			Set("stale = $3::jsonb", string(m.Stale)).
			Set("overridden = $4::jsonb", string(m.Overridden)).
			Set("version = $5", m.Version).
			Set("refreshed_at = $6", m.RefreshedAt).
			Where("owner_id = $7", m.OwnerID).
			Where("version = $8", expectedVersion).
			Exec(ctx)
	}
	if err != nil {
		return wrap("save snapshot", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrap("save snapshot", err)
	}
	if rows == 0 {
		return splitledger.ErrVersionConflict
	}

	snap.Version = m.Version
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func wrap(op string, err error) error {
	return fmt.Errorf("splitledger/postgres: %s: %w", op, err)
}

// inserted maps an ON CONFLICT DO NOTHING insert that wrote nothing to
// ErrAlreadyExists.
func inserted(res sql.Result, err error, op string) error {
	return affected(res, err, op, splitledger.ErrAlreadyExists)
}

// affected returns none when the statement touched no rows.
func affected(res sql.Result, err error, op string, none error) error {
	if err != nil {
		return wrap(op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if rows == 0 {
		return none
	}
	return nil
}
