package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("splitledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("splitledger/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(toUserModel(u)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create user")
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, splitledger.ErrUserNotFound
		}
		return nil, wrap("get user", err)
	}
	return fromUserModel(m)
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	return affected(res, err, "update user", splitledger.ErrUserNotFound)
}

// ==================== Relationship Store ====================

func (s *Store) CreateRelationship(ctx context.Context, r *friend.Relationship) error {
	res, err := s.sdb.NewInsert(toRelationshipModel(r)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create relationship")
}

func (s *Store) GetRelationship(ctx context.Context, ownerID, friendID string) (*friend.Relationship, error) {
	m := new(relationshipModel)
	err := s.sdb.NewSelect(m).
		Where("owner_id = ?", ownerID).
		Where("friend_id = ?", friendID).
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
	q := s.sdb.NewSelect(&models).Where("owner_id = ?", ownerID)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
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
	res, err := s.sdb.NewUpdate((*relationshipModel)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", now()).
		Where("id = ?", relID.String()).
		Where("status = ?", string(from)).
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
	if err := s.sdb.NewRaw(`SELECT COUNT(*) FROM splitledger_relationships WHERE id = ?`, relID.String()).
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
	res, err := s.sdb.NewInsert(toExpenseModel(e)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create expense")
}

func (s *Store) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	m := new(expenseModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", expenseID.String()).
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
	res, err := s.sdb.NewUpdate((*expenseModel)(nil)).
		Set("group_id = ?", m.GroupID).
		Set("payer_id = ?", m.PayerID).
		Set("amount = ?", m.Amount).
		Set("currency = ?", m.Currency).
		Set("description = ?", m.Description).
		Set("splits = ?", m.Splits).
		Set("involved = ?", m.Involved).
		Set("created_by = ?", m.CreatedBy).
		Set("metadata = ?", m.Metadata).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", m.ID).
		Where("version = ?", expectedVersion).
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
	res, err := s.sdb.NewDelete((*expenseModel)(nil)).
		Where("id = ?", expenseID.String()).
		Exec(ctx)
	return affected(res, err, "delete expense", splitledger.ErrExpenseNotFound)
}

// ListExpenses pushes the participant filter down with json_each over the
// denormalized involved column.
func (s *Store) ListExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	var models []expenseModel
	q := s.sdb.NewSelect(&models)

	for _, u := range f.Involving {
		q = q.Where("EXISTS (SELECT 1 FROM json_each(involved) WHERE json_each.value = ?)", u)
	}
	if !f.GroupID.IsNil() {
		q = q.Where("group_id = ?", f.GroupID.String())
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
	res, err := s.sdb.NewInsert(toSettlementModel(st)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create settlement")
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	m := new(settlementModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", settlementID.String()).
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
	q := s.sdb.NewSelect(&models)

	for _, u := range f.Involving {
		q = q.Where("(payer_id = ? OR payee_id = ?)", u, u)
	}
	if !f.GroupID.IsNil() {
		q = q.Where("group_id = ?", f.GroupID.String())
	}
	if !f.Reverses.IsNil() {
		q = q.Where("reverses = ?", f.Reverses.String())
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
	res, err := s.sdb.NewInsert(toGroupModel(g)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return inserted(res, err, "create group")
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	m := new(groupModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", groupID.String()).
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
	res, err := s.sdb.NewUpdate(toGroupModel(g)).WherePK().Exec(ctx)
	return affected(res, err, "update group", splitledger.ErrGroupNotFound)
}

func (s *Store) ListGroups(ctx context.Context, memberID string, opts group.ListOpts) ([]*group.Group, error) {
	var models []groupModel
	q := s.sdb.NewSelect(&models)

	if memberID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM json_each(members) WHERE json_each.value = ?)", memberID)
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
	err := s.sdb.NewSelect(m).
		Where("owner_id = ?", ownerID).
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
		res, err = s.sdb.NewInsert(m).
			OnConflict("(owner_id) DO NOTHING").
			Exec(ctx)
	} else {
		res, err = s.sdb.NewUpdate((*snapshotModel)(nil)).
			Set("currency = ?", m.Currency).
			Set("balances = ?", m.Balances).
			Set("stale = ?", m.Stale).
			Set("overridden = ?", m.Overridden).
			Set("version = ?", m.Version).
			Set("refreshed_at = ?", m.RefreshedAt).
			Where("owner_id = ?", m.OwnerID).
			Where("version = ?", expectedVersion).
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
	return fmt.Errorf("splitledger/sqlite: %s: %w", op, err)
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
