package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colUsers         = "splitledger_users"
	colRelationships = "splitledger_relationships"
	colExpenses      = "splitledger_expenses"
	colSettlements   = "splitledger_settlements"
	colGroups        = "splitledger_groups"
	colSnapshots     = "splitledger_balance_snapshots"
)

// compile-time interface check
var _ slstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("splitledger/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toUserModel(u)).Exec(ctx)
	return insertErr("create user", err)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, splitledger.ErrUserNotFound
		}
		return nil, fmt.Errorf("splitledger/mongo: get user: %w", err)
	}
	return fromUserModel(&m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: update user: %w", err)
	}
	if res.MatchedCount() == 0 {
		return splitledger.ErrUserNotFound
	}
	return nil
}

// ==================== Relationship Store ====================

func (s *Store) CreateRelationship(ctx context.Context, r *friend.Relationship) error {
	_, err := s.mdb.NewInsert(toRelationshipModel(r)).Exec(ctx)
	return insertErr("create relationship", err)
}

func (s *Store) GetRelationship(ctx context.Context, ownerID, friendID string) (*friend.Relationship, error) {
	var m relationshipModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"owner_id": ownerID, "friend_id": friendID}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, splitledger.ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("splitledger/mongo: get relationship: %w", err)
	}
	return fromRelationshipModel(&m)
}

func (s *Store) ListRelationships(ctx context.Context, ownerID string, opts friend.ListOpts) ([]*friend.Relationship, error) {
	var models []relationshipModel

	filter := bson.M{"owner_id": ownerID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("splitledger/mongo: list relationships: %w", err)
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
	res, err := s.mdb.NewUpdate((*relationshipModel)(nil)).
		Filter(bson.M{"_id": relID.String(), "status": string(from)}).
		Set("status", string(to)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: update relationship status: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	var m relationshipModel
	err = s.mdb.NewFind(&m).
		Filter(bson.M{"_id": relID.String()}).
		Scan(ctx)
	switch {
	case isNoDocuments(err):
		return splitledger.ErrRelationshipNotFound
	case err != nil:
		return fmt.Errorf("splitledger/mongo: update relationship status: %w", err)
	default:
		return splitledger.ErrStatusConflict
	}
}

// ==================== Expense Store ====================

func (s *Store) CreateExpense(ctx context.Context, e *expense.Expense) error {
	_, err := s.mdb.NewInsert(toExpenseModel(e)).Exec(ctx)
	return insertErr("create expense", err)
}

func (s *Store) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	var m expenseModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": expenseID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, splitledger.ErrExpenseNotFound
		}
		return nil, fmt.Errorf("splitledger/mongo: get expense: %w", err)
	}
	return fromExpenseModel(&m)
}

func (s *Store) UpdateExpense(ctx context.Context, e *expense.Expense, expectedVersion int64) error {
	m := toExpenseModel(e)
	res, err := s.mdb.NewUpdate((*expenseModel)(nil)).
		Filter(bson.M{"_id": m.ID, "version": expectedVersion}).
		SetUpdate(bson.M{"$set": bson.M{
			"group_id":    m.GroupID,
			"payer_id":    m.PayerID,
			"amount":      m.Amount,
			"currency":    m.Currency,
			"description": m.Description,
			"splits":      m.Splits,
			"involved":    m.Involved,
			"created_by":  m.CreatedBy,
			"metadata":    m.Metadata,
			"updated_at":  m.UpdatedAt,
			"version":     expectedVersion + 1,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: update expense: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}
	if _, err := s.GetExpense(ctx, e.ID); err != nil {
		return err
	}
	return splitledger.ErrVersionConflict
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID id.ExpenseID) error {
	res, err := s.mdb.NewDelete((*expenseModel)(nil)).
		Filter(bson.M{"_id": expenseID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: delete expense: %w", err)
	}
	if res.DeletedCount() == 0 {
		return splitledger.ErrExpenseNotFound
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	var models []expenseModel

	filter := bson.M{}
	if len(f.Involving) > 0 {
		filter["involved"] = bson.M{"$all": f.Involving}
	}
	if !f.GroupID.IsNil() {
		filter["group_id"] = f.GroupID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if f.Limit > 0 {
		q = q.Limit(int64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Skip(int64(f.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("splitledger/mongo: list expenses: %w", err)
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
	_, err := s.mdb.NewInsert(toSettlementModel(st)).Exec(ctx)
	return insertErr("create settlement", err)
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	var m settlementModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": settlementID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, splitledger.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("splitledger/mongo: get settlement: %w", err)
	}
	return fromSettlementModel(&m)
}

func (s *Store) ListSettlements(ctx context.Context, f settlement.Filter) ([]*settlement.Settlement, error) {
	var models []settlementModel

	filter := bson.M{}
	if len(f.Involving) > 0 {
		parties := make(bson.A, 0, len(f.Involving))
		for _, u := range f.Involving {
			parties = append(parties, bson.M{"$or": bson.A{
				bson.M{"payer_id": u},
				bson.M{"payee_id": u},
			}})
		}
		filter["$and"] = parties
	}
	if !f.GroupID.IsNil() {
		filter["group_id"] = f.GroupID.String()
	}
	if !f.Reverses.IsNil() {
		filter["reverses"] = f.Reverses.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if f.Limit > 0 {
		q = q.Limit(int64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Skip(int64(f.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("splitledger/mongo: list settlements: %w", err)
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
	_, err := s.mdb.NewInsert(toGroupModel(g)).Exec(ctx)
	return insertErr("create group", err)
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	var m groupModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": groupID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, splitledger.ErrGroupNotFound
		}
		return nil, fmt.Errorf("splitledger/mongo: get group: %w", err)
	}
	return fromGroupModel(&m)
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: update group: %w", err)
	}
	if res.MatchedCount() == 0 {
		return splitledger.ErrGroupNotFound
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context, memberID string, opts group.ListOpts) ([]*group.Group, error) {
	var models []groupModel

	filter := bson.M{}
	if memberID != "" {
		filter["members"] = memberID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("splitledger/mongo: list groups: %w", err)
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
	var m snapshotModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": ownerID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, splitledger.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("splitledger/mongo: get snapshot: %w", err)
	}
	return fromSnapshotModel(&m), nil
}

// SaveSnapshot inserts on expectedVersion 0, relying on the _id unique
// index, and otherwise matches on the stored version.
func (s *Store) SaveSnapshot(ctx context.Context, snap *balance.Snapshot, expectedVersion int64) error {
	m := toSnapshotModel(snap)
	m.Version = expectedVersion + 1

	if expectedVersion == 0 {
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return splitledger.ErrVersionConflict
			}
			return fmt.Errorf("splitledger/mongo: save snapshot: %w", err)
		}
		snap.Version = m.Version
		return nil
	}

	res, err := s.mdb.NewUpdate((*snapshotModel)(nil)).
		Filter(bson.M{"_id": m.OwnerID, "version": expectedVersion}).
		SetUpdate(bson.M{"$set": bson.M{
			"currency":     m.Currency,
			"balances":     m.Balances,
			"stale":        m.Stale,
			"overridden":   m.Overridden,
			"version":      m.Version,
			"refreshed_at": m.RefreshedAt,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("splitledger/mongo: save snapshot: %w", err)
	}
	if res.MatchedCount() == 0 {
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func insertErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return splitledger.ErrAlreadyExists
	default:
		return fmt.Errorf("splitledger/mongo: %s: %w", op, err)
	}
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {},
		colRelationships: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "friend_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colExpenses: {
			{Keys: bson.D{{Key: "involved", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSettlements: {
			{Keys: bson.D{{Key: "payer_id", Value: 1}}},
			{Keys: bson.D{{Key: "payee_id", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{
				Keys:    bson.D{{Key: "reverses", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colGroups: {
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		colSnapshots: {},
	}
}
