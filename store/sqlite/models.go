package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/splitledger/balance"
	"github.com/xraph/splitledger/expense"
	"github.com/xraph/splitledger/friend"
	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/settlement"
	"github.com/xraph/splitledger/types"
	"github.com/xraph/splitledger/user"
)

// SQLite has no JSON column type; documents are stored as TEXT and queried
// with the json1 functions.

// ==================== User models ====================

type userModel struct {
	grove.BaseModel `grove:"table:splitledger_users"`

	ID              string    `grove:"id,pk"`
	DisplayName     string    `grove:"display_name"`
	DefaultCurrency string    `grove:"default_currency"`
	Metadata        string    `grove:"metadata"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:              u.ID,
		DisplayName:     u.DisplayName,
		DefaultCurrency: u.DefaultCurrency,
		Metadata:        encode(u.Metadata, "{}"),
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) (*user.User, error) {
	var metadata map[string]string
	if err := decode(m.Metadata, &metadata); err != nil {
		return nil, err
	}
	return &user.User{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              m.ID,
		DisplayName:     m.DisplayName,
		DefaultCurrency: m.DefaultCurrency,
		Metadata:        metadata,
	}, nil
}

// ==================== Relationship models ====================

type relationshipModel struct {
	grove.BaseModel `grove:"table:splitledger_relationships"`

	ID          string    `grove:"id,pk"`
	OwnerID     string    `grove:"owner_id"`
	FriendID    string    `grove:"friend_id"`
	Status      string    `grove:"status"`
	RequestedBy string    `grove:"requested_by"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toRelationshipModel(r *friend.Relationship) *relationshipModel {
	return &relationshipModel{
		ID:          r.ID.String(),
		OwnerID:     r.OwnerID,
		FriendID:    r.FriendID,
		Status:      string(r.Status),
		RequestedBy: r.RequestedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromRelationshipModel(m *relationshipModel) (*friend.Relationship, error) {
	relID, err := id.ParseRelationshipID(m.ID)
	if err != nil {
		return nil, err
	}
	status, err := friend.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &friend.Relationship{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          relID,
		OwnerID:     m.OwnerID,
		FriendID:    m.FriendID,
		Status:      status,
		RequestedBy: m.RequestedBy,
	}, nil
}

// ==================== Expense models ====================

type expenseModel struct {
	grove.BaseModel `grove:"table:splitledger_expenses"`

	ID          string    `grove:"id,pk"`
	GroupID     string    `grove:"group_id"`
	PayerID     string    `grove:"payer_id"`
	Amount      int64     `grove:"amount"`
	Currency    string    `grove:"currency"`
	Description string    `grove:"description"`
	Splits      string    `grove:"splits"`
	Involved    string    `grove:"involved"`
	CreatedBy   string    `grove:"created_by"`
	Version     int64     `grove:"version"`
	Metadata    string    `grove:"metadata"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toExpenseModel(e *expense.Expense) *expenseModel {
	return &expenseModel{
		ID:          e.ID.String(),
		GroupID:     e.GroupID.String(),
		PayerID:     e.PayerID,
		Amount:      e.Amount.Amount,
		Currency:    e.Amount.Currency,
		Description: e.Description,
		Splits:      encode(e.Splits, "[]"),
		Involved:    encode(e.Involved(), "[]"),
		CreatedBy:   e.CreatedBy,
		Version:     e.Version,
		Metadata:    encode(e.Metadata, "{}"),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromExpenseModel(m *expenseModel) (*expense.Expense, error) {
	expenseID, err := id.ParseExpenseID(m.ID)
	if err != nil {
		return nil, err
	}
	groupID, err := id.ParseOptional(m.GroupID, id.PrefixGroup)
	if err != nil {
		return nil, err
	}

	e := &expense.Expense{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          expenseID,
		GroupID:     groupID,
		PayerID:     m.PayerID,
		Amount:      types.Money{Amount: m.Amount, Currency: m.Currency},
		Description: m.Description,
		CreatedBy:   m.CreatedBy,
		Version:     m.Version,
	}
	if err := decode(m.Splits, &e.Splits); err != nil {
		return nil, err
	}
	if err := decode(m.Metadata, &e.Metadata); err != nil {
		return nil, err
	}
	return e, nil
}

// ==================== Settlement models ====================

type settlementModel struct {
	grove.BaseModel `grove:"table:splitledger_settlements"`

	ID        string    `grove:"id,pk"`
	GroupID   string    `grove:"group_id"`
	PayerID   string    `grove:"payer_id"`
	PayeeID   string    `grove:"payee_id"`
	Amount    int64     `grove:"amount"`
	Currency  string    `grove:"currency"`
	Note      string    `grove:"note"`
	CreatedBy string    `grove:"created_by"`
	Reverses  string    `grove:"reverses"`
	CreatedAt time.Time `grove:"created_at"`
}

func toSettlementModel(s *settlement.Settlement) *settlementModel {
	return &settlementModel{
		ID:        s.ID.String(),
		GroupID:   s.GroupID.String(),
		PayerID:   s.PayerID,
		PayeeID:   s.PayeeID,
		Amount:    s.Amount.Amount,
		Currency:  s.Amount.Currency,
		Note:      s.Note,
		CreatedBy: s.CreatedBy,
		Reverses:  s.Reverses.String(),
		CreatedAt: s.CreatedAt,
	}
}

func fromSettlementModel(m *settlementModel) (*settlement.Settlement, error) {
	settlementID, err := id.ParseSettlementID(m.ID)
	if err != nil {
		return nil, err
	}
	groupID, err := id.ParseOptional(m.GroupID, id.PrefixGroup)
	if err != nil {
		return nil, err
	}
	reverses, err := id.ParseOptional(m.Reverses, id.PrefixSettlement)
	if err != nil {
		return nil, err
	}

	return &settlement.Settlement{
		ID:        settlementID,
		GroupID:   groupID,
		PayerID:   m.PayerID,
		PayeeID:   m.PayeeID,
		Amount:    types.Money{Amount: m.Amount, Currency: m.Currency},
		Note:      m.Note,
		CreatedBy: m.CreatedBy,
		Reverses:  reverses,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ==================== Group models ====================

type groupModel struct {
	grove.BaseModel `grove:"table:splitledger_groups"`

	ID        string    `grove:"id,pk"`
	Name      string    `grove:"name"`
	Currency  string    `grove:"currency"`
	Members   string    `grove:"members"`
	Metadata  string    `grove:"metadata"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toGroupModel(g *group.Group) *groupModel {
	return &groupModel{
		ID:        g.ID.String(),
		Name:      g.Name,
		Currency:  g.Currency,
		Members:   encode(g.Members, "[]"),
		Metadata:  encode(g.Metadata, "{}"),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func fromGroupModel(m *groupModel) (*group.Group, error) {
	groupID, err := id.ParseGroupID(m.ID)
	if err != nil {
		return nil, err
	}
	g := &group.Group{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       groupID,
		Name:     m.Name,
		Currency: m.Currency,
	}
	if err := decode(m.Members, &g.Members); err != nil {
		return nil, err
	}
	if err := decode(m.Metadata, &g.Metadata); err != nil {
		return nil, err
	}
	return g, nil
}

// ==================== Snapshot models ====================

type snapshotModel struct {
	grove.BaseModel `grove:"table:splitledger_balance_snapshots"`

	OwnerID     string    `grove:"owner_id,pk"`
	Currency    string    `grove:"currency"`
	Balances    string    `grove:"balances"`
	Stale       string    `grove:"stale"`
	Overridden  string    `grove:"overridden"`
	Version     int64     `grove:"version"`
	RefreshedAt time.Time `grove:"refreshed_at"`
}

func toSnapshotModel(s *balance.Snapshot) *snapshotModel {
	return &snapshotModel{
		OwnerID:     s.OwnerID,
		Currency:    s.Currency,
		Balances:    encode(s.Balances, "{}"),
		Stale:       encode(s.Stale, "[]"),
		Overridden:  encode(s.Overridden, "[]"),
		Version:     s.Version,
		RefreshedAt: s.RefreshedAt,
	}
}

func fromSnapshotModel(m *snapshotModel) (*balance.Snapshot, error) {
	snap := &balance.Snapshot{
		OwnerID:     m.OwnerID,
		Currency:    m.Currency,
		Version:     m.Version,
		RefreshedAt: m.RefreshedAt,
	}
	if err := decode(m.Balances, &snap.Balances); err != nil {
		return nil, err
	}
	if snap.Balances == nil {
		snap.Balances = make(map[string]int64)
	}
	if err := decode(m.Stale, &snap.Stale); err != nil {
		return nil, err
	}
	if err := decode(m.Overridden, &snap.Overridden); err != nil {
		return nil, err
	}
	return snap, nil
}

// encode renders v as JSON text, using empty for nil values.
func encode(v any, empty string) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return empty
	}
	return string(data)
}

func decode(s string, dst any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}
