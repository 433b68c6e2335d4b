package postgres

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

// ==================== User models ====================

type userModel struct {
	grove.BaseModel `grove:"table:splitledger_users"`

	ID              string            `grove:"id,pk"`
	DisplayName     string            `grove:"display_name"`
	DefaultCurrency string            `grove:"default_currency"`
	Metadata        map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time         `grove:"created_at"`
	UpdatedAt       time.Time         `grove:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:              u.ID,
		DisplayName:     u.DisplayName,
		DefaultCurrency: u.DefaultCurrency,
		Metadata:        u.Metadata,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) *user.User {
	return &user.User{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              m.ID,
		DisplayName:     m.DisplayName,
		DefaultCurrency: m.DefaultCurrency,
		Metadata:        m.Metadata,
	}
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

// fromRelationshipModel rejects rows whose status is not one the state
// machine knows. Nothing is defaulted on read.
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

	ID          string            `grove:"id,pk"`
	GroupID     string            `grove:"group_id"`
	PayerID     string            `grove:"payer_id"`
	Amount      int64             `grove:"amount"`
	Currency    string            `grove:"currency"`
	Description string            `grove:"description"`
	Splits      json.RawMessage   `grove:"splits,type:jsonb"`
	Involved    json.RawMessage   `grove:"involved,type:jsonb"`
	CreatedBy   string            `grove:"created_by"`
	Version     int64             `grove:"version"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
}

func toExpenseModel(e *expense.Expense) *expenseModel {
	splits, _ := json.Marshal(e.Splits)       //nolint:errcheck // plain structs
	involved, _ := json.Marshal(e.Involved()) //nolint:errcheck // plain strings

	return &expenseModel{
		ID:          e.ID.String(),
		GroupID:     e.GroupID.String(),
		PayerID:     e.PayerID,
		Amount:      e.Amount.Amount,
		Currency:    e.Amount.Currency,
		Description: e.Description,
		Splits:      splits,
		Involved:    involved,
		CreatedBy:   e.CreatedBy,
		Version:     e.Version,
		Metadata:    e.Metadata,
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

	var splits []expense.Split
	if len(m.Splits) > 0 {
		if err := json.Unmarshal(m.Splits, &splits); err != nil {
			return nil, err
		}
	}

	return &expense.Expense{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          expenseID,
		GroupID:     groupID,
		PayerID:     m.PayerID,
		Amount:      types.Money{Amount: m.Amount, Currency: m.Currency},
		Description: m.Description,
		Splits:      splits,
		CreatedBy:   m.CreatedBy,
		Version:     m.Version,
		Metadata:    m.Metadata,
	}, nil
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

	ID        string            `grove:"id,pk"`
	Name      string            `grove:"name"`
	Currency  string            `grove:"currency"`
	Members   json.RawMessage   `grove:"members,type:jsonb"`
	Metadata  map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt time.Time         `grove:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at"`
}

func toGroupModel(g *group.Group) *groupModel {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	raw, _ := json.Marshal(members) //nolint:errcheck // plain strings

	return &groupModel{
		ID:        g.ID.String(),
		Name:      g.Name,
		Currency:  g.Currency,
		Members:   raw,
		Metadata:  g.Metadata,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func fromGroupModel(m *groupModel) (*group.Group, error) {
	groupID, err := id.ParseGroupID(m.ID)
	if err != nil {
		return nil, err
	}
	var members []string
	if len(m.Members) > 0 {
		if err := json.Unmarshal(m.Members, &members); err != nil {
			return nil, err
		}
	}

	return &group.Group{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       groupID,
		Name:     m.Name,
		Currency: m.Currency,
		Members:  members,
		Metadata: m.Metadata,
	}, nil
}

// ==================== Snapshot models ====================

type snapshotModel struct {
	grove.BaseModel `grove:"table:splitledger_balance_snapshots"`

	OwnerID     string          `grove:"owner_id,pk"`
	Currency    string          `grove:"currency"`
	Balances    json.RawMessage `grove:"balances,type:jsonb"`
	Stale       json.RawMessage `grove:"stale,type:jsonb"`
	Overridden  json.RawMessage `grove:"overridden,type:jsonb"`
	Version     int64           `grove:"version"`
	RefreshedAt time.Time       `grove:"refreshed_at"`
}

func toSnapshotModel(s *balance.Snapshot) *snapshotModel {
	balances, _ := json.Marshal(s.Balances)             //nolint:errcheck // plain map
	stale, _ := json.Marshal(nonNil(s.Stale))           //nolint:errcheck // plain strings
	overridden, _ := json.Marshal(nonNil(s.Overridden)) //nolint:errcheck // plain strings

	return &snapshotModel{
		OwnerID:     s.OwnerID,
		Currency:    s.Currency,
		Balances:    balances,
		Stale:       stale,
		Overridden:  overridden,
		Version:     s.Version,
		RefreshedAt: s.RefreshedAt,
	}
}

func fromSnapshotModel(m *snapshotModel) (*balance.Snapshot, error) {
	snap := &balance.Snapshot{
		OwnerID:     m.OwnerID,
		Currency:    m.Currency,
		Balances:    make(map[string]int64),
		Version:     m.Version,
		RefreshedAt: m.RefreshedAt,
	}
	for _, f := range []struct {
		raw json.RawMessage
		dst any
	}{
		{m.Balances, &snap.Balances},
		{m.Stale, &snap.Stale},
		{m.Overridden, &snap.Overridden},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
