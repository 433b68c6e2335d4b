package mongo

import (
	"sort"
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

	ID              string            `grove:"id,pk"            bson:"_id"`
	DisplayName     string            `grove:"display_name"     bson:"display_name"`
	DefaultCurrency string            `grove:"default_currency" bson:"default_currency"`
	Metadata        map[string]string `grove:"metadata"         bson:"metadata,omitempty"`
	CreatedAt       time.Time         `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time         `grove:"updated_at"       bson:"updated_at"`
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

	ID          string    `grove:"id,pk"        bson:"_id"`
	OwnerID     string    `grove:"owner_id"     bson:"owner_id"`
	FriendID    string    `grove:"friend_id"    bson:"friend_id"`
	Status      string    `grove:"status"       bson:"status"`
	RequestedBy string    `grove:"requested_by" bson:"requested_by"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
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

	ID          string            `grove:"id,pk"       bson:"_id"`
	GroupID     string            `grove:"group_id"    bson:"group_id,omitempty"`
	PayerID     string            `grove:"payer_id"    bson:"payer_id"`
	Amount      int64             `grove:"amount"      bson:"amount"`
	Currency    string            `grove:"currency"    bson:"currency"`
	Description string            `grove:"description" bson:"description"`
	Splits      []splitModel      `grove:"splits"      bson:"splits"`
	Involved    []string          `grove:"involved"    bson:"involved"`
	CreatedBy   string            `grove:"created_by"  bson:"created_by"`
	Version     int64             `grove:"version"     bson:"version"`
	Metadata    map[string]string `grove:"metadata"    bson:"metadata,omitempty"`
	CreatedAt   time.Time         `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"  bson:"updated_at"`
}

type splitModel struct {
	UserID string `bson:"user_id"`
	Owed   int64  `bson:"owed"`
}

func toExpenseModel(e *expense.Expense) *expenseModel {
	splits := make([]splitModel, len(e.Splits))
	for i, s := range e.Splits {
		splits[i] = splitModel{UserID: s.UserID, Owed: s.Owed.Amount}
	}

	return &expenseModel{
		ID:          e.ID.String(),
		GroupID:     e.GroupID.String(),
		PayerID:     e.PayerID,
		Amount:      e.Amount.Amount,
		Currency:    e.Amount.Currency,
		Description: e.Description,
		Splits:      splits,
		Involved:    e.Involved(),
		CreatedBy:   e.CreatedBy,
		Version:     e.Version,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// fromExpenseModel restores shares in the expense's currency; mixed
// currencies inside one expense are rejected before they are written.
func fromExpenseModel(m *expenseModel) (*expense.Expense, error) {
	expenseID, err := id.ParseExpenseID(m.ID)
	if err != nil {
		return nil, err
	}
	groupID, err := id.ParseOptional(m.GroupID, id.PrefixGroup)
	if err != nil {
		return nil, err
	}

	splits := make([]expense.Split, len(m.Splits))
	for i, s := range m.Splits {
		splits[i] = expense.Split{UserID: s.UserID, Owed: types.Money{Amount: s.Owed, Currency: m.Currency}}
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

	ID        string    `grove:"id,pk"      bson:"_id"`
	GroupID   string    `grove:"group_id"   bson:"group_id,omitempty"`
	PayerID   string    `grove:"payer_id"   bson:"payer_id"`
	PayeeID   string    `grove:"payee_id"   bson:"payee_id"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Note      string    `grove:"note"       bson:"note,omitempty"`
	CreatedBy string    `grove:"created_by" bson:"created_by"`
	Reverses  string    `grove:"reverses"   bson:"reverses,omitempty"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
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

	ID        string            `grove:"id,pk"      bson:"_id"`
	Name      string            `grove:"name"       bson:"name"`
	Currency  string            `grove:"currency"   bson:"currency"`
	Members   []string          `grove:"members"    bson:"members"`
	Metadata  map[string]string `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt time.Time         `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at" bson:"updated_at"`
}

func toGroupModel(g *group.Group) *groupModel {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	return &groupModel{
		ID:        g.ID.String(),
		Name:      g.Name,
		Currency:  g.Currency,
		Members:   members,
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
	return &group.Group{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       groupID,
		Name:     m.Name,
		Currency: m.Currency,
		Members:  m.Members,
		Metadata: m.Metadata,
	}, nil
}

// ==================== Snapshot models ====================

// User IDs are opaque and may contain characters that are not valid in
// BSON keys, so balances are stored as entries rather than a map.
type snapshotModel struct {
	grove.BaseModel `grove:"table:splitledger_balance_snapshots"`

	OwnerID     string         `grove:"owner_id,pk"  bson:"_id"`
	Currency    string         `grove:"currency"     bson:"currency"`
	Balances    []balanceEntry `grove:"balances"     bson:"balances"`
	Stale       []string       `grove:"stale"        bson:"stale"`
	Overridden  []string       `grove:"overridden"   bson:"overridden"`
	Version     int64          `grove:"version"      bson:"version"`
	RefreshedAt time.Time      `grove:"refreshed_at" bson:"refreshed_at"`
}

type balanceEntry struct {
	FriendID string `bson:"friend_id"`
	Amount   int64  `bson:"amount"`
}

func toSnapshotModel(s *balance.Snapshot) *snapshotModel {
	entries := make([]balanceEntry, 0, len(s.Balances))
	for friendID, amt := range s.Balances {
		entries = append(entries, balanceEntry{FriendID: friendID, Amount: amt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FriendID < entries[j].FriendID })

	return &snapshotModel{
		OwnerID:     s.OwnerID,
		Currency:    s.Currency,
		Balances:    entries,
		Stale:       nonNil(s.Stale),
		Overridden:  nonNil(s.Overridden),
		Version:     s.Version,
		RefreshedAt: s.RefreshedAt,
	}
}

func fromSnapshotModel(m *snapshotModel) *balance.Snapshot {
	balances := make(map[string]int64, len(m.Balances))
	for _, e := range m.Balances {
		balances[e.FriendID] = e.Amount
	}
	return &balance.Snapshot{
		OwnerID:     m.OwnerID,
		Currency:    m.Currency,
		Balances:    balances,
		Stale:       m.Stale,
		Overridden:  m.Overridden,
		Version:     m.Version,
		RefreshedAt: m.RefreshedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
