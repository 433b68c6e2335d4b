package splitledger

import (
	"context"
	"strings"

	"github.com/xraph/splitledger/types"
	"github.com/xraph/splitledger/user"
)

// RegisterUser adds a user to the directory. The ID is supplied by the
// host application.
func (l *Ledger) RegisterUser(ctx context.Context, u *user.User) error {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return ValidationError{Field: "id", Message: "is required"}
	}
	u.DefaultCurrency = types.NormalizeCurrency(u.DefaultCurrency)
	if !types.ValidCurrency(u.DefaultCurrency) {
		return ValidationError{Field: "default_currency", Message: "must be a three-letter ISO 4217 code"}
	}

	now := l.now()
	u.Entity = types.Entity{CreatedAt: now, UpdatedAt: now}

	if err := l.call(ctx, "create user", func(ctx context.Context) error {
		return l.store.CreateUser(ctx, u)
	}); err != nil {
		return err
	}

	l.plugins.EmitUserRegistered(ctx, u)
	return nil
}

// GetUser retrieves a user by ID.
func (l *Ledger) GetUser(ctx context.Context, userID string) (*user.User, error) {
	return fetch(l, ctx, "get user", func(ctx context.Context) (*user.User, error) {
		return l.store.GetUser(ctx, userID)
	})
}

// SetDefaultCurrency changes the unit of account the user's balances are
// reported in and rebuilds their snapshot.
func (l *Ledger) SetDefaultCurrency(ctx context.Context, userID, currency string) (*Receipt, error) {
	currency = types.NormalizeCurrency(currency)
	if !types.ValidCurrency(currency) {
		return nil, ValidationError{Field: "default_currency", Message: "must be a three-letter ISO 4217 code"}
	}

	u, err := l.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.DefaultCurrency == currency {
		return &Receipt{}, nil
	}

	u.DefaultCurrency = currency
	u.UpdatedAt = l.now()
	if err := l.call(ctx, "update user", func(ctx context.Context) error {
		return l.store.UpdateUser(ctx, u)
	}); err != nil {
		return nil, err
	}

	return l.propagate(ctx, userID, []string{userID}), nil
}

// requireUsers fails with ErrUserNotFound if any of ids is not registered.
func (l *Ledger) requireUsers(ctx context.Context, ids ...string) error {
	for _, userID := range ids {
		if _, err := l.GetUser(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}
