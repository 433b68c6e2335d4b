package user

import "github.com/xraph/splitledger/types"

// User is an opaque participant identified by the host application.
// DefaultCurrency is the unit of account for every balance shown to them.
type User struct {
	types.Entity
	ID              string            `json:"id"`
	DisplayName     string            `json:"display_name,omitempty"`
	DefaultCurrency string            `json:"default_currency"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}
