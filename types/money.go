// Package types provides common types used across SplitLedger.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned by the checked arithmetic helpers when
// two values are in different currencies.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// Money represents a monetary value in the smallest currency unit.
// All arithmetic is integer-only. Floats never touch an amount.
//
// Examples:
//   - USD(4900) = $49.00 (4900 cents)
//   - EUR(19900) = €199.00 (19900 cents)
//   - GBP(9900) = £99.00 (9900 pence)
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents, pence, etc)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "gbp"
}

// Common currency constructors

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence int64) Money { return Money{Amount: pence, Currency: "gbp"} }

// JPY creates a Money value in Japanese Yen (no decimal).
func JPY(yen int64) Money { return Money{Amount: yen, Currency: "jpy"} }

// CAD creates a Money value in Canadian Dollars (cents).
func CAD(cents int64) Money { return Money{Amount: cents, Currency: "cad"} }

// AUD creates a Money value in Australian Dollars (cents).
func AUD(cents int64) Money { return Money{Amount: cents, Currency: "aud"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: NormalizeCurrency(currency)} }

// New returns a Money value of amount minor units in currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// NormalizeCurrency lowercases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// ValidCurrency reports whether currency looks like an ISO 4217 code.
func ValidCurrency(currency string) bool {
	c := NormalizeCurrency(currency)
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Arithmetic operations

// CheckedAdd adds other to m. Mismatched currencies return
// ErrCurrencyMismatch.
func (m Money) CheckedAdd(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return Money{Amount: -m.Amount, Currency: m.Currency}
	}
	return m
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Formatting methods

// FormatMajor returns the major unit string without currency symbol.
// For currencies with 2 decimal places: "49.00" for USD(4900).
// For currencies with 0 decimal places (JPY): "100" for JPY(100).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	// Handle sign separately
	isNegative := m.Amount < 0
	absAmount := m.Amount
	if isNegative {
		absAmount = -absAmount
	}

	major := absAmount / divisor
	minor := absAmount % divisor

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, major, minor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "£99.00", "¥100"
func (m Money) String() string {
	symbol := currencySymbol(m.Currency)
	return symbol + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// Allocate splits m into len(weights) parts proportional to weights.
// Each part is floored to whole minor units and the residual units are
// handed out one at a time, in list order, to the parts with a positive
// weight. The parts always sum to m exactly.
func (m Money) Allocate(weights []int64) ([]Money, error) {
	if len(weights) == 0 {
		return nil, errors.New("money: allocate: no weights")
	}
	if m.Amount < 0 {
		return nil, errors.New("money: allocate: negative amount")
	}

	total := big.NewInt(0)
	for _, w := range weights {
		if w < 0 {
			return nil, errors.New("money: allocate: negative weight")
		}
		total.Add(total, big.NewInt(w))
	}
	if total.Sign() == 0 {
		return nil, errors.New("money: allocate: weights sum to zero")
	}

	parts := make([]Money, len(weights))
	amount := big.NewInt(m.Amount)
	var allocated int64
	for i, w := range weights {
		share := new(big.Int).Mul(amount, big.NewInt(w))
		share.Quo(share, total)
		parts[i] = Money{Amount: share.Int64(), Currency: m.Currency}
		allocated += parts[i].Amount
	}

	remainder := m.Amount - allocated
	for i := 0; remainder > 0; i = (i + 1) % len(weights) {
		if weights[i] == 0 {
			continue
		}
		parts[i].Amount++
		remainder--
	}
	return parts, nil
}

// Split divides m evenly into n parts using the same residual rule as
// Allocate: 10.01 in three parts is 3.34, 3.34, 3.33.
func (m Money) Split(n int) ([]Money, error) {
	if n <= 0 {
		return nil, errors.New("money: split: need at least one part")
	}
	weights := make([]int64, n)
	for i := range weights {
		weights[i] = 1
	}
	return m.Allocate(weights)
}

// Decimal returns the value in major units, e.g. 49.00 for USD(4900).
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -int32(currencyDecimals(m.Currency)))
}

// ParseMajor parses a major-unit string such as "30.00" or "10.01" into
// Money. Values with more precision than the currency allows are rejected
// rather than rounded.
func ParseMajor(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a major-unit decimal into Money.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	currency = NormalizeCurrency(currency)
	minor := d.Shift(int32(currencyDecimals(currency)))
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("money: %s has too many decimal places for %s", d.String(), currency)
	}
	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

// Helper functions

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
		"chf": "CHF ",
		"cny": "¥",
		"sek": "kr ",
		"nzd": "NZ$",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	// Currencies with 0 decimal places
	zeroDecimal := map[string]bool{
		"jpy": true, // Japanese Yen
		"krw": true, // Korean Won
		"vnd": true, // Vietnamese Dong
		"clp": true, // Chilean Peso
		"pyg": true, // Paraguayan Guarani
		"idr": true, // Indonesian Rupiah
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	// Most currencies have 2 decimal places
	return 2
}

// Sum adds values in currency. An empty list sums to zero; a value in any
// other currency returns ErrCurrencyMismatch.
func Sum(currency string, values ...Money) (Money, error) {
	total := Zero(currency)
	for _, v := range values {
		var err error
		if total, err = total.CheckedAdd(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
