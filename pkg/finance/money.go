// Package finance holds the fixed-point money primitives and the balance book
// the settlement engine moves funds through.
package finance

import (
	"fmt"
	"strings"
)

// Money represents a monetary value in a specific currency.
// It uses integer math (minor units) to avoid floating point errors.
type Money struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"` // ISO 4217 code or token symbol
	Scale       int    `json:"scale"`    // e.g. 2 for USD/EUR, 18 for ETH
}

// NewMoney creates a new Money instance.
func NewMoney(amount int64, currency string) Money {
	currency = strings.ToUpper(currency)
	return Money{
		AmountMinor: amount,
		Currency:    currency,
		Scale:       scaleFor(currency),
	}
}

func scaleFor(currency string) int {
	switch currency {
	case "BTC":
		return 8
	case "ETH", "WEI":
		return 18
	default:
		return 2
	}
}

// Add adds two Money amounts. Returns error on currency mismatch.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameUnit(other); err != nil {
		return Money{}, err
	}
	sum := m.AmountMinor + other.AmountMinor
	if (other.AmountMinor > 0 && sum < m.AmountMinor) || (other.AmountMinor < 0 && sum > m.AmountMinor) {
		return Money{}, fmt.Errorf("amount overflow: %d + %d", m.AmountMinor, other.AmountMinor)
	}
	return Money{AmountMinor: sum, Currency: m.Currency, Scale: m.Scale}, nil
}

// Sub subtracts other Money from m. Returns error on currency mismatch.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameUnit(other); err != nil {
		return Money{}, err
	}
	return m.Add(Money{AmountMinor: -other.AmountMinor, Currency: other.Currency, Scale: other.Scale})
}

// Cmp compares amounts of the same unit: -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameUnit(other); err != nil {
		return 0, err
	}
	switch {
	case m.AmountMinor < other.AmountMinor:
		return -1, nil
	case m.AmountMinor > other.AmountMinor:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) sameUnit(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	if m.Scale != other.Scale {
		return fmt.Errorf("scale mismatch: %d vs %d", m.Scale, other.Scale)
	}
	return nil
}

// IsZero returns true if the amount is 0.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsPositive returns true if the amount is > 0.
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.AmountMinor, m.Currency)
}
