package valueobjects

import (
	"fmt"
	"strings"

	"github.com/NomadCrew/dojo-portal/errors"
	"github.com/shopspring/decimal"
)

// Currency represents an ISO 4217 currency code
type Currency string

const (
	PHP Currency = "PHP"
	USD Currency = "USD"
)

// DefaultCurrency is what the dojo bills in.
const DefaultCurrency = PHP

var validCurrencies = map[Currency]bool{
	PHP: true,
	USD: true,
}

const (
	ErrInvalidAmount    = "INVALID_AMOUNT"
	ErrInvalidCurrency  = "INVALID_CURRENCY"
	ErrCurrencyMismatch = "CURRENCY_MISMATCH"
)

// Money is a non-negative amount with at most two decimal places.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money instance with validation
func NewMoney(amount decimal.Decimal, currency Currency) (*Money, error) {
	if !validCurrencies[currency] {
		return nil, errors.ValidationFailed(
			ErrInvalidCurrency,
			fmt.Sprintf("currency %s is not supported", currency),
		)
	}

	if amount.LessThan(decimal.Zero) {
		return nil, errors.ValidationFailed(ErrInvalidAmount, "amount cannot be negative")
	}

	if amount.Exponent() < -2 {
		return nil, errors.ValidationFailed(ErrInvalidAmount, "amount cannot have more than 2 decimal places")
	}

	return &Money{amount: amount, currency: currency}, nil
}

// NewMoneyFromString parses amount and currency, e.g. ("1600.50", "php").
func NewMoneyFromString(amount string, currency string) (*Money, error) {
	decimalAmount, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, errors.ValidationFailed("invalid amount format", err.Error())
	}
	return NewMoney(decimalAmount, Currency(strings.ToUpper(currency)))
}

// Zero returns a zero amount in currency.
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() Currency {
	return m.currency
}

// Add adds two monetary values of the same currency
func (m Money) Add(other Money) (*Money, error) {
	if m.currency != other.currency {
		return nil, errors.ValidationFailed(
			ErrCurrencyMismatch,
			fmt.Sprintf("cannot add %s to %s", other.currency, m.currency),
		)
	}
	return &Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sum totals amounts in currency. Negative or over-precise amounts are rejected.
func Sum(currency Currency, amounts ...decimal.Decimal) (*Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		part, err := NewMoney(a.Round(2), currency)
		if err != nil {
			return nil, err
		}
		next, err := total.Add(*part)
		if err != nil {
			return nil, err
		}
		total = *next
	}
	return &total, nil
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) Compare(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, errors.ValidationFailed(
			ErrCurrencyMismatch,
			fmt.Sprintf("cannot compare %s with %s", m.currency, other.currency),
		)
	}
	return m.amount.Cmp(other.amount), nil
}

// StringFixed renders the amount with two decimals, without the currency.
func (m Money) StringFixed() string {
	return m.amount.StringFixed(2)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}
