// README: Common money value object used across modules.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// Money is an amount in minor units (cents).
type Money struct {
	Amount   int64
	Currency string
}

func Cents(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

// ParseMoney converts a decimal major-unit amount ("12.99", 12.99) into cents.
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(v decimal.Decimal) (Money, error) {
	cents := v.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return Money{}, fmt.Errorf("amount %s has more than 2 decimal places", v.String())
	}
	return Cents(cents.IntPart()), nil
}

// MoneyFromFloat is used at JSON boundaries where clients send floats.
func MoneyFromFloat(f float64) (Money, error) {
	return ParseMoney(decimal.NewFromFloat(f))
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.currency()}
}

func (m Money) Mul(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.currency()}
}

func (m Money) Negative() bool { return m.Amount < 0 }

// Decimal renders the amount in major units for JSON responses.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

// Float is the presentation value; never use it for arithmetic.
func (m Money) Float() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2) + " " + m.currency()
}

func (m Money) currency() string {
	if m.Currency == "" {
		return DefaultCurrency
	}
	return m.Currency
}
