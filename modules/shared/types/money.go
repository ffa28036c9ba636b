package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Money represents a non-negative monetary value in the shop's single currency.
// Immutable value object - all operations return new instances.
type Money struct {
	amount decimal.Decimal
}

// Zero is the additive identity for Money.
var Zero = Money{}

func NewMoney(amount decimal.Decimal) (Money, error) {
	if amount.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: amount}, nil
}

func MustNewMoney(amount decimal.Decimal) Money {
	m, err := NewMoney(amount)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromInt is shorthand for whole amounts (e.g. 50000 VND).
func MoneyFromInt(amount int64) Money {
	return MustNewMoney(decimal.NewFromInt(amount))
}

// MoneyFromRat converts a Spanner NUMERIC value.
func MoneyFromRat(r *big.Rat) (Money, error) {
	if r == nil {
		return Zero, nil
	}
	return NewMoney(decimal.NewFromBigRat(r, 9))
}

func (m Money) Decimal() decimal.Decimal { return m.amount }
func (m Money) Rat() *big.Rat            { return m.amount.Rat() }
func (m Money) IsZero() bool             { return m.amount.IsZero() }

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Multiply(factor int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(factor))}
}

func (m Money) Equals(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return m.amount.String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return m.amount.MarshalJSON()
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
