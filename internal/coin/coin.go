// Package coin provides the fixed-point decimal value used for every price
// and quantity comparison in the engine. It wraps github.com/yanun0323/decimal
// so that all arithmetic, rounding, and string round-tripping goes through one
// exact, well-tested implementation instead of float64 or ad hoc scaled ints.
package coin

import (
	"github.com/yanun0323/decimal"
)

// Zero is the additive identity.
var Zero = Coin{d: decimal.NewFromInt(0)}

// Coin is an exact fixed-point number used for prices, quantities and
// notionals. The zero value is zero.
type Coin struct {
	d decimal.Decimal
}

// New wraps a decimal.Decimal.
func New(d decimal.Decimal) Coin {
	return Coin{d: d}
}

// NewFromInt builds a Coin from an integer.
func NewFromInt(v int64) Coin {
	return Coin{d: decimal.NewFromInt(v)}
}

// NewFromString parses a canonical decimal string such as "123.45000000".
func NewFromString(s string) (Coin, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Coin{}, err
	}
	return Coin{d: d}, nil
}

// MustFromString panics on a malformed literal; only used for compile-time
// constants in tests and default configuration.
func MustFromString(s string) Coin {
	c, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Decimal exposes the underlying decimal value for the rare case a
// collaborator (e.g. the stats module, persistence layer) needs the raw type.
func (c Coin) Decimal() decimal.Decimal {
	return c.d
}

func (c Coin) Add(o Coin) Coin { return Coin{d: c.d.Add(o.d)} }
func (c Coin) Sub(o Coin) Coin { return Coin{d: c.d.Sub(o.d)} }
func (c Coin) Mul(o Coin) Coin { return Coin{d: c.d.Mul(o.d)} }

// Div divides and rounds to the given number of decimal places, banker's
// rounding half-up, matching the underlying library's default.
func (c Coin) Div(o Coin, places int32) Coin {
	if o.IsZero() {
		return Zero
	}
	return Coin{d: c.d.DivRound(o.d, places)}
}

// Ratio multiplies by a plain float ratio (e.g. a 1.11 exponent multiplier,
// or a slippage_multiplier read from config) and rounds to places.
func (c Coin) Ratio(ratio float64, places int32) Coin {
	r := decimal.NewFromFloat(ratio)
	return Coin{d: c.d.Mul(r).Round(places)}
}

// Neg returns the additive inverse.
func (c Coin) Neg() Coin { return Coin{d: c.d.Neg()} }

// Cmp returns -1, 0, 1 the way decimal.Decimal.Cmp does.
func (c Coin) Cmp(o Coin) int { return c.d.Cmp(o.d) }

func (c Coin) Equal(o Coin) bool          { return c.d.Equal(o.d) }
func (c Coin) GreaterThan(o Coin) bool    { return c.d.Cmp(o.d) > 0 }
func (c Coin) GreaterOrEqual(o Coin) bool { return c.d.Cmp(o.d) >= 0 }
func (c Coin) LessThan(o Coin) bool       { return c.d.Cmp(o.d) < 0 }
func (c Coin) LessOrEqual(o Coin) bool    { return c.d.Cmp(o.d) <= 0 }

func (c Coin) IsZero() bool           { return c.d.Sign() == 0 }
func (c Coin) IsPositive() bool       { return c.d.Sign() > 0 }
func (c Coin) IsNegative() bool       { return c.d.Sign() < 0 }
func (c Coin) IsZeroOrLess() bool     { return c.d.Sign() <= 0 }
func (c Coin) IsGreaterThanZero() bool { return c.d.Sign() > 0 }

// Abs returns the absolute value.
func (c Coin) Abs() Coin { return Coin{d: c.d.Abs()} }

// Truncate drops precision below `places` decimal digits without rounding.
// Used to snap a price to an exchange ticksize.
func (c Coin) Truncate(places int32) Coin {
	return Coin{d: c.d.Truncate(places)}
}

// TruncateToTick rounds c down toward zero to the nearest multiple of tick,
// e.g. price.TruncateToTick(ticksize). A zero or negative tick is a no-op.
func (c Coin) TruncateToTick(tick Coin) Coin {
	if tick.IsZeroOrLess() {
		return c
	}
	quotient := c.d.DivRound(tick.d, 16).Truncate(0)
	return Coin{d: quotient.Mul(tick.d)}
}

// String renders the canonical decimal representation.
func (c Coin) String() string { return c.d.String() }

// MarshalJSON/UnmarshalJSON allow Coin to participate in the JSON config and
// snapshot formats the way the teacher's scaled-int types do.
func (c Coin) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.d.String() + `"`), nil
}

func (c *Coin) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	c.d = d
	return nil
}

// Precision returns the number of fractional digits in the canonical
// representation of c, used by add_position's over-precision guard.
func (c Coin) Precision() int32 {
	return c.d.Exponent() * -1
}
