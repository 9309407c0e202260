package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// amountBits is the width of every balance, fee and supply value.
const amountBits = 128

// Amount is an unsigned 128-bit quantity. Arithmetic is checked: results that
// do not fit return ErrArithmeticOverflow instead of wrapping.
//
// The zero value is 0 and Amount is safe to copy.
type Amount struct {
	v uint256.Int
}

// NewAmount returns n as an Amount.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if s[0] == '+' || s[0] == '-' {
		return Amount{}, fmt.Errorf("%w: %q must be unsigned", ErrInvalidAmount, s)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if v.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%w: %q exceeds 128 bits", ErrArithmeticOverflow, s)
	}
	return Amount{v: *v}, nil
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MaxAmount returns 2^128 - 1.
func MaxAmount() Amount {
	var a Amount
	a.v.SetAllOne()
	a.v.Rsh(&a.v, 256-amountBits)
	return a
}

// Add returns a + b.
func (a Amount) Add(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.v.AddOverflow(&a.v, &b.v); overflow || r.v.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, a, b)
	}
	return r, nil
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) (Amount, error) {
	var r Amount
	if _, underflow := r.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, a, b)
	}
	return r, nil
}

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) LessThan(b Amount) bool {
	return a.v.Lt(&b.v)
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Uint64 returns the low 64 bits and whether a fits in them.
func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

func (a Amount) String() string {
	return a.v.Dec()
}

// MarshalJSON encodes the amount as a decimal string, so values above 2^53
// survive JSON consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalText lets amounts appear in TOML and as map keys.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(b []byte) error {
	v, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
