package domain

import (
	"fmt"
)

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// AccountID identifies a caller, a ledger instance or a payout destination.
type AccountID string

// ParseAccountID validates s and returns it as an AccountID.
//
// Valid ids are 2..64 characters of lowercase letters and digits, optionally
// split by single '-', '_' or '.' separators (e.g. "deco-zero.near").
func ParseAccountID(s string) (AccountID, error) {
	if err := AccountID(s).Validate(); err != nil {
		return "", err
	}
	return AccountID(s), nil
}

// MustAccountID is ParseAccountID for constants and tests.
func MustAccountID(s string) AccountID {
	id, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (a AccountID) String() string {
	return string(a)
}

// IsZero reports whether a is unset.
func (a AccountID) IsZero() bool {
	return a == ""
}

// Validate checks a against the account id rules.
func (a AccountID) Validate() error {
	if len(a) < minAccountIDLen || len(a) > maxAccountIDLen {
		return fmt.Errorf("%w: %q must be %d..%d characters", ErrInvalidAccountID, string(a), minAccountIDLen, maxAccountIDLen)
	}

	lastWasSeparator := true // leading separator is invalid
	for i := 0; i < len(a); i++ {
		c := a[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			lastWasSeparator = false
		case c == '-' || c == '_' || c == '.':
			if lastWasSeparator {
				return fmt.Errorf("%w: %q has a misplaced separator", ErrInvalidAccountID, string(a))
			}
			lastWasSeparator = true
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidAccountID, string(a), c)
		}
	}
	if lastWasSeparator {
		return fmt.Errorf("%w: %q ends with a separator", ErrInvalidAccountID, string(a))
	}
	return nil
}

// UnmarshalText validates account ids decoded from JSON or TOML. An empty
// value decodes to the unset id.
func (a *AccountID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = ""
		return nil
	}
	id, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*a = id
	return nil
}
