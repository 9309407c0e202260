package domain

import (
	"errors"
	"fmt"
)

// Every ledger call checks its preconditions before touching state, so any of
// these errors means the call had no observable effect.
var (
	ErrAlreadyInitialized  = errors.New("already initialized")
	ErrNotInitialized      = errors.New("not initialized")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInsufficientDeposit = errors.New("insufficient deposit")
	ErrInsufficientFunds   = errors.New("insufficient collected fees")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDecimals     = errors.New("invalid decimals")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrInvalidAccountID    = errors.New("invalid account id")
	ErrMinterNotConfigured = errors.New("minter not configured")
	ErrInvalidRequest      = errors.New("invalid request")

	// ErrPayoutFailed is returned after a failed payout has been compensated.
	ErrPayoutFailed = errors.New("payout failed")
)

// InsufficientDepositError reports the fee gate that rejected a request.
type InsufficientDepositError struct {
	Required Amount
	Provided Amount
}

func (e *InsufficientDepositError) Error() string {
	return fmt.Sprintf("%s: minimum required %s, provided %s", ErrInsufficientDeposit, e.Required, e.Provided)
}

func (e *InsufficientDepositError) Is(target error) bool {
	return target == ErrInsufficientDeposit
}
