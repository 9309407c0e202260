// Package host describes what the execution host supplies to a ledger call:
// who is calling, what payment is attached, what time it is, and how value is
// paid out. Durable storage lives in package store.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/decoledger/internal/domain"
)

// Env is the environment of a single ledger call.
type Env interface {
	CallerID() domain.AccountID
	AttachedPayment() domain.Amount
	// Now is the call time in nanoseconds since the Unix epoch.
	Now() uint64
}

// Payer executes value transfers requested by a ledger. A returned error means
// the transfer did not happen.
type Payer interface {
	Payout(ctx context.Context, ledger, to domain.AccountID, amount domain.Amount) error
}

// PayerFunc adapts a function to Payer.
type PayerFunc func(ctx context.Context, ledger, to domain.AccountID, amount domain.Amount) error

func (f PayerFunc) Payout(ctx context.Context, ledger, to domain.AccountID, amount domain.Amount) error {
	return f(ctx, ledger, to, amount)
}

// Call is the plain Env implementation built by transports and tests.
type Call struct {
	Caller  domain.AccountID
	Deposit domain.Amount
	At      time.Time
}

func (c Call) CallerID() domain.AccountID {
	return c.Caller
}

func (c Call) AttachedPayment() domain.Amount {
	return c.Deposit
}

func (c Call) Now() uint64 {
	if c.At.IsZero() {
		return uint64(time.Now().UnixNano())
	}
	return uint64(c.At.UnixNano())
}

type contextKey string

const envKey contextKey = "host_env"

// WithEnv attaches the call environment to ctx.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey, env)
}

// EnvFrom returns the call environment attached by WithEnv.
func EnvFrom(ctx context.Context) (Env, error) {
	env, ok := ctx.Value(envKey).(Env)
	if !ok {
		return nil, errors.New("no call environment in context")
	}
	return env, nil
}
