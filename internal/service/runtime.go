// Package service implements the DeCo ledgers: the fee-gated service request
// ledger and the token and membership ledger.
//
// Every mutating call goes through a Runtime, which admits one call per ledger
// instance at a time and runs it inside a single store transaction. A call
// that returns an error leaves no trace in the store.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/store"
	"github.com/sethvargo/go-retry"
)

// TxFunc is the body of a ledger call.
type TxFunc func(ctx context.Context, tx store.Tx) error

// Runtime serializes calls per ledger instance over a Store.
type Runtime struct {
	store store.Store
	log   logging.Logger
	locks sync.Map // domain.AccountID -> *sync.Mutex

	// conflictRetries bounds how often a call is re-run after losing a write
	// race to another host process.
	conflictRetries uint64
	conflictBackoff time.Duration
}

func NewRuntime(s store.Store, log logging.Logger) *Runtime {
	return &Runtime{
		store:           s,
		log:             log,
		conflictRetries: 3,
		conflictBackoff: 10 * time.Millisecond,
	}
}

// lock blocks until the caller owns ledger and returns the release func.
func (r *Runtime) lock(ledger domain.AccountID) func() {
	v, _ := r.locks.LoadOrStore(ledger, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Call runs fn as one atomic call against ledger.
func (r *Runtime) Call(ctx context.Context, ledger domain.AccountID, method string, fn TxFunc) error {
	unlock := r.lock(ledger)
	defer unlock()
	return r.exec(ctx, ledger, method, fn)
}

// exec runs fn in a transaction. The caller must hold the ledger lock.
func (r *Runtime) exec(ctx context.Context, ledger domain.AccountID, method string, fn TxFunc) error {
	timer := prometheus.NewTimer(ledgerCallDuration.WithLabelValues(method))
	defer timer.ObserveDuration()

	b := retry.WithMaxRetries(r.conflictRetries, retry.NewExponential(r.conflictBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.store.WithTx(ctx, fn)
		if errors.Is(err, store.ErrConflict) {
			ledgerConflictRetries.WithLabelValues(method).Inc()
			return retry.RetryableError(err)
		}
		return err
	})

	outcome := classify(err)
	ledgerCallsTotal.WithLabelValues(method, outcome).Inc()
	switch outcome {
	case outcomeOK:
		r.log.Info(ctx, "ledger call", "method", method, "ledger", ledger)
	case outcomeRejected:
		r.log.Warn(ctx, "ledger call rejected", "method", method, "ledger", ledger, "error", err)
	default:
		r.log.Error(ctx, "ledger call failed", "method", method, "ledger", ledger, "error", err)
	}
	return err
}

// View runs a read-only fn against a consistent snapshot.
func (r *Runtime) View(ctx context.Context, fn TxFunc) error {
	return r.store.WithTx(ctx, fn)
}

// rejections are caller errors: the call was refused before touching state.
var rejections = []error{
	domain.ErrAlreadyInitialized,
	domain.ErrNotInitialized,
	domain.ErrNotAuthorized,
	domain.ErrInsufficientDeposit,
	domain.ErrInsufficientFunds,
	domain.ErrInsufficientBalance,
	domain.ErrInvalidAmount,
	domain.ErrInvalidDecimals,
	domain.ErrArithmeticOverflow,
	domain.ErrInvalidAccountID,
	domain.ErrMinterNotConfigured,
	domain.ErrInvalidRequest,
}

func classify(err error) string {
	if err == nil {
		return outcomeOK
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return outcomeRejected
		}
	}
	return outcomeError
}
