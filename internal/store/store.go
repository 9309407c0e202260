// Package store persists ledger state for the host: a transactional key-value
// space, a per-ledger append-only event log, and a payout outbox.
//
// Everything written inside one WithTx call commits or rolls back together,
// which is what makes each ledger call all-or-nothing.
package store

import (
	"context"
	"errors"

	"github.com/punchamoorthee/decoledger/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent writer won; the call may be retried.
	ErrConflict = errors.New("write conflict")
)

// KV is one key-value pair returned by Scan.
type KV struct {
	Key   string
	Value []byte
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	// Get returns ErrNotFound for absent keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	// Scan returns every pair whose key starts with prefix, ordered by key.
	Scan(ctx context.Context, prefix string) ([]KV, error)
	// AppendEvent assigns the next sequence number of ev.Ledger and stores ev.
	AppendEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	// SchedulePayout records p as pending. Scheduling an existing id is a no-op.
	SchedulePayout(ctx context.Context, p domain.Payout) error
	// FailPayout moves a pending payout to failed and returns it. It returns
	// ErrNotFound unless the payout exists and is still pending.
	FailPayout(ctx context.Context, id string) (domain.Payout, error)
}

// Store is a durable backend for ledger state.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Events returns up to limit events of ledger with Seq > after, in order.
	Events(ctx context.Context, ledger domain.AccountID, after uint64, limit int) ([]domain.Event, error)
	PendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error)
	MarkPayoutDone(ctx context.Context, id string) error
	Close() error
}

const (
	// DefaultEventLimit applies when the caller passes a non-positive limit.
	DefaultEventLimit = 100
	// MaxEventLimit caps larger limits.
	MaxEventLimit = 1000
)

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultEventLimit
	case limit > MaxEventLimit:
		return MaxEventLimit
	}
	return limit
}
