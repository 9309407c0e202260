// Package listener follows a service ledger's event stream and hands every
// new document generation request to the off-chain oracle.
package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/logging"
)

// Source reads a ledger's event stream. store.Store satisfies it, as does
// HTTPSource.
type Source interface {
	Events(ctx context.Context, ledger domain.AccountID, after uint64, limit int) ([]domain.Event, error)
}

// Handler processes one service request.
type Handler interface {
	HandleServiceRequested(ctx context.Context, ev domain.ServiceRequested) error
}

const pageSize = 100

// seenLimit bounds the transaction ids remembered for de-duplication. Ids
// older than that are far behind the cursor and not re-read.
const seenLimit = 10_000

// ErrRejected marks a request the handler will never accept. The follower
// logs it and moves on instead of retrying.
var ErrRejected = errors.New("request rejected")

// Follower keeps a cursor into one ledger's stream. Events are handled in
// order; a failed handler stops the poll so the event is retried next time.
// ServiceRequested events are handled at most once per transaction id.
type Follower struct {
	src      Source
	ledger   domain.AccountID
	handler  Handler
	interval time.Duration
	log      logging.Logger

	cursor   uint64
	seen     map[string]struct{}
	seenFIFO []string
	maxSeen  int
}

func NewFollower(src Source, ledger domain.AccountID, h Handler, interval time.Duration, log logging.Logger) *Follower {
	return &Follower{
		src:      src,
		ledger:   ledger,
		handler:  h,
		interval: interval,
		log:      log.With("ledger", ledger),
		seen:     make(map[string]struct{}),
		maxSeen:  seenLimit,
	}
}

// StartAfter skips every event up to and including seq.
func (f *Follower) StartAfter(seq uint64) {
	f.cursor = seq
}

// Cursor is the sequence number of the last event consumed.
func (f *Follower) Cursor() uint64 {
	return f.cursor
}

// Run polls until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if _, err := f.Poll(ctx); err != nil && ctx.Err() == nil {
			f.log.Error(ctx, "poll failed", "cursor", f.cursor, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll consumes every available event and reports how many requests it
// handed to the handler.
func (f *Follower) Poll(ctx context.Context) (int, error) {
	handled := 0
	for {
		page, err := f.src.Events(ctx, f.ledger, f.cursor, pageSize)
		if err != nil {
			return handled, fmt.Errorf("read events after %d: %w", f.cursor, err)
		}
		for _, ev := range page {
			ok, err := f.consume(ctx, ev)
			if err != nil {
				return handled, err
			}
			if ok {
				handled++
			}
			f.cursor = ev.Seq
		}
		if len(page) < pageSize {
			return handled, nil
		}
	}
}

func (f *Follower) consume(ctx context.Context, ev domain.Event) (bool, error) {
	if ev.Kind != domain.EventServiceRequested {
		return false, nil
	}

	var req domain.ServiceRequested
	if err := ev.Decode(&req); err != nil {
		// A payload that cannot be decoded never will be; skip it.
		f.log.Error(ctx, "dropping undecodable event", "seq", ev.Seq, "error", err)
		return false, nil
	}
	if _, dup := f.seen[req.TransactionID]; dup {
		f.log.Debug(ctx, "duplicate request", "transaction_id", req.TransactionID)
		return false, nil
	}

	err := f.handler.HandleServiceRequested(ctx, req)
	if errors.Is(err, ErrRejected) {
		f.log.Error(ctx, "request rejected by handler", "seq", ev.Seq, "transaction_id", req.TransactionID, "error", err)
		f.remember(req.TransactionID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("handle %s: %w", req.TransactionID, err)
	}
	f.remember(req.TransactionID)
	f.log.Info(ctx, "request forwarded", "seq", ev.Seq, "transaction_id", req.TransactionID,
		"repo_url", req.RepoURL)
	return true, nil
}

// remember records id, forgetting the oldest id once maxSeen is reached.
func (f *Follower) remember(id string) {
	f.seen[id] = struct{}{}
	f.seenFIFO = append(f.seenFIFO, id)
	if len(f.seenFIFO) > f.maxSeen {
		delete(f.seen, f.seenFIFO[0])
		f.seenFIFO = f.seenFIFO[1:]
	}
}
