package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/host"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/store"
	"github.com/sethvargo/go-retry"
)

const dispatchBatch = 50

// errRejected marks a payout the webhook refused outright.
var errRejected = errors.New("webhook rejected payout")

// Reverter undoes the ledger side of a payout that was rejected.
type Reverter interface {
	RevertWithdrawal(ctx context.Context, env host.Env, ledger domain.AccountID, payoutID, reason string) error
}

// Dispatcher delivers pending payouts to a webhook and marks them done.
// The webhook receives the payout id as Idempotency-Key, since a payout can be
// delivered more than once if marking it done fails. A rejected payout is
// handed to the Reverter; one that fails for any other reason stays pending.
type Dispatcher struct {
	store    store.Store
	reverter Reverter
	client   *http.Client
	url      string
	interval time.Duration
	log      logging.Logger

	maxRetries uint64
	backoff    time.Duration
	now        func() time.Time
}

func NewDispatcher(s store.Store, reverter Reverter, client *http.Client, url string, interval time.Duration, log logging.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		store:      s,
		reverter:   reverter,
		client:     client,
		url:        url,
		interval:   interval,
		log:        log,
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
		now:        time.Now,
	}
}

// Run dispatches on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Error(ctx, "payout dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch of pending payouts and reports how many
// were delivered.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.store.PendingPayouts(ctx, dispatchBatch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, p := range pending {
		err := d.deliver(ctx, p)
		if errors.Is(err, errRejected) {
			d.revert(ctx, p, err)
			continue
		}
		if err != nil {
			d.log.Warn(ctx, "payout not delivered", "payout_id", p.ID, "ledger", p.Ledger, "error", err)
			continue
		}
		if err := d.store.MarkPayoutDone(ctx, p.ID); err != nil {
			return delivered, fmt.Errorf("mark payout %s done: %w", p.ID, err)
		}
		delivered++
		d.log.Info(ctx, "payout delivered", "payout_id", p.ID, "ledger", p.Ledger,
			"destination", p.Destination, "amount", p.Amount.String())
	}
	return delivered, nil
}

// revert runs as the ledger account, which is the only caller allowed to undo
// its own withdrawals.
func (d *Dispatcher) revert(ctx context.Context, p domain.Payout, cause error) {
	env := host.Call{Caller: p.Ledger, At: d.now()}
	if err := d.reverter.RevertWithdrawal(ctx, env, p.Ledger, p.ID, cause.Error()); err != nil {
		d.log.Error(ctx, "rejected payout not reverted", "payout_id", p.ID, "ledger", p.Ledger,
			"payout_error", cause, "error", err)
		return
	}
	d.log.Warn(ctx, "payout rejected, withdrawal reverted", "payout_id", p.ID, "ledger", p.Ledger,
		"amount", p.Amount.String(), "error", cause)
}

func (d *Dispatcher) deliver(ctx context.Context, p domain.Payout) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	b := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", p.ID)

		resp, err := d.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return retry.RetryableError(fmt.Errorf("webhook returned %d", resp.StatusCode))
		default:
			return fmt.Errorf("%w: %s", errRejected, resp.Status)
		}
	})
}
