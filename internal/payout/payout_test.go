package payout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/host"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/service"
	"github.com/punchamoorthee/decoledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serviceID = domain.AccountID("deco-zero.near")
	ownerID   = domain.AccountID("owner.near")
)

func schedule(t *testing.T, s store.Store, to domain.AccountID, amount uint64) {
	t.Helper()
	o := NewOutbox()
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return o.SchedulePayout(ctx, tx, serviceID, to, domain.NewAmount(amount))
	}))
}

func TestOutbox_SchedulesPendingPayout(t *testing.T) {
	s := store.NewMemoryStore()
	o := NewOutbox()
	o.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	o.newID = func() string { return "payout-1" }

	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return o.SchedulePayout(ctx, tx, serviceID, ownerID, domain.NewAmount(42))
	}))

	pending, err := s.PendingPayouts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "payout-1", pending[0].ID)
	assert.Equal(t, serviceID, pending[0].Ledger)
	assert.Equal(t, ownerID, pending[0].Destination)
	assert.Equal(t, "42", pending[0].Amount.String())
	assert.Equal(t, o.now(), pending[0].CreatedAt)
}

type failingTx struct{ store.Tx }

func (failingTx) SchedulePayout(context.Context, domain.Payout) error {
	return errors.New("db down")
}

func TestOutbox_ReportsStoreFailure(t *testing.T) {
	err := NewOutbox().SchedulePayout(context.Background(), failingTx{}, serviceID, ownerID, domain.NewAmount(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

type reverterFunc func(ctx context.Context, env host.Env, ledger domain.AccountID, payoutID, reason string) error

func (f reverterFunc) RevertWithdrawal(ctx context.Context, env host.Env, ledger domain.AccountID, payoutID, reason string) error {
	return f(ctx, env, ledger, payoutID, reason)
}

func newDispatcher(s store.Store, r Reverter, url string) *Dispatcher {
	d := NewDispatcher(s, r, nil, url, time.Hour, logging.Nop())
	d.backoff = time.Millisecond
	return d
}

func TestDispatcher_DeliversAndMarksDone(t *testing.T) {
	var got []domain.Payout
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p domain.Payout
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, p.ID, r.Header.Get("Idempotency-Key"))
		got = append(got, p)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	schedule(t, s, ownerID, 10)
	schedule(t, s, "treasury.near", 20)

	ctx := context.Background()
	n, err := newDispatcher(s, nil, srv.URL).DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got, 2)
	assert.Equal(t, "10", got[0].Amount.String())
	assert.Equal(t, domain.AccountID("treasury.near"), got[1].Destination)

	pending, err := s.PendingPayouts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	schedule(t, s, ownerID, 1)

	n, err := newDispatcher(s, nil, srv.URL).DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDispatcher_KeepsUnreachablePayoutPending(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	schedule(t, s, ownerID, 1)

	reverted := false
	r := reverterFunc(func(context.Context, host.Env, domain.AccountID, string, string) error {
		reverted = true
		return nil
	})
	n, err := newDispatcher(s, r, srv.URL).DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(4), hits.Load())
	assert.False(t, reverted)

	pending, err := s.PendingPayouts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDispatcher_RevertsRejectedWithdrawal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ctx := context.Background()
	s := store.NewMemoryStore()
	requests := service.NewOutboxRequestLedger(service.NewRuntime(s, logging.Nop()), NewOutbox())

	_, err := requests.Init(ctx, host.Call{Caller: serviceID}, serviceID, ownerID, domain.NewAmount(100))
	require.NoError(t, err)
	_, err = requests.RequestDocumentGeneration(ctx,
		host.Call{Caller: "alice.near", Deposit: domain.NewAmount(100)}, serviceID, "github.com/a/b", nil)
	require.NoError(t, err)
	require.NoError(t, requests.OwnerWithdrawFees(ctx, host.Call{Caller: ownerID}, serviceID, domain.NewAmount(60), ownerID))

	fees, err := requests.TotalFeesCollected(ctx, serviceID)
	require.NoError(t, err)
	assert.Equal(t, "40", fees.String())

	d := newDispatcher(s, requests, srv.URL)
	for range 3 {
		n, err := d.DispatchOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	// Rejections are not retried, and a failed payout is not picked up again.
	assert.Equal(t, int32(1), hits.Load())

	fees, err = requests.TotalFeesCollected(ctx, serviceID)
	require.NoError(t, err)
	assert.Equal(t, "100", fees.String())

	pending, err := s.PendingPayouts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	evs, err := s.Events(ctx, serviceID, 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, domain.EventFeesWithdrawn, evs[1].Kind)
	assert.Equal(t, domain.EventWithdrawalReverted, evs[2].Kind)

	var reverted domain.WithdrawalReverted
	require.NoError(t, evs[2].Decode(&reverted))
	assert.Equal(t, "60", reverted.Amount.String())
	assert.Equal(t, ownerID, reverted.Destination)
	assert.Contains(t, reverted.Reason, "400")
}

func TestDispatcher_KeepsRejectedPayoutPendingWhenRevertFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	schedule(t, s, ownerID, 5)

	var gotEnv host.Env
	r := reverterFunc(func(_ context.Context, env host.Env, ledger domain.AccountID, _, _ string) error {
		gotEnv = env
		assert.Equal(t, serviceID, ledger)
		return errors.New("store unavailable")
	})
	n, err := newDispatcher(s, r, srv.URL).DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NotNil(t, gotEnv)
	assert.Equal(t, serviceID, gotEnv.CallerID())

	pending, err := s.PendingPayouts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDispatcher(store.NewMemoryStore(), nil, "http://127.0.0.1:0")
	require.NoError(t, d.Run(ctx))
}
