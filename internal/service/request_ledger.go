package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/events"
	"github.com/punchamoorthee/decoledger/internal/guard"
	"github.com/punchamoorthee/decoledger/internal/host"
	"github.com/punchamoorthee/decoledger/internal/store"
)

// RequestLedger is the service request ledger. Callers pay at least the
// minimum fee to register a document generation request; the collected fees
// stay in the ledger until the owner withdraws them.
type RequestLedger struct {
	rt     *Runtime
	payer  host.Payer
	outbox PayoutScheduler
}

// PayoutScheduler records a payout inside the withdrawal transaction, so the
// fee deduction and the payout record commit together. Delivery happens after
// commit; a payout the receiver rejects is undone with RevertWithdrawal.
type PayoutScheduler interface {
	SchedulePayout(ctx context.Context, tx store.Tx, ledger, to domain.AccountID, amount domain.Amount) error
}

// NewRequestLedger pays withdrawals synchronously through payer.
func NewRequestLedger(rt *Runtime, payer host.Payer) *RequestLedger {
	return &RequestLedger{rt: rt, payer: payer}
}

// NewOutboxRequestLedger schedules withdrawals through outbox.
func NewOutboxRequestLedger(rt *Runtime, outbox PayoutScheduler) *RequestLedger {
	return &RequestLedger{rt: rt, outbox: outbox}
}

// Init creates the ledger state. Only the ledger account itself may call it.
func (l *RequestLedger) Init(ctx context.Context, env host.Env, ledger, owner domain.AccountID, minFee domain.Amount) (domain.ServiceLedgerState, error) {
	var state domain.ServiceLedgerState
	err := l.rt.Call(ctx, ledger, "service.init", func(ctx context.Context, tx store.Tx) error {
		if err := guard.RequireCallerIs(env.CallerID(), ledger); err != nil {
			return err
		}
		if err := owner.Validate(); err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		found, err := exists(ctx, tx, serviceRootKey(ledger))
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAlreadyInitialized
		}

		state = domain.ServiceLedgerState{
			Owner:     owner,
			MinFee:    minFee,
			TotalFees: domain.NewAmount(0),
		}
		return putJSON(ctx, tx, serviceRootKey(ledger), state)
	})
	return state, err
}

// RequestDocumentGeneration stores a request for repoURL, replacing any earlier
// one, and charges the attached payment as the fee.
func (l *RequestLedger) RequestDocumentGeneration(ctx context.Context, env host.Env, ledger domain.AccountID, repoURL string, areas []string) (domain.ServiceRequest, error) {
	var req domain.ServiceRequest
	err := l.rt.Call(ctx, ledger, "service.request_document_generation", func(ctx context.Context, tx store.Tx) error {
		if repoURL == "" {
			return fmt.Errorf("%w: repo url is required", domain.ErrInvalidRequest)
		}

		var state domain.ServiceLedgerState
		if err := loadRoot(ctx, tx, serviceRootKey(ledger), &state); err != nil {
			return err
		}

		deposit := env.AttachedPayment()
		if deposit.LessThan(state.MinFee) {
			return &domain.InsufficientDepositError{Required: state.MinFee, Provided: deposit}
		}
		if state.TotalServices == math.MaxUint64 || state.NextSeq == math.MaxUint64 {
			return domain.ErrArithmeticOverflow
		}
		fees, err := state.TotalFees.Add(deposit)
		if err != nil {
			return err
		}

		state.NextSeq++
		state.TotalServices++
		state.TotalFees = fees

		if areas == nil {
			areas = []string{}
		}
		req = domain.ServiceRequest{
			Requester:     env.CallerID(),
			RepoURL:       repoURL,
			SelectedAreas: areas,
			Timestamp:     env.Now(),
			TransactionID: transactionID(ledger, state.NextSeq, env.CallerID()),
		}

		if err := putJSON(ctx, tx, requestKey(ledger, repoURL), req); err != nil {
			return err
		}
		if err := putJSON(ctx, tx, serviceRootKey(ledger), state); err != nil {
			return err
		}
		_, err = events.Emit(ctx, tx, ledger, domain.EventServiceRequested, req.Timestamp,
			domain.ServiceRequested{ServiceRequest: req, FeePaid: deposit})
		return err
	})
	return req, err
}

// transactionID is unique per ledger: seq grows by one on every request.
func transactionID(ledger domain.AccountID, seq uint64, caller domain.AccountID) string {
	return fmt.Sprintf("%s:%d:%s", ledger, seq, caller)
}

// OwnerWithdrawFees deducts amount from the collected fees and pays it to to.
//
// With an outbox the payout record is written in the same transaction as the
// deduction. With a synchronous payer the deduction commits first; when the
// payer reports a failure it is reversed in a second transaction and the call
// returns ErrPayoutFailed. The ledger stays locked across both steps, so no
// other call observes the intermediate balance.
func (l *RequestLedger) OwnerWithdrawFees(ctx context.Context, env host.Env, ledger domain.AccountID, amount domain.Amount, to domain.AccountID) error {
	if l.payer == nil && l.outbox == nil {
		return fmt.Errorf("%w: no payer configured", domain.ErrPayoutFailed)
	}

	unlock := l.rt.lock(ledger)
	defer unlock()

	err := l.rt.exec(ctx, ledger, "service.owner_withdraw_fees", func(ctx context.Context, tx store.Tx) error {
		var state domain.ServiceLedgerState
		if err := loadRoot(ctx, tx, serviceRootKey(ledger), &state); err != nil {
			return err
		}
		if err := guard.RequireCallerIs(env.CallerID(), state.Owner); err != nil {
			return err
		}
		if err := to.Validate(); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if state.TotalFees.LessThan(amount) {
			return fmt.Errorf("%w: requested %s, collected %s", domain.ErrInsufficientFunds, amount, state.TotalFees)
		}
		left, err := state.TotalFees.Sub(amount)
		if err != nil {
			return err
		}
		state.TotalFees = left

		if err := putJSON(ctx, tx, serviceRootKey(ledger), state); err != nil {
			return err
		}
		if _, err := events.Emit(ctx, tx, ledger, domain.EventFeesWithdrawn, env.Now(),
			domain.FeesWithdrawn{Amount: amount, Destination: to}); err != nil {
			return err
		}
		if l.outbox != nil {
			return l.outbox.SchedulePayout(ctx, tx, ledger, to, amount)
		}
		return nil
	})
	if err != nil || l.outbox != nil {
		return err
	}

	payErr := l.payer.Payout(ctx, ledger, to, amount)
	if payErr == nil {
		return nil
	}

	// The original ctx may be the reason the payout failed; the re-credit
	// must still land.
	cctx := context.WithoutCancel(ctx)
	err = l.rt.exec(cctx, ledger, "service.revert_withdrawal", func(ctx context.Context, tx store.Tx) error {
		return recredit(ctx, tx, ledger, amount, to, payErr.Error(), env.Now())
	})
	if err != nil {
		l.rt.log.Error(ctx, "withdrawal left uncompensated",
			"ledger", ledger, "amount", amount.String(), "destination", to, "payout_error", payErr, "error", err)
		return fmt.Errorf("%w: %w (compensation failed: %w)", domain.ErrPayoutFailed, payErr, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrPayoutFailed, payErr)
}

// RevertWithdrawal undoes a withdrawal whose scheduled payout was rejected.
// The payout is marked failed and its amount re-credited in one call, so a
// payout is reverted at most once. Only the ledger account itself may call it.
func (l *RequestLedger) RevertWithdrawal(ctx context.Context, env host.Env, ledger domain.AccountID, payoutID, reason string) error {
	return l.rt.Call(ctx, ledger, "service.revert_withdrawal", func(ctx context.Context, tx store.Tx) error {
		if err := guard.RequireCallerIs(env.CallerID(), ledger); err != nil {
			return err
		}
		p, err := tx.FailPayout(ctx, payoutID)
		if err != nil {
			return fmt.Errorf("payout %s: %w", payoutID, err)
		}
		if p.Ledger != ledger {
			return fmt.Errorf("%w: payout %s belongs to %s", domain.ErrNotAuthorized, payoutID, p.Ledger)
		}
		return recredit(ctx, tx, ledger, p.Amount, p.Destination, reason, env.Now())
	})
}

// recredit returns a withdrawn amount to the collected fees.
func recredit(ctx context.Context, tx store.Tx, ledger domain.AccountID, amount domain.Amount, to domain.AccountID, reason string, at uint64) error {
	var state domain.ServiceLedgerState
	if err := loadRoot(ctx, tx, serviceRootKey(ledger), &state); err != nil {
		return err
	}
	fees, err := state.TotalFees.Add(amount)
	if err != nil {
		return err
	}
	state.TotalFees = fees

	if err := putJSON(ctx, tx, serviceRootKey(ledger), state); err != nil {
		return err
	}
	_, err = events.Emit(ctx, tx, ledger, domain.EventWithdrawalReverted, at,
		domain.WithdrawalReverted{Amount: amount, Destination: to, Reason: reason})
	return err
}

// OwnerSetServiceFee replaces the minimum fee. No bounds are enforced.
func (l *RequestLedger) OwnerSetServiceFee(ctx context.Context, env host.Env, ledger domain.AccountID, fee domain.Amount) error {
	return l.rt.Call(ctx, ledger, "service.owner_set_service_fee", func(ctx context.Context, tx store.Tx) error {
		var state domain.ServiceLedgerState
		if err := loadRoot(ctx, tx, serviceRootKey(ledger), &state); err != nil {
			return err
		}
		if err := guard.RequireCallerIs(env.CallerID(), state.Owner); err != nil {
			return err
		}

		old := state.MinFee
		state.MinFee = fee
		if err := putJSON(ctx, tx, serviceRootKey(ledger), state); err != nil {
			return err
		}
		_, err := events.Emit(ctx, tx, ledger, domain.EventFeeUpdated, env.Now(),
			domain.FeeUpdated{OldFee: old, NewFee: fee})
		return err
	})
}

func (l *RequestLedger) state(ctx context.Context, ledger domain.AccountID) (domain.ServiceLedgerState, error) {
	var state domain.ServiceLedgerState
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		return loadRoot(ctx, tx, serviceRootKey(ledger), &state)
	})
	return state, err
}

func (l *RequestLedger) Fee(ctx context.Context, ledger domain.AccountID) (domain.Amount, error) {
	state, err := l.state(ctx, ledger)
	return state.MinFee, err
}

func (l *RequestLedger) TotalServices(ctx context.Context, ledger domain.AccountID) (uint64, error) {
	state, err := l.state(ctx, ledger)
	return state.TotalServices, err
}

func (l *RequestLedger) TotalFeesCollected(ctx context.Context, ledger domain.AccountID) (domain.Amount, error) {
	state, err := l.state(ctx, ledger)
	return state.TotalFees, err
}

func (l *RequestLedger) Stats(ctx context.Context, ledger domain.AccountID) (domain.ServiceStats, error) {
	state, err := l.state(ctx, ledger)
	if err != nil {
		return domain.ServiceStats{}, err
	}
	return domain.ServiceStats{
		Owner:              state.Owner,
		MinFee:             state.MinFee,
		TotalServices:      state.TotalServices,
		TotalFeesCollected: state.TotalFees,
	}, nil
}

// RequestByRepoURL returns the latest request for repoURL, or nil if there is none.
func (l *RequestLedger) RequestByRepoURL(ctx context.Context, ledger domain.AccountID, repoURL string) (*domain.ServiceRequest, error) {
	var req *domain.ServiceRequest
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var state domain.ServiceLedgerState
		if err := loadRoot(ctx, tx, serviceRootKey(ledger), &state); err != nil {
			return err
		}
		var r domain.ServiceRequest
		err := getJSON(ctx, tx, requestKey(ledger, repoURL), &r)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		req = &r
		return nil
	})
	return req, err
}
