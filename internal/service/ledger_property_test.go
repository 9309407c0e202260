//go:build property
// +build property

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/store"
)

var propertyAccounts = []domain.AccountID{"alice.near", "bob.near", "carol.near"}

type tokenOp struct {
	Burn    bool
	Account int
	Amount  uint64
}

func genTokenOp() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.IntRange(0, len(propertyAccounts)-1),
		gen.UInt64Range(0, 500),
	).Map(func(vals []interface{}) tokenOp {
		return tokenOp{Burn: vals[0].(bool), Account: vals[1].(int), Amount: vals[2].(uint64)}
	})
}

// TestSupplyConservation verifies total supply tracks the sum of balances.
// Property: after any sequence of mint/burn, supply == sum(balances) and no
// rejected burn changes a balance.
func TestSupplyConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("mint and burn conserve supply", prop.ForAll(
		func(ops []tokenOp) bool {
			ctx := context.Background()
			l := NewTokenLedger(NewRuntime(store.NewMemoryStore(), logging.Nop()))
			if _, err := l.Init(ctx, call(tokenID), tokenID, TokenConfig{
				Owner: ownerID, Name: "P", Symbol: "P", ServiceLedger: serviceID, Minter: minterID,
			}); err != nil {
				return false
			}

			model := map[domain.AccountID]uint64{}
			for _, op := range ops {
				acct := propertyAccounts[op.Account]
				amount := domain.NewAmount(op.Amount)
				if op.Burn {
					err := l.Burn(ctx, call(acct), tokenID, acct, amount)
					switch {
					case op.Amount == 0:
						if !errors.Is(err, domain.ErrInvalidAmount) {
							return false
						}
					case op.Amount > model[acct]:
						if !errors.Is(err, domain.ErrInsufficientBalance) {
							return false
						}
					default:
						if err != nil {
							return false
						}
						model[acct] -= op.Amount
					}
					continue
				}

				err := l.Mint(ctx, call(minterID), tokenID, acct, amount)
				if op.Amount == 0 {
					if !errors.Is(err, domain.ErrInvalidAmount) {
						return false
					}
					continue
				}
				if err != nil {
					return false
				}
				model[acct] += op.Amount
			}

			var sum uint64
			for _, acct := range propertyAccounts {
				bal, err := l.BalanceOf(ctx, tokenID, acct)
				if err != nil {
					return false
				}
				got, ok := bal.Uint64()
				if !ok || got != model[acct] {
					return false
				}
				sum += got
			}
			supply, err := l.TotalSupply(ctx, tokenID)
			if err != nil {
				return false
			}
			total, ok := supply.Uint64()
			return ok && total == sum
		},
		gen.SliceOf(genTokenOp()),
	))

	properties.TestingRun(t)
}

// TestFeeGate verifies underpaid requests never change the ledger.
// Property: deposit < fee rejects with no state change; deposit >= fee
// increments total services by one and fees by the deposit.
func TestFeeGate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("fee gate is all-or-nothing", prop.ForAll(
		func(fee, deposit uint64) bool {
			ctx := context.Background()
			s := store.NewMemoryStore()
			l := NewRequestLedger(NewRuntime(s, logging.Nop()), &recordingPayer{})
			if _, err := l.Init(ctx, call(serviceID), serviceID, ownerID, domain.NewAmount(fee)); err != nil {
				return false
			}

			_, err := l.RequestDocumentGeneration(ctx, paying(aliceID, deposit), serviceID, "github.com/p/q", []string{"legal"})
			stats, serr := l.Stats(ctx, serviceID)
			if serr != nil {
				return false
			}
			collected, _ := stats.TotalFeesCollected.Uint64()

			if deposit < fee {
				stored, _ := l.RequestByRepoURL(ctx, serviceID, "github.com/p/q")
				return errors.Is(err, domain.ErrInsufficientDeposit) &&
					stats.TotalServices == 0 && collected == 0 && stored == nil
			}
			return err == nil && stats.TotalServices == 1 && collected == deposit
		},
		gen.UInt64Range(0, 1_000_000),
		gen.UInt64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}

// TestWithdrawalBound verifies withdrawals never exceed collected fees.
// Property: amount > collected rejects; otherwise collected drops by amount.
func TestWithdrawalBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("withdrawal is bounded by collected fees", prop.ForAll(
		func(deposit, amount uint64) bool {
			ctx := context.Background()
			l := NewRequestLedger(NewRuntime(store.NewMemoryStore(), logging.Nop()), &recordingPayer{})
			if _, err := l.Init(ctx, call(serviceID), serviceID, ownerID, domain.NewAmount(0)); err != nil {
				return false
			}
			if _, err := l.RequestDocumentGeneration(ctx, paying(aliceID, deposit), serviceID, "github.com/p/q", nil); err != nil {
				return false
			}

			err := l.OwnerWithdrawFees(ctx, call(ownerID), serviceID, domain.NewAmount(amount), ownerID)
			fees, ferr := l.TotalFeesCollected(ctx, serviceID)
			if ferr != nil {
				return false
			}
			left, _ := fees.Uint64()

			if amount > deposit {
				return errors.Is(err, domain.ErrInsufficientFunds) && left == deposit
			}
			return err == nil && left == deposit-amount
		},
		gen.UInt64Range(0, 10_000),
		gen.UInt64Range(0, 10_000),
	))

	properties.TestingRun(t)
}
