package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/host"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/service"
	"github.com/punchamoorthee/decoledger/internal/store"
)

// Genesis describes ledgers to deploy and their starting state.
//
//	[service]
//	ledger  = "deco-zero.near"
//	owner   = "juan.near"
//	min_fee = "1000000000000000000000000"
//
//	[token]
//	ledger   = "juan-deco.near"
//	owner    = "juan.near"
//	name     = "Juan DeCo"
//	symbol   = "JUAN"
//	decimals = 18
//	minter   = "oracle.near"
//	members  = ["alice.near"]
//
//	[[token.mints]]
//	account = "alice.near"
//	amount  = "1000"
type Genesis struct {
	Service *ServiceGenesis `toml:"service"`
	Token   *TokenGenesis   `toml:"token"`
}

type ServiceGenesis struct {
	Ledger domain.AccountID `toml:"ledger"`
	Owner  domain.AccountID `toml:"owner"`
	MinFee domain.Amount    `toml:"min_fee"`
}

type TokenGenesis struct {
	Ledger   domain.AccountID `toml:"ledger"`
	Owner    domain.AccountID `toml:"owner"`
	Name     string           `toml:"name"`
	Symbol   string           `toml:"symbol"`
	Decimals uint8            `toml:"decimals"`
	Minter   domain.AccountID `toml:"minter"`
	// ServiceLedger defaults to the [service] ledger.
	ServiceLedger domain.AccountID   `toml:"service_ledger"`
	ValuesHash    string             `toml:"values_hash"`
	Members       []domain.AccountID `toml:"members"`
	Mints         []GenesisMint      `toml:"mints"`
}

type GenesisMint struct {
	Account domain.AccountID `toml:"account"`
	Amount  domain.Amount    `toml:"amount"`
}

func ParseGenesis(raw []byte) (*Genesis, error) {
	var g Genesis
	if err := toml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	if g.Service == nil && g.Token == nil {
		return nil, errors.New("genesis declares no ledgers")
	}
	if g.Token != nil {
		if len(g.Token.Mints) > 0 && g.Token.Minter.IsZero() {
			return nil, errors.New("genesis mints require a token minter")
		}
		if g.Service != nil && g.Token.Ledger == g.Service.Ledger {
			return nil, errors.New("service and token ledgers must differ")
		}
	}
	return &g, nil
}

// Seeder deploys a Genesis through the ledger calls, acting as each
// principal in turn.
//
// A token ledger is seeded in several calls. Once all of them succeed the
// seeder records a marker in the store; a ledger that exists without the
// marker was interrupted and is completed on the next run.
type Seeder struct {
	Requests *service.RequestLedger
	Tokens   *service.TokenLedger
	Store    store.Store
	Log      logging.Logger
}

func as(caller domain.AccountID) host.Call {
	return host.Call{Caller: caller, At: time.Now()}
}

func seededKey(ledger domain.AccountID) string {
	return "genesis/" + string(ledger)
}

// Apply is safe to re-run: a fully seeded ledger is left untouched.
func (s *Seeder) Apply(ctx context.Context, g *Genesis) error {
	if sg := g.Service; sg != nil {
		_, err := s.Requests.Init(ctx, as(sg.Ledger), sg.Ledger, sg.Owner, sg.MinFee)
		switch {
		case errors.Is(err, domain.ErrAlreadyInitialized):
			s.Log.Info(ctx, "service ledger exists, skipping", "ledger", sg.Ledger)
		case err != nil:
			return fmt.Errorf("init service ledger %s: %w", sg.Ledger, err)
		default:
			s.Log.Info(ctx, "service ledger deployed", "ledger", sg.Ledger, "min_fee", sg.MinFee)
		}
	}

	tg := g.Token
	if tg == nil {
		return nil
	}
	done, err := s.seeded(ctx, tg.Ledger)
	if err != nil {
		return err
	}
	if done {
		s.Log.Info(ctx, "token ledger exists, skipping", "ledger", tg.Ledger)
		return nil
	}

	serviceLedger := tg.ServiceLedger
	if serviceLedger.IsZero() && g.Service != nil {
		serviceLedger = g.Service.Ledger
	}
	_, err = s.Tokens.Init(ctx, as(tg.Ledger), tg.Ledger, service.TokenConfig{
		Owner:         tg.Owner,
		Name:          tg.Name,
		Symbol:        tg.Symbol,
		Decimals:      tg.Decimals,
		ServiceLedger: serviceLedger,
		Minter:        tg.Minter,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyInitialized):
		s.Log.Warn(ctx, "resuming interrupted token genesis", "ledger", tg.Ledger)
	case err != nil:
		return fmt.Errorf("init token ledger %s: %w", tg.Ledger, err)
	}

	if err := s.mint(ctx, tg); err != nil {
		return err
	}
	for _, member := range tg.Members {
		if err := s.Tokens.AddActiveMember(ctx, as(tg.Owner), tg.Ledger, member); err != nil {
			return fmt.Errorf("add member %s: %w", member, err)
		}
	}
	if tg.ValuesHash != "" {
		current, err := s.Tokens.ValuesHash(ctx, tg.Ledger)
		if err != nil {
			return err
		}
		if current == nil || *current != tg.ValuesHash {
			if err := s.Tokens.SetValuesCSVHash(ctx, as(tg.Owner), tg.Ledger, tg.ValuesHash); err != nil {
				return fmt.Errorf("set values hash: %w", err)
			}
		}
	}

	if err := s.markSeeded(ctx, tg.Ledger); err != nil {
		return err
	}
	s.Log.Info(ctx, "token ledger deployed", "ledger", tg.Ledger, "mints", len(tg.Mints), "members", len(tg.Members))
	return nil
}

// mint brings every genesis account up to its genesis balance, so mints that
// landed before an interruption are not repeated.
func (s *Seeder) mint(ctx context.Context, tg *TokenGenesis) error {
	want := make(map[domain.AccountID]domain.Amount)
	var order []domain.AccountID
	for _, m := range tg.Mints {
		total, ok := want[m.Account]
		if !ok {
			order = append(order, m.Account)
			total = domain.NewAmount(0)
		}
		sum, err := total.Add(m.Amount)
		if err != nil {
			return fmt.Errorf("genesis mints to %s: %w", m.Account, err)
		}
		want[m.Account] = sum
	}

	for _, account := range order {
		have, err := s.Tokens.BalanceOf(ctx, tg.Ledger, account)
		if err != nil {
			return err
		}
		if !have.LessThan(want[account]) {
			continue
		}
		missing, err := want[account].Sub(have)
		if err != nil {
			return err
		}
		if err := s.Tokens.Mint(ctx, as(tg.Minter), tg.Ledger, account, missing); err != nil {
			return fmt.Errorf("mint %s to %s: %w", missing, account, err)
		}
	}
	return nil
}

func (s *Seeder) seeded(ctx context.Context, ledger domain.AccountID) (bool, error) {
	var found bool
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Get(ctx, seededKey(ledger))
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("read genesis marker: %w", err)
	}
	return found, nil
}

func (s *Seeder) markSeeded(ctx context.Context, ledger domain.AccountID) error {
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Put(ctx, seededKey(ledger), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("write genesis marker: %w", err)
	}
	return nil
}
