package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/events"
	"github.com/punchamoorthee/decoledger/internal/guard"
	"github.com/punchamoorthee/decoledger/internal/host"
	"github.com/punchamoorthee/decoledger/internal/store"
)

// TokenConfig holds the construction parameters of a token ledger.
type TokenConfig struct {
	Owner         domain.AccountID
	Name          string
	Symbol        string
	Decimals      uint8
	ServiceLedger domain.AccountID
	// Minter may stay unset; Mint then fails with ErrMinterNotConfigured
	// until the owner calls SetMinter.
	Minter domain.AccountID
}

// TokenLedger tracks balances and supply of one DeCo token together with its
// membership set and values hash.
type TokenLedger struct {
	rt *Runtime
}

func NewTokenLedger(rt *Runtime) *TokenLedger {
	return &TokenLedger{rt: rt}
}

// Init creates the ledger state. Only the ledger account itself may call it.
func (l *TokenLedger) Init(ctx context.Context, env host.Env, ledger domain.AccountID, cfg TokenConfig) (domain.TokenLedgerState, error) {
	var state domain.TokenLedgerState
	err := l.rt.Call(ctx, ledger, "token.init", func(ctx context.Context, tx store.Tx) error {
		if err := guard.RequireCallerIs(env.CallerID(), ledger); err != nil {
			return err
		}
		if cfg.Decimals > domain.MaxDecimals {
			return fmt.Errorf("%w: %d exceeds %d", domain.ErrInvalidDecimals, cfg.Decimals, domain.MaxDecimals)
		}
		if err := cfg.Owner.Validate(); err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		if err := cfg.ServiceLedger.Validate(); err != nil {
			return fmt.Errorf("service ledger: %w", err)
		}
		if !cfg.Minter.IsZero() {
			if err := cfg.Minter.Validate(); err != nil {
				return fmt.Errorf("minter: %w", err)
			}
		}
		found, err := exists(ctx, tx, tokenRootKey(ledger))
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAlreadyInitialized
		}

		state = domain.TokenLedgerState{
			Name:          cfg.Name,
			Symbol:        cfg.Symbol,
			Decimals:      cfg.Decimals,
			TotalSupply:   domain.NewAmount(0),
			Owner:         cfg.Owner,
			Minter:        cfg.Minter,
			ServiceLedger: cfg.ServiceLedger,
		}
		return putJSON(ctx, tx, tokenRootKey(ledger), state)
	})
	return state, err
}

// Mint credits amount to account. Only the configured minter may call it.
func (l *TokenLedger) Mint(ctx context.Context, env host.Env, ledger, account domain.AccountID, amount domain.Amount) error {
	return l.rt.Call(ctx, ledger, "token.mint", func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		if state.Minter.IsZero() {
			return domain.ErrMinterNotConfigured
		}
		if err := guard.RequireCallerIs(env.CallerID(), state.Minter); err != nil {
			return err
		}
		if amount.IsZero() {
			return fmt.Errorf("%w: mint amount must be positive", domain.ErrInvalidAmount)
		}
		if err := account.Validate(); err != nil {
			return err
		}

		balance, err := readBalance(ctx, tx, ledger, account)
		if err != nil {
			return err
		}
		balance, err = balance.Add(amount)
		if err != nil {
			return err
		}
		supply, err := state.TotalSupply.Add(amount)
		if err != nil {
			return err
		}
		state.TotalSupply = supply

		if err := writeBalance(ctx, tx, ledger, account, balance); err != nil {
			return err
		}
		if err := putJSON(ctx, tx, tokenRootKey(ledger), state); err != nil {
			return err
		}
		_, err = events.Emit(ctx, tx, ledger, domain.EventMinted, env.Now(),
			domain.Minted{Account: account, Amount: amount})
		return err
	})
}

// Burn destroys amount from account. Accounts can only burn their own tokens.
func (l *TokenLedger) Burn(ctx context.Context, env host.Env, ledger, account domain.AccountID, amount domain.Amount) error {
	return l.rt.Call(ctx, ledger, "token.burn", func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		if err := guard.RequireCallerIs(env.CallerID(), account); err != nil {
			return err
		}
		if amount.IsZero() {
			return fmt.Errorf("%w: burn amount must be positive", domain.ErrInvalidAmount)
		}

		balance, err := readBalance(ctx, tx, ledger, account)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, burn %s", domain.ErrInsufficientBalance, balance, amount)
		}
		balance, err = balance.Sub(amount)
		if err != nil {
			return err
		}
		supply, err := state.TotalSupply.Sub(amount)
		if err != nil {
			return err
		}
		state.TotalSupply = supply

		if err := writeBalance(ctx, tx, ledger, account, balance); err != nil {
			return err
		}
		if err := putJSON(ctx, tx, tokenRootKey(ledger), state); err != nil {
			return err
		}
		_, err = events.Emit(ctx, tx, ledger, domain.EventBurned, env.Now(),
			domain.Burned{Account: account, Amount: amount})
		return err
	})
}

// AddActiveMember is idempotent; MemberAdded is emitted only for new members.
func (l *TokenLedger) AddActiveMember(ctx context.Context, env host.Env, ledger, account domain.AccountID) error {
	return l.setMember(ctx, env, ledger, account, true)
}

// RemoveActiveMember is idempotent; MemberRemoved is emitted only for members.
func (l *TokenLedger) RemoveActiveMember(ctx context.Context, env host.Env, ledger, account domain.AccountID) error {
	return l.setMember(ctx, env, ledger, account, false)
}

func (l *TokenLedger) setMember(ctx context.Context, env host.Env, ledger, account domain.AccountID, active bool) error {
	method, kind := "token.add_active_member", domain.EventMemberAdded
	if !active {
		method, kind = "token.remove_active_member", domain.EventMemberRemoved
	}

	return l.rt.Call(ctx, ledger, method, func(ctx context.Context, tx store.Tx) error {
		if err := l.requireOwner(ctx, tx, env, ledger); err != nil {
			return err
		}
		if err := account.Validate(); err != nil {
			return err
		}

		key := memberPrefix(ledger) + string(account)
		member, err := exists(ctx, tx, key)
		if err != nil {
			return err
		}
		if member == active {
			return nil
		}

		if active {
			err = tx.Put(ctx, key, []byte{1})
		} else {
			err = tx.Delete(ctx, key)
		}
		if err != nil {
			return err
		}
		_, err = events.Emit(ctx, tx, ledger, kind, env.Now(), domain.MembershipChanged{Account: account})
		return err
	})
}

// SetValuesCSVHash replaces the stored values hash. The format is not checked.
func (l *TokenLedger) SetValuesCSVHash(ctx context.Context, env host.Env, ledger domain.AccountID, hash string) error {
	return l.rt.Call(ctx, ledger, "token.set_values_csv_hash", func(ctx context.Context, tx store.Tx) error {
		if err := l.requireOwner(ctx, tx, env, ledger); err != nil {
			return err
		}
		if err := tx.Put(ctx, valuesHashKey(ledger), []byte(hash)); err != nil {
			return err
		}
		_, err := events.Emit(ctx, tx, ledger, domain.EventValuesHashUpdated, env.Now(),
			domain.ValuesHashUpdated{Hash: hash})
		return err
	})
}

// SetMinter designates the account allowed to mint.
func (l *TokenLedger) SetMinter(ctx context.Context, env host.Env, ledger, minter domain.AccountID) error {
	return l.rt.Call(ctx, ledger, "token.set_minter", func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		if err := guard.RequireCallerIs(env.CallerID(), state.Owner); err != nil {
			return err
		}
		if err := minter.Validate(); err != nil {
			return fmt.Errorf("minter: %w", err)
		}

		state.Minter = minter
		if err := putJSON(ctx, tx, tokenRootKey(ledger), state); err != nil {
			return err
		}
		_, err := events.Emit(ctx, tx, ledger, domain.EventMinterUpdated, env.Now(),
			domain.MinterUpdated{Minter: minter})
		return err
	})
}

func (l *TokenLedger) requireOwner(ctx context.Context, tx store.Tx, env host.Env, ledger domain.AccountID) error {
	var state domain.TokenLedgerState
	if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
		return err
	}
	return guard.RequireCallerIs(env.CallerID(), state.Owner)
}

func readBalance(ctx context.Context, tx store.Tx, ledger, account domain.AccountID) (domain.Amount, error) {
	raw, err := tx.Get(ctx, balancePrefix(ledger)+string(account))
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewAmount(0), nil
	}
	if err != nil {
		return domain.Amount{}, err
	}
	return domain.ParseAmount(string(raw))
}

// writeBalance drops zero balances so the holder list only shows holders.
func writeBalance(ctx context.Context, tx store.Tx, ledger, account domain.AccountID, balance domain.Amount) error {
	key := balancePrefix(ledger) + string(account)
	if balance.IsZero() {
		return tx.Delete(ctx, key)
	}
	return tx.Put(ctx, key, []byte(balance.String()))
}

func (l *TokenLedger) state(ctx context.Context, ledger domain.AccountID) (domain.TokenLedgerState, error) {
	var state domain.TokenLedgerState
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		return loadRoot(ctx, tx, tokenRootKey(ledger), &state)
	})
	return state, err
}

// State returns the root record of the ledger.
func (l *TokenLedger) State(ctx context.Context, ledger domain.AccountID) (domain.TokenLedgerState, error) {
	return l.state(ctx, ledger)
}

func (l *TokenLedger) TotalSupply(ctx context.Context, ledger domain.AccountID) (domain.Amount, error) {
	state, err := l.state(ctx, ledger)
	return state.TotalSupply, err
}

func (l *TokenLedger) Owner(ctx context.Context, ledger domain.AccountID) (domain.AccountID, error) {
	state, err := l.state(ctx, ledger)
	return state.Owner, err
}

func (l *TokenLedger) Metadata(ctx context.Context, ledger domain.AccountID) (domain.FTMetadata, error) {
	state, err := l.state(ctx, ledger)
	if err != nil {
		return domain.FTMetadata{}, err
	}
	return domain.FTMetadata{
		Spec:     domain.FTSpec,
		Name:     state.Name,
		Symbol:   state.Symbol,
		Decimals: state.Decimals,
	}, nil
}

// BalanceOf returns zero for accounts that never held tokens.
func (l *TokenLedger) BalanceOf(ctx context.Context, ledger, account domain.AccountID) (domain.Amount, error) {
	var balance domain.Amount
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		var err error
		balance, err = readBalance(ctx, tx, ledger, account)
		return err
	})
	return balance, err
}

func (l *TokenLedger) IsActiveMember(ctx context.Context, ledger, account domain.AccountID) (bool, error) {
	var member bool
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		var err error
		member, err = exists(ctx, tx, memberPrefix(ledger)+string(account))
		return err
	})
	return member, err
}

// ActiveMembers lists members ordered by account id.
func (l *TokenLedger) ActiveMembers(ctx context.Context, ledger domain.AccountID) ([]domain.AccountID, error) {
	members := []domain.AccountID{}
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		prefix := memberPrefix(ledger)
		kvs, err := tx.Scan(ctx, prefix)
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			members = append(members, domain.AccountID(strings.TrimPrefix(kv.Key, prefix)))
		}
		return nil
	})
	return members, err
}

// ValuesHash returns nil until the owner has set a hash.
func (l *TokenLedger) ValuesHash(ctx context.Context, ledger domain.AccountID) (*string, error) {
	var hash *string
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		raw, err := tx.Get(ctx, valuesHashKey(ledger))
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		h := string(raw)
		hash = &h
		return nil
	})
	return hash, err
}

// Holders lists every account with a non-zero balance, ordered by account id.
func (l *TokenLedger) Holders(ctx context.Context, ledger domain.AccountID) ([]domain.Holding, error) {
	holders := []domain.Holding{}
	err := l.rt.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var state domain.TokenLedgerState
		if err := loadRoot(ctx, tx, tokenRootKey(ledger), &state); err != nil {
			return err
		}
		prefix := balancePrefix(ledger)
		kvs, err := tx.Scan(ctx, prefix)
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			balance, err := domain.ParseAmount(string(kv.Value))
			if err != nil {
				return fmt.Errorf("corrupt balance %s: %w", kv.Key, err)
			}
			holders = append(holders, domain.Holding{
				Account: domain.AccountID(strings.TrimPrefix(kv.Key, prefix)),
				Balance: balance,
			})
		}
		return nil
	})
	return holders, err
}
