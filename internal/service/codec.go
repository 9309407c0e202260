package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/store"
)

// Key layout. Each ledger instance owns every key under its prefix.
//
//	svc/<ledger>/root           ServiceLedgerState
//	svc/<ledger>/s/<repo_url>   ServiceRequest
//	tok/<ledger>/root           TokenLedgerState
//	tok/<ledger>/b/<account>    balance
//	tok/<ledger>/m/<account>    membership marker
//	tok/<ledger>/h              values hash
func servicePrefix(ledger domain.AccountID) string { return "svc/" + string(ledger) + "/" }
func tokenPrefix(ledger domain.AccountID) string   { return "tok/" + string(ledger) + "/" }

func serviceRootKey(ledger domain.AccountID) string { return servicePrefix(ledger) + "root" }
func requestKey(ledger domain.AccountID, repoURL string) string {
	return servicePrefix(ledger) + "s/" + repoURL
}

func tokenRootKey(ledger domain.AccountID) string  { return tokenPrefix(ledger) + "root" }
func balancePrefix(ledger domain.AccountID) string { return tokenPrefix(ledger) + "b/" }
func memberPrefix(ledger domain.AccountID) string  { return tokenPrefix(ledger) + "m/" }
func valuesHashKey(ledger domain.AccountID) string { return tokenPrefix(ledger) + "h" }

func getJSON(ctx context.Context, tx store.Tx, key string, v any) error {
	raw, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func putJSON(ctx context.Context, tx store.Tx, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Put(ctx, key, raw)
}

func exists(ctx context.Context, tx store.Tx, key string) (bool, error) {
	_, err := tx.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// loadRoot reads a ledger's root record, mapping absence to ErrNotInitialized.
func loadRoot(ctx context.Context, tx store.Tx, key string, v any) error {
	err := getJSON(ctx, tx, key, v)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrNotInitialized
	}
	return err
}
