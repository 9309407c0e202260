package service

import (
	"context"
	"errors"
	"testing"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenID  = domain.AccountID("juan-deco.near")
	minterID = domain.AccountID("oracle.near")
)

func newTokenLedger(t *testing.T, minter domain.AccountID) (*TokenLedger, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	l := NewTokenLedger(NewRuntime(s, logging.Nop()))

	_, err := l.Init(context.Background(), call(tokenID), tokenID, TokenConfig{
		Owner:         ownerID,
		Name:          "Juan DeCo",
		Symbol:        "JUAN",
		Decimals:      18,
		ServiceLedger: serviceID,
		Minter:        minter,
	})
	require.NoError(t, err)
	return l, s
}

func requireSupplyConserved(t *testing.T, l *TokenLedger) {
	t.Helper()
	ctx := context.Background()

	holders, err := l.Holders(ctx, tokenID)
	require.NoError(t, err)
	sum := domain.NewAmount(0)
	for _, h := range holders {
		sum, err = sum.Add(h.Balance)
		require.NoError(t, err)
	}
	supply, err := l.TotalSupply(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, supply.Cmp(sum), "supply %s != sum of balances %s", supply, sum)
}

func TestTokenLedger_Init(t *testing.T) {
	ctx := context.Background()
	l := NewTokenLedger(NewRuntime(store.NewMemoryStore(), logging.Nop()))
	cfg := TokenConfig{Owner: ownerID, Name: "T", Symbol: "T", Decimals: 25, ServiceLedger: serviceID}

	_, err := l.Init(ctx, call(tokenID), tokenID, cfg)
	require.ErrorIs(t, err, domain.ErrInvalidDecimals)

	cfg.Decimals = 24
	_, err = l.Init(ctx, call(ownerID), tokenID, cfg)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	cfg.Minter = "NOT VALID"
	_, err = l.Init(ctx, call(tokenID), tokenID, cfg)
	require.ErrorIs(t, err, domain.ErrInvalidAccountID)

	cfg.Minter = ""
	state, err := l.Init(ctx, call(tokenID), tokenID, cfg)
	require.NoError(t, err)
	assert.True(t, state.TotalSupply.IsZero())
	assert.True(t, state.Minter.IsZero())

	_, err = l.Init(ctx, call(tokenID), tokenID, cfg)
	require.ErrorIs(t, err, domain.ErrAlreadyInitialized)

	meta, err := l.Metadata(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, domain.FTMetadata{Spec: "ft-1.0.0", Name: "T", Symbol: "T", Decimals: 24}, meta)
}

func TestTokenLedger_MintBurnScenario(t *testing.T) {
	ctx := context.Background()
	l, s := newTokenLedger(t, minterID)

	require.NoError(t, l.Mint(ctx, call(minterID), tokenID, aliceID, domain.NewAmount(1000)))

	bal, err := l.BalanceOf(ctx, tokenID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
	supply, err := l.TotalSupply(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, "1000", supply.String())

	err = l.Burn(ctx, call(bobID), tokenID, aliceID, domain.NewAmount(500))
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, l.Burn(ctx, call(aliceID), tokenID, aliceID, domain.NewAmount(500)))
	bal, err = l.BalanceOf(ctx, tokenID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, "500", bal.String())
	supply, err = l.TotalSupply(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, "500", supply.String())

	requireSupplyConserved(t, l)
	assert.Equal(t, []domain.EventKind{domain.EventMinted, domain.EventBurned}, eventKinds(t, s, tokenID))
}

func TestTokenLedger_MintAuthorization(t *testing.T) {
	ctx := context.Background()

	l, _ := newTokenLedger(t, "")
	err := l.Mint(ctx, call(ownerID), tokenID, aliceID, domain.NewAmount(1))
	require.ErrorIs(t, err, domain.ErrMinterNotConfigured)

	err = l.SetMinter(ctx, call(aliceID), tokenID, minterID)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, l.SetMinter(ctx, call(ownerID), tokenID, minterID))
	state, err := l.State(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, minterID, state.Minter)

	err = l.Mint(ctx, call(ownerID), tokenID, aliceID, domain.NewAmount(1))
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, l.Mint(ctx, call(minterID), tokenID, aliceID, domain.NewAmount(1)))
}

func TestTokenLedger_MintRejections(t *testing.T) {
	ctx := context.Background()
	l, _ := newTokenLedger(t, minterID)

	err := l.Mint(ctx, call(minterID), tokenID, aliceID, domain.NewAmount(0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	err = l.Mint(ctx, call(minterID), tokenID, "-bad", domain.NewAmount(1))
	require.ErrorIs(t, err, domain.ErrInvalidAccountID)

	require.NoError(t, l.Mint(ctx, call(minterID), tokenID, aliceID, domain.MaxAmount()))
	err = l.Mint(ctx, call(minterID), tokenID, bobID, domain.NewAmount(1))
	require.ErrorIs(t, err, domain.ErrArithmeticOverflow)

	bal, err := l.BalanceOf(ctx, tokenID, bobID)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
	requireSupplyConserved(t, l)
}

func TestTokenLedger_BurnRejections(t *testing.T) {
	ctx := context.Background()
	l, s := newTokenLedger(t, minterID)
	require.NoError(t, l.Mint(ctx, call(minterID), tokenID, aliceID, domain.NewAmount(10)))

	err := l.Burn(ctx, call(aliceID), tokenID, aliceID, domain.NewAmount(0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	err = l.Burn(ctx, call(aliceID), tokenID, aliceID, domain.NewAmount(11))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	err = l.Burn(ctx, call(bobID), tokenID, bobID, domain.NewAmount(1))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	bal, err := l.BalanceOf(ctx, tokenID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())
	assert.Equal(t, []domain.EventKind{domain.EventMinted}, eventKinds(t, s, tokenID))

	// Burning everything drops the holder.
	require.NoError(t, l.Burn(ctx, call(aliceID), tokenID, aliceID, domain.NewAmount(10)))
	holders, err := l.Holders(ctx, tokenID)
	require.NoError(t, err)
	assert.Empty(t, holders)
	requireSupplyConserved(t, l)
}

func TestTokenLedger_Holders(t *testing.T) {
	ctx := context.Background()
	l, _ := newTokenLedger(t, minterID)

	require.NoError(t, l.Mint(ctx, call(minterID), tokenID, bobID, domain.NewAmount(7)))
	require.NoError(t, l.Mint(ctx, call(minterID), tokenID, aliceID, domain.NewAmount(3)))
	require.NoError(t, l.Mint(ctx, call(minterID), tokenID, bobID, domain.NewAmount(1)))

	holders, err := l.Holders(ctx, tokenID)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, aliceID, holders[0].Account)
	assert.Equal(t, "3", holders[0].Balance.String())
	assert.Equal(t, bobID, holders[1].Account)
	assert.Equal(t, "8", holders[1].Balance.String())
	requireSupplyConserved(t, l)
}

func TestTokenLedger_Membership(t *testing.T) {
	ctx := context.Background()
	l, s := newTokenLedger(t, minterID)

	err := l.AddActiveMember(ctx, call(aliceID), tokenID, aliceID)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, l.AddActiveMember(ctx, call(ownerID), tokenID, aliceID))
	require.NoError(t, l.AddActiveMember(ctx, call(ownerID), tokenID, aliceID))
	require.NoError(t, l.AddActiveMember(ctx, call(ownerID), tokenID, bobID))

	member, err := l.IsActiveMember(ctx, tokenID, aliceID)
	require.NoError(t, err)
	assert.True(t, member)

	members, err := l.ActiveMembers(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{aliceID, bobID}, members)

	require.NoError(t, l.RemoveActiveMember(ctx, call(ownerID), tokenID, aliceID))
	require.NoError(t, l.RemoveActiveMember(ctx, call(ownerID), tokenID, aliceID))
	require.NoError(t, l.RemoveActiveMember(ctx, call(ownerID), tokenID, "carol.near"))

	member, err = l.IsActiveMember(ctx, tokenID, aliceID)
	require.NoError(t, err)
	assert.False(t, member)

	assert.Equal(t, []domain.EventKind{
		domain.EventMemberAdded,
		domain.EventMemberAdded,
		domain.EventMemberRemoved,
	}, eventKinds(t, s, tokenID))
}

func TestTokenLedger_ValuesHash(t *testing.T) {
	ctx := context.Background()
	l, _ := newTokenLedger(t, minterID)

	hash, err := l.ValuesHash(ctx, tokenID)
	require.NoError(t, err)
	assert.Nil(t, hash)

	err = l.SetValuesCSVHash(ctx, call(aliceID), tokenID, "abc")
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, l.SetValuesCSVHash(ctx, call(ownerID), tokenID, "sha256:01ab"))
	require.NoError(t, l.SetValuesCSVHash(ctx, call(ownerID), tokenID, "not even a hash"))

	hash, err = l.ValuesHash(ctx, tokenID)
	require.NoError(t, err)
	require.NotNil(t, hash)
	assert.Equal(t, "not even a hash", *hash)
}

func TestTokenLedger_QueriesOnUnknownLedger(t *testing.T) {
	ctx := context.Background()
	l := NewTokenLedger(NewRuntime(store.NewMemoryStore(), logging.Nop()))

	_, err := l.BalanceOf(ctx, tokenID, aliceID)
	require.ErrorIs(t, err, domain.ErrNotInitialized)
	_, err = l.Owner(ctx, tokenID)
	require.ErrorIs(t, err, domain.ErrNotInitialized)
	_, err = l.Holders(ctx, tokenID)
	require.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestTokenLedger_BalanceOfUnknownAccountIsZero(t *testing.T) {
	l, _ := newTokenLedger(t, minterID)

	bal, err := l.BalanceOf(context.Background(), tokenID, "nobody.near")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	owner, err := l.Owner(context.Background(), tokenID)
	require.NoError(t, err)
	assert.Equal(t, ownerID, owner)
}

func TestTokenLedger_SupplyConservedOverSequence(t *testing.T) {
	ctx := context.Background()
	l, _ := newTokenLedger(t, minterID)
	carolID := domain.AccountID("carol.near")

	ops := []struct {
		burn    bool
		account domain.AccountID
		amount  uint64
		wantErr error
	}{
		{account: aliceID, amount: 500},
		{account: bobID, amount: 120},
		{burn: true, account: aliceID, amount: 200},
		{burn: true, account: bobID, amount: 121, wantErr: domain.ErrInsufficientBalance},
		{account: carolID, amount: 0, wantErr: domain.ErrInvalidAmount},
		{account: carolID, amount: 75},
		{burn: true, account: bobID, amount: 120},
		{burn: true, account: carolID, amount: 0, wantErr: domain.ErrInvalidAmount},
		{account: aliceID, amount: 1},
		{burn: true, account: aliceID, amount: 301},
	}
	for i, op := range ops {
		var err error
		if op.burn {
			err = l.Burn(ctx, call(op.account), tokenID, op.account, domain.NewAmount(op.amount))
		} else {
			err = l.Mint(ctx, call(minterID), tokenID, op.account, domain.NewAmount(op.amount))
		}
		if op.wantErr != nil {
			require.True(t, errors.Is(err, op.wantErr), "op %d: got %v", i, err)
		} else {
			require.NoError(t, err, "op %d", i)
		}
		requireSupplyConserved(t, l)
	}

	supply, err := l.TotalSupply(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, "75", supply.String())
	holders, err := l.Holders(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Holding{{Account: carolID, Balance: domain.NewAmount(75)}}, holders)
}
