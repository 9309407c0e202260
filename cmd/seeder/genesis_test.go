package main

import (
	"context"
	"testing"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/service"
	"github.com/punchamoorthee/decoledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisTOML = `
[service]
ledger  = "deco-zero.near"
owner   = "juan.near"
min_fee = "1000000000000000000000000"

[token]
ledger      = "juan-deco.near"
owner       = "juan.near"
name        = "Juan DeCo"
symbol      = "JUAN"
decimals    = 18
minter      = "oracle.near"
members     = ["alice.near", "bob.near"]
values_hash = "sha256:feed"

[[token.mints]]
account = "alice.near"
amount  = "1000"

[[token.mints]]
account = "bob.near"
amount  = "250"
`

func TestParseGenesis(t *testing.T) {
	g, err := ParseGenesis([]byte(genesisTOML))
	require.NoError(t, err)

	require.NotNil(t, g.Service)
	assert.Equal(t, domain.AccountID("deco-zero.near"), g.Service.Ledger)
	assert.Equal(t, "1000000000000000000000000", g.Service.MinFee.String())

	require.NotNil(t, g.Token)
	assert.Equal(t, uint8(18), g.Token.Decimals)
	assert.Len(t, g.Token.Mints, 2)
	assert.Equal(t, "250", g.Token.Mints[1].Amount.String())
}

func TestParseGenesis_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":          ``,
		"bad account":    "[service]\nledger = \"Not Valid\"\n",
		"bad amount":     "[service]\nledger = \"a.near\"\nmin_fee = \"-5\"\n",
		"mint no minter": "[token]\nledger = \"t.near\"\n[[token.mints]]\naccount = \"a.near\"\namount = \"1\"\n",
		"same ledger":    "[service]\nledger = \"a.near\"\n[token]\nledger = \"a.near\"\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesis([]byte(raw))
			require.Error(t, err)
		})
	}
}

func newSeeder(st store.Store) *Seeder {
	rt := service.NewRuntime(st, logging.Nop())
	return &Seeder{
		Requests: service.NewRequestLedger(rt, nil),
		Tokens:   service.NewTokenLedger(rt),
		Store:    st,
		Log:      logging.Nop(),
	}
}

func TestSeederApply(t *testing.T) {
	ctx := context.Background()
	g, err := ParseGenesis([]byte(genesisTOML))
	require.NoError(t, err)

	s := newSeeder(store.NewMemoryStore())
	require.NoError(t, s.Apply(ctx, g))

	fee, err := s.Requests.Fee(ctx, "deco-zero.near")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", fee.String())

	supply, err := s.Tokens.TotalSupply(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Equal(t, "1250", supply.String())

	members, err := s.Tokens.ActiveMembers(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"alice.near", "bob.near"}, members)

	state, err := s.Tokens.State(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountID("deco-zero.near"), state.ServiceLedger)

	// A second run leaves existing ledgers alone.
	require.NoError(t, s.Apply(ctx, g))
	supply, err = s.Tokens.TotalSupply(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Equal(t, "1250", supply.String())
}

func TestSeederApply_ResumesInterruptedGenesis(t *testing.T) {
	ctx := context.Background()
	g, err := ParseGenesis([]byte(genesisTOML))
	require.NoError(t, err)

	// bob's mint overflows the supply after alice's mint has landed.
	broken := *g.Token
	broken.Mints = []GenesisMint{
		{Account: "alice.near", Amount: domain.NewAmount(1000)},
		{Account: "bob.near", Amount: domain.MaxAmount()},
	}
	st := store.NewMemoryStore()
	s := newSeeder(st)
	err = s.Apply(ctx, &Genesis{Service: g.Service, Token: &broken})
	require.ErrorIs(t, err, domain.ErrArithmeticOverflow)

	members, err := s.Tokens.ActiveMembers(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Empty(t, members)

	// The fixed genesis completes the ledger without minting alice twice.
	require.NoError(t, s.Apply(ctx, g))

	supply, err := s.Tokens.TotalSupply(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Equal(t, "1250", supply.String())
	alice, err := s.Tokens.BalanceOf(ctx, "juan-deco.near", "alice.near")
	require.NoError(t, err)
	assert.Equal(t, "1000", alice.String())

	members, err = s.Tokens.ActiveMembers(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"alice.near", "bob.near"}, members)

	hash, err := s.Tokens.ValuesHash(ctx, "juan-deco.near")
	require.NoError(t, err)
	require.NotNil(t, hash)
	assert.Equal(t, "sha256:feed", *hash)

	// Once complete, later runs leave the ledger alone even if balances move.
	require.NoError(t, s.Tokens.Burn(ctx, as("alice.near"), "juan-deco.near", "alice.near", domain.NewAmount(400)))
	require.NoError(t, s.Apply(ctx, g))
	supply, err = s.Tokens.TotalSupply(ctx, "juan-deco.near")
	require.NoError(t, err)
	assert.Equal(t, "850", supply.String())
}
