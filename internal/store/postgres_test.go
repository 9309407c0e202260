package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPgError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"unique violation", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"}), true},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, false},
		{"plain error", errors.New("conn reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapPgError(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(got, ErrConflict))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

// Set DECO_TEST_POSTGRES_DSN to a disposable database to run the shared suite.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DECO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DECO_TEST_POSTGRES_DSN not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := NewPostgresStore(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		_, err = s.Db.Exec(ctx, "TRUNCATE kv, events, payouts")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
