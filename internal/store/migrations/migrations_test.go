package migrations

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUp_UnknownDialect(t *testing.T) {
	err := Up(context.Background(), nil, Dialect("oracle"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migration dialect")
}

func TestUp_UsesDialectDirectory(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Up(context.Background(), nil, Postgres))
	assert.Equal(t, "postgres", gotDir)

	require.NoError(t, Up(context.Background(), nil, SQLite))
	assert.Equal(t, "sqlite", gotDir)
}

func TestUp_WrapsGooseError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	boom := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }

	err := Up(context.Background(), nil, SQLite)
	require.ErrorIs(t, err, boom)
}

func TestFS_ContainsBothDialects(t *testing.T) {
	for _, dir := range []string{"postgres", "sqlite"} {
		entries, err := FS.ReadDir(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries, dir)
	}
}
