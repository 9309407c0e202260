package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/punchamoorthee/decoledger/internal/dbx"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/store/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens dsn with the modernc driver and applies migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions from
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrations.Up(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &sqlTx{db: tx})
	})
}

func (s *SQLiteStore) Events(ctx context.Context, ledger domain.AccountID, after uint64, limit int) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ledger, seq, kind, ts, data FROM events WHERE ledger = ? AND seq > ? ORDER BY seq LIMIT ?",
		string(ledger), int64(after), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []domain.Event{}
	for rows.Next() {
		var (
			ev         domain.Event
			ledgerID   string
			kind, data string
			seq, stamp int64
		)
		if err := rows.Scan(&ledgerID, &seq, &kind, &stamp, &data); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ev.Ledger = domain.AccountID(ledgerID)
		ev.Seq = uint64(seq)
		ev.Kind = domain.EventKind(kind)
		ev.Timestamp = uint64(stamp)
		ev.Data = []byte(data)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) PendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ledger, destination, amount, status, created_at
		 FROM payouts WHERE status = 'pending' ORDER BY created_at, id LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	return scanPayouts(rows)
}

func (s *SQLiteStore) MarkPayoutDone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE payouts SET status = 'done' WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	db dbx.DBTX
}

func (tx *sqlTx) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := tx.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (tx *sqlTx) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := tx.db.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (tx *sqlTx) Delete(ctx context.Context, key string) error {
	if _, err := tx.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (tx *sqlTx) Scan(ctx context.Context, prefix string) ([]KV, error) {
	rows, err := tx.db.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key",
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []KV
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (tx *sqlTx) AppendEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	var last int64
	err := tx.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE ledger = ?", string(ev.Ledger)).Scan(&last)
	if err != nil {
		return ev, fmt.Errorf("db error: %w", err)
	}
	ev.Seq = uint64(last) + 1

	_, err = tx.db.ExecContext(ctx,
		"INSERT INTO events (ledger, seq, kind, ts, data) VALUES (?, ?, ?, ?, ?)",
		string(ev.Ledger), int64(ev.Seq), string(ev.Kind), int64(ev.Timestamp), string(ev.Data))
	if err != nil {
		return ev, fmt.Errorf("db error: %w", err)
	}
	return ev, nil
}

func (tx *sqlTx) SchedulePayout(ctx context.Context, p domain.Payout) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := tx.db.ExecContext(ctx,
		`INSERT INTO payouts (id, ledger, destination, amount, status, created_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, string(p.Ledger), string(p.Destination), p.Amount.String(), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to schedule payout: %w", err)
	}
	return nil
}

func (tx *sqlTx) FailPayout(ctx context.Context, id string) (domain.Payout, error) {
	row := tx.db.QueryRowContext(ctx,
		`UPDATE payouts SET status = 'failed' WHERE id = ? AND status = 'pending'
		 RETURNING id, ledger, destination, amount, status, created_at`, id)
	p, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (domain.Payout, error) {
	var (
		p                   domain.Payout
		ledger, dest, value string
	)
	if err := row.Scan(&p.ID, &ledger, &dest, &value, &p.Status, &p.CreatedAt); err != nil {
		return p, err
	}
	amount, err := domain.ParseAmount(value)
	if err != nil {
		return p, fmt.Errorf("corrupt payout %s: %w", p.ID, err)
	}
	p.Ledger = domain.AccountID(ledger)
	p.Destination = domain.AccountID(dest)
	p.Amount = amount
	return p, nil
}

func scanPayouts(rows *sql.Rows) ([]domain.Payout, error) {
	var out []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
