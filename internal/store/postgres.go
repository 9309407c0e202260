package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/store/migrations"
)

// PostgresStore implements Store on a pgx connection pool. Every WithTx call
// runs at REPEATABLE READ; losing a race surfaces as ErrConflict.
type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

// Migrate applies the embedded schema through a database/sql view of the pool.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.Db)
	defer db.Close()
	return migrations.Up(ctx, db, migrations.Postgres)
}

func (s *PostgresStore) Close() error {
	s.Db.Close()
	return nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("tx commit failed: %w", err))
	}
	return nil
}

func (s *PostgresStore) Events(ctx context.Context, ledger domain.AccountID, after uint64, limit int) ([]domain.Event, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT ledger, seq, kind, ts, data::text FROM events WHERE ledger = $1 AND seq > $2 ORDER BY seq LIMIT $3",
		string(ledger), int64(after), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("events query failed: %w", err)
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
			return nil, fmt.Errorf("events scan failed: %w", err)
		}
		ev.Ledger = domain.AccountID(ledgerID)
		ev.Seq = uint64(seq)
		ev.Kind = domain.EventKind(kind)
		ev.Timestamp = uint64(stamp)
		ev.Data = []byte(data)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT id, ledger, destination, amount, status, created_at
		 FROM payouts WHERE status = 'pending' ORDER BY created_at, id LIMIT $1`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("payouts query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("payouts scan failed: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkPayoutDone(ctx context.Context, id string) error {
	tag, err := s.Db.Exec(ctx, "UPDATE payouts SET status = 'done' WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("payout update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := t.tx.QueryRow(ctx, "SELECT value FROM kv WHERE key = $1", key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapPgError(fmt.Errorf("kv read failed: %w", err))
	}
	return v, nil
}

func (t *pgTx) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := t.tx.Exec(ctx,
		"INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		key, value)
	if err != nil {
		return mapPgError(fmt.Errorf("kv write failed: %w", err))
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, key string) error {
	if _, err := t.tx.Exec(ctx, "DELETE FROM kv WHERE key = $1", key); err != nil {
		return mapPgError(fmt.Errorf("kv delete failed: %w", err))
	}
	return nil
}

func (t *pgTx) Scan(ctx context.Context, prefix string) ([]KV, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT key, value FROM kv WHERE starts_with(key, $1) ORDER BY key COLLATE "C"`, prefix)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("kv scan failed: %w", err))
	}
	defer rows.Close()

	var out []KV
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("kv scan failed: %w", err)
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

func (t *pgTx) AppendEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	var last int64
	err := t.tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE ledger = $1", string(ev.Ledger)).Scan(&last)
	if err != nil {
		return ev, mapPgError(fmt.Errorf("event sequence failed: %w", err))
	}
	ev.Seq = uint64(last) + 1

	_, err = t.tx.Exec(ctx,
		"INSERT INTO events (ledger, seq, kind, ts, data) VALUES ($1, $2, $3, $4, $5::jsonb)",
		string(ev.Ledger), int64(ev.Seq), string(ev.Kind), int64(ev.Timestamp), string(ev.Data))
	if err != nil {
		return ev, mapPgError(fmt.Errorf("event insert failed: %w", err))
	}
	return ev, nil
}

func (t *pgTx) SchedulePayout(ctx context.Context, p domain.Payout) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO payouts (id, ledger, destination, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, 'pending', $5)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, string(p.Ledger), string(p.Destination), p.Amount.String(), p.CreatedAt)
	if err != nil {
		return mapPgError(fmt.Errorf("failed to schedule payout: %w", err))
	}
	return nil
}

func (t *pgTx) FailPayout(ctx context.Context, id string) (domain.Payout, error) {
	row := t.tx.QueryRow(ctx,
		`UPDATE payouts SET status = 'failed' WHERE id = $1 AND status = 'pending'
		 RETURNING id, ledger, destination, amount, status, created_at`, id)
	p, err := scanPayout(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, mapPgError(fmt.Errorf("payout update failed: %w", err))
	}
	return p, nil
}

// mapPgError turns serialization failures and unique violations into
// ErrConflict while keeping the driver error in the chain.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "23505":
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
