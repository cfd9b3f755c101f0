package pg

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ndjobi.org/internal/ctxstore"
)

// Store keeps execution context keys in the comms_context table.
type Store struct {
	db *sql.DB
}

var (
	_ ctxstore.KV      = (*Store)(nil)
	_ ctxstore.Batcher = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from comms_context where key=$1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, upsertSQL, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from comms_context where key=$1`, key)
	return err
}

// Apply writes and deletes keys in one transaction. Upserts run in key order.
func (s *Store) Apply(ctx context.Context, set map[string]string, del []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, upsertSQL, key, set[key]); err != nil {
			return err
		}
	}
	for _, key := range del {
		if _, err := tx.ExecContext(ctx, `delete from comms_context where key=$1`, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const upsertSQL = `
	insert into comms_context(key, value, updated_at)
	values ($1, $2, now())
	on conflict (key) do update
	set value = excluded.value, updated_at = excluded.updated_at
`
