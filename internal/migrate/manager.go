// Package migrate applies the context store schema and its seed rows to Postgres.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Bundled is the schema and seed data compiled into the binaries.
//
//go:embed sql/*.sql seeds/*.sql
var Bundled embed.FS

var (
	// ErrNothingApplied is returned by Down when no migration has been recorded.
	ErrNothingApplied = errors.New("migrate: nothing to roll back")
	// ErrNoDownFile is returned by Down when the latest migration has no .down.sql file.
	ErrNoDownFile = errors.New("migrate: down file missing")
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"

	bookkeepingDDL = `create table if not exists %s (name text primary key, applied_at timestamptz not null default now())`
)

// Manager applies numbered .up.sql files and seed files, recording each by file name so
// reruns skip what is already in place.
type Manager struct {
	db              *sql.DB
	files           fs.FS
	migrationsDir   string
	seedsDir        string
	migrationsTable string
	seedsTable      string
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable names the table that records applied migrations.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable names the table that records applied seed files.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// NewManager reads migrations from migrationsDir and seeds from seedsDir inside files.
func NewManager(db *sql.DB, files fs.FS, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		files:           files,
		migrationsDir:   migrationsDir,
		seedsDir:        seedsDir,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewBundled works on the files embedded in Bundled.
func NewBundled(db *sql.DB, opts ...Option) *Manager {
	return NewManager(db, Bundled, "sql", "seeds", opts...)
}

// Up runs every .up.sql file not yet recorded, in file name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.applyPending(ctx, m.migrationsTable, m.migrationsDir, ".up.sql", "migration")
}

// Seed runs every seed file not yet recorded, in file name order.
func (m *Manager) Seed(ctx context.Context) error {
	return m.applyPending(ctx, m.seedsTable, m.seedsDir, ".sql", "seed")
}

// Down reverts the latest recorded migration with its .down.sql file.
func (m *Manager) Down(ctx context.Context) error {
	history, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return ErrNothingApplied
	}
	latest := history[len(history)-1]
	down := path.Join(m.migrationsDir, strings.TrimSuffix(latest, ".up.sql")+".down.sql")
	if _, err := fs.Stat(m.files, down); err != nil {
		return fmt.Errorf("%w: %s", ErrNoDownFile, latest)
	}
	if err := m.runFile(ctx, down); err != nil {
		return fmt.Errorf("migrate: revert %s: %w", latest, err)
	}
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable), latest); err != nil {
		return fmt.Errorf("migrate: forget %s: %w", latest, err)
	}
	return nil
}

// Status lists recorded migrations, oldest first.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.applied(ctx, m.migrationsTable, true)
}

func (m *Manager) applyPending(ctx context.Context, table, dir, suffix, kind string) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx, table, false)
	if err != nil {
		return err
	}
	seen := lo.SliceToMap(done, func(name string) (string, bool) { return name, true })

	files, err := collectSQL(m.files, dir, suffix)
	if err != nil {
		return err
	}
	for _, f := range files {
		if seen[f.Base] {
			continue
		}
		if err := m.runFile(ctx, f.Path); err != nil {
			return fmt.Errorf("migrate: %s %s: %w", kind, f.Base, err)
		}
		if err := m.record(ctx, table, f.Base); err != nil {
			return fmt.Errorf("migrate: record %s %s: %w", kind, f.Base, err)
		}
	}
	return nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf(bookkeepingDDL, table)); err != nil {
			return fmt.Errorf("migrate: create %s: %w", table, err)
		}
	}
	return nil
}

// runFile executes every statement of one file inside a single transaction.
func (m *Manager) runFile(ctx context.Context, name string) error {
	body, err := fs.ReadFile(m.files, name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(body)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, table, name string) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, table),
		name, time.Now().UTC())
	return err
}

func (m *Manager) applied(ctx context.Context, table string, ordered bool) ([]string, error) {
	query := fmt.Sprintf(`select name from %s`, table)
	if ordered {
		query += ` order by applied_at, name`
	}
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", table, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type sqlFile struct {
	Base string
	Path string
}

// collectSQL lists the files of dir ending in suffix, sorted by name. A missing dir holds nothing.
func collectSQL(fsys fs.FS, dir, suffix string) ([]sqlFile, error) {
	if fsys == nil || dir == "" {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("migrate: list %s: %w", dir, err)
	}
	var out []sqlFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		out = append(out, sqlFile{Base: e.Name(), Path: path.Join(dir, e.Name())})
	}
	return out, nil
}

// splitStatements cuts sql after each semicolon outside a single-quoted literal.
// Statements keep their semicolon; a trailing statement without one is kept too.
func splitStatements(sql string) []string {
	var out []string
	quoted, start := false, 0
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			quoted = !quoted
		case ';':
			if !quoted {
				out = append(out, sql[start:i+1])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(sql[start:]) != "" {
		out = append(out, sql[start:])
	}
	return out
}
