package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/internal/sqlstore"
)

var dialect = sqlstore.Dialect{
	Name: "sqlite",
	ClearDoneBefore: func(table string) string {
		return fmt.Sprintf(
			"DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE status = ? AND last_attempt_at IS NOT NULL AND last_attempt_at <= ? ORDER BY id LIMIT ?)",
			table,
			table,
		)
	},
	IsDuplicate: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// Store is a SQLite-backed outbox.
type Store struct {
	*sqlstore.Store
}

var _ syncbox.Store = (*Store)(nil)

// NewStore constructs a store over an open database. The schema must exist,
// see EnsureSchema.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	cfg := newConfig(opts)
	base, err := sqlstore.New(db, dialect, cfg.base())
	if err != nil {
		return nil, err
	}

	return &Store{Store: base}, nil
}

// MustNewStore constructs a store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Open opens dsn with driver (empty means "sqlite"), applies connection
// pragmas, ensures the schema and returns a ready store. The caller owns the
// returned database.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, *sql.DB, error) {
	cfg := newConfig(opts)
	if driver == "" {
		driver = defaultDriver
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("syncbox sqlite: open failed: %w", err)
	}
	// One writer at a time; this also keeps ":memory:" databases on a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("syncbox sqlite: %s failed: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}

	store, err := NewStore(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := EnsureSchema(ctx, db, store.Table()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return store, db, nil
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg.withDefaults()
}
