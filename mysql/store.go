package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/internal/sqlstore"
)

const errDuplicateEntry = 1062

var dialect = sqlstore.Dialect{
	Name: "mysql",
	ClearDoneBefore: func(table string) string {
		return fmt.Sprintf(
			"DELETE FROM %s WHERE status = ? AND last_attempt_at IS NOT NULL AND last_attempt_at <= ? ORDER BY id LIMIT ?",
			table,
		)
	},
	IsDuplicate: isDuplicate,
}

// Store implements a MySQL-backed outbox.
type Store struct {
	*sqlstore.Store
}

var _ syncbox.Store = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	base, err := sqlstore.New(db, dialect, cfg.base())
	if err != nil {
		return nil, err
	}

	return &Store{Store: base}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Open connects to dsn, ensures the JSON-payload schema and returns a ready
// store. The caller owns the returned database.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, *sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("syncbox mysql: open failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("syncbox mysql: ping failed: %w", err)
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

func isDuplicate(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errDuplicateEntry
	}

	return false
}
