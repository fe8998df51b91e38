package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/velmie/syncbox/internal/sqlstore"
)

const tableTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	op_id TEXT NOT NULL UNIQUE,
	entity_type TEXT NOT NULL,
	entity_id TEXT NULL,
	op TEXT NOT NULL,
	payload TEXT NULL,
	created_at INTEGER NOT NULL,
	last_attempt_at INTEGER NULL,
	status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'DONE', 'FAILED')),
	error TEXT NULL
);`

const indexTemplate = `CREATE INDEX IF NOT EXISTS %s ON %s (status, created_at, id);`

// Schema returns the DDL statements for an outbox table.
func Schema(table string) ([]string, error) {
	name, err := sqlstore.TableName(table)
	if err != nil {
		return nil, err
	}
	bare := name
	if _, t, ok := strings.Cut(name, "."); ok {
		bare = t
	}

	return []string{
		fmt.Sprintf(tableTemplate, name),
		fmt.Sprintf(indexTemplate, sqlstore.IndexName(name), bare),
	}, nil
}

// EnsureSchema creates the outbox table and its index if missing.
func EnsureSchema(ctx context.Context, db *sql.DB, table string) error {
	if db == nil {
		return ErrDBRequired
	}
	stmts, err := Schema(table)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("syncbox sqlite: ensure schema failed: %w", err)
		}
	}

	return nil
}
