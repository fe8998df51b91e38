package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/velmie/syncbox/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL AUTO_INCREMENT,
	op_id VARCHAR(64) NOT NULL,
	entity_type VARCHAR(64) NOT NULL,
	entity_id VARCHAR(128) NULL,
	op VARCHAR(64) NOT NULL,
	payload %s NULL,
	created_at BIGINT NOT NULL,
	last_attempt_at BIGINT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
	error VARCHAR(1024) NULL,
	PRIMARY KEY (id),
	UNIQUE KEY uq_op_id (op_id),
	INDEX %s (status, created_at, id),
	CONSTRAINT chk_%s_status CHECK (status IN ('PENDING', 'DONE', 'FAILED'))
);`

const (
	payloadJSON = "JSON"
	payloadText = "LONGTEXT"
)

// Schema returns the schema for an outbox table with a JSON payload column.
func Schema(table string) (string, error) {
	return buildSchema(table, payloadJSON)
}

// SchemaText returns a schema with a LONGTEXT payload column that keeps the
// encoded payload byte for byte.
func SchemaText(table string) (string, error) {
	return buildSchema(table, payloadText)
}

// EnsureSchema creates the outbox table with a JSON payload if missing.
func EnsureSchema(ctx context.Context, db *sql.DB, table string) error {
	if db == nil {
		return ErrDBRequired
	}
	schema, err := Schema(table)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("syncbox mysql: ensure schema failed: %w", err)
	}

	return nil
}

func buildSchema(table, payloadType string) (string, error) {
	name, err := sqlstore.TableName(table)
	if err != nil {
		return "", err
	}
	index := sqlstore.BareIndexName(name)

	return fmt.Sprintf(schemaTemplate, name, payloadType, index, constraintSuffix(name)), nil
}

func constraintSuffix(table string) string {
	out := []rune(table)
	for i, r := range out {
		if r == '.' {
			out[i] = '_'
		}
	}

	return string(out)
}
