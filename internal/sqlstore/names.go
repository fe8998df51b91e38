package sqlstore

import (
	"fmt"
	"strings"
)

// TableName validates a table name, optionally schema qualified.
func TableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

// IndexName derives the status index name for a table. For a schema
// qualified table the schema prefixes the index name.
func IndexName(table string) string {
	schema, name, ok := strings.Cut(table, ".")
	if !ok {
		return "idx_" + table + "_status_created"
	}

	return schema + ".idx_" + name + "_status_created"
}

// BareIndexName is IndexName without the schema prefix, for dialects that
// scope index names to their table.
func BareIndexName(table string) string {
	if _, name, ok := strings.Cut(table, "."); ok {
		return "idx_" + name + "_status_created"
	}

	return "idx_" + table + "_status_created"
}
