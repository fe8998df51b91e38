package sqlstore

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("syncbox sql: db is required")
	// ErrExecutorRequired is returned when enqueue is called with a nil executor.
	ErrExecutorRequired = errors.New("syncbox sql: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("syncbox sql: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("syncbox sql: invalid table name")
	// ErrCleanupBeforeRequired is returned when a cleanup cutoff is missing.
	ErrCleanupBeforeRequired = errors.New("syncbox sql: cleanup before time is required")
	// ErrCleanupLimitInvalid is returned when a cleanup limit is negative.
	ErrCleanupLimitInvalid = errors.New("syncbox sql: cleanup limit must be non-negative")
)
