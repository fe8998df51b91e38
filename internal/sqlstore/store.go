// Package sqlstore implements syncbox.Store on database/sql. Backend
// packages supply a Dialect with their schema and driver specifics.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/velmie/syncbox"
)

const defaultCleanupLimit = 10000

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// Name prefixes error messages, e.g. "sqlite".
	Name string
	// ClearDoneBefore returns a statement deleting at most N DONE rows
	// attempted at or before a cutoff. Args: status, cutoff micros, limit.
	ClearDoneBefore func(table string) string
	// IsDuplicate reports a unique constraint violation.
	IsDuplicate func(err error) bool
}

// Config defines store behavior.
type Config struct {
	Table     string
	Clock     syncbox.Clock
	Generator syncbox.IDGenerator
	// AllowUnsupported accepts operations without a dedicated remote route.
	AllowUnsupported bool
}

// WithDefaults fills unset fields. defaultTable is used when Table is empty.
func (c Config) WithDefaults(defaultTable string) Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Clock == nil {
		c.Clock = syncbox.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = syncbox.UUIDv7Generator{}
	}

	return c
}

// Store is a database/sql backed outbox.
type Store struct {
	db      *sql.DB
	cfg     Config
	dialect Dialect
	queries queries
	table   string
}

var _ syncbox.Store = (*Store)(nil)

// New constructs a store. cfg must already carry defaults.
func New(db *sql.DB, dialect Dialect, cfg Config) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	table, err := TableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		dialect: dialect,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// Table returns the validated table name.
func (s *Store) Table() string {
	return s.table
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Enqueue implements syncbox.Store.
func (s *Store) Enqueue(ctx context.Context, op syncbox.PendingOperation) (syncbox.Entry, error) {
	return s.EnqueueTx(ctx, s.db, op)
}

// EnqueueTx inserts the outbox row through exec, typically the transaction
// of the business write it belongs to.
func (s *Store) EnqueueTx(ctx context.Context, exec syncbox.Executor, op syncbox.PendingOperation) (syncbox.Entry, error) {
	if exec == nil {
		return syncbox.Entry{}, ErrExecutorRequired
	}
	if err := syncbox.ValidateOperation(op, s.cfg.AllowUnsupported); err != nil {
		return syncbox.Entry{}, err
	}
	payload, err := syncbox.EncodePayload(op.Payload)
	if err != nil {
		return syncbox.Entry{}, err
	}
	opID, err := s.cfg.Generator.New()
	if err != nil {
		return syncbox.Entry{}, fmt.Errorf("syncbox %s: generate op id failed: %w", s.dialect.Name, err)
	}
	if opID == "" {
		return syncbox.Entry{}, syncbox.ErrEmptyOpID
	}
	createdAt := s.cfg.Clock.Now()

	res, err := exec.ExecContext(
		ctx,
		s.queries.insert,
		opID,
		string(op.EntityKind),
		nullString(op.EntityID),
		string(op.OpKind),
		nullPayload(payload),
		createdAt.UnixMicro(),
		string(syncbox.StatusPending),
	)
	if err != nil {
		if s.dialect.IsDuplicate != nil && s.dialect.IsDuplicate(err) {
			return syncbox.Entry{}, fmt.Errorf("%w: %s", syncbox.ErrDuplicateOpID, opID)
		}
		return syncbox.Entry{}, fmt.Errorf("syncbox %s: insert failed: %w", s.dialect.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return syncbox.Entry{}, fmt.Errorf("syncbox %s: last insert id failed: %w", s.dialect.Name, err)
	}

	return syncbox.Entry{
		ID:         id,
		OpID:       opID,
		EntityKind: op.EntityKind,
		EntityID:   op.EntityID,
		OpKind:     op.OpKind,
		Payload:    payload,
		CreatedAt:  time.UnixMicro(createdAt.UnixMicro()).UTC(),
		Status:     syncbox.StatusPending,
	}, nil
}

// Get implements syncbox.Store.
func (s *Store) Get(ctx context.Context, id int64) (syncbox.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, s.queries.get, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return syncbox.Entry{}, false, nil
	}
	if err != nil {
		return syncbox.Entry{}, false, fmt.Errorf("syncbox %s: get failed: %w", s.dialect.Name, err)
	}

	return entry, true, nil
}

// ListPending implements syncbox.Store.
func (s *Store) ListPending(ctx context.Context, limit int) ([]syncbox.Entry, error) {
	return s.list(ctx, syncbox.StatusPending, limit)
}

// ListFailed implements syncbox.Store.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]syncbox.Entry, error) {
	return s.list(ctx, syncbox.StatusFailed, limit)
}

// CountPending implements syncbox.Store.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	return s.count(ctx, syncbox.StatusPending)
}

// CountFailed implements syncbox.Store.
func (s *Store) CountFailed(ctx context.Context) (int, error) {
	return s.count(ctx, syncbox.StatusFailed)
}

// MarkAttempt implements syncbox.Store.
func (s *Store) MarkAttempt(ctx context.Context, id int64, attemptedAt time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		s.queries.markAttempt,
		attemptedAt.UnixMicro(),
		id,
		string(syncbox.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("syncbox %s: mark attempt failed: %w", s.dialect.Name, err)
	}

	return nil
}

// MarkDone implements syncbox.Store.
func (s *Store) MarkDone(ctx context.Context, id int64, attemptedAt time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		s.queries.markDone,
		string(syncbox.StatusDone),
		attemptedAt.UnixMicro(),
		id,
		string(syncbox.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("syncbox %s: mark done failed: %w", s.dialect.Name, err)
	}

	return nil
}

// MarkFailed implements syncbox.Store.
func (s *Store) MarkFailed(ctx context.Context, id int64, attemptedAt time.Time, msg string) error {
	_, err := s.db.ExecContext(
		ctx,
		s.queries.markFailed,
		string(syncbox.StatusFailed),
		attemptedAt.UnixMicro(),
		syncbox.TruncateError(msg),
		id,
		string(syncbox.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("syncbox %s: mark failed failed: %w", s.dialect.Name, err)
	}

	return nil
}

// ResetFailed implements syncbox.Store.
func (s *Store) ResetFailed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		s.queries.resetOne,
		string(syncbox.StatusPending),
		id,
		string(syncbox.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("syncbox %s: reset failed: %w", s.dialect.Name, err)
	}

	return nil
}

// ResetAllFailed implements syncbox.Store.
func (s *Store) ResetAllFailed(ctx context.Context) (int64, error) {
	return s.exec(ctx, "reset all", s.queries.resetAll, string(syncbox.StatusPending), string(syncbox.StatusFailed))
}

// ClearDone implements syncbox.Store.
func (s *Store) ClearDone(ctx context.Context) (int64, error) {
	return s.exec(ctx, "clear done", s.queries.clearDone, string(syncbox.StatusDone))
}

// ClearDoneBefore deletes up to limit DONE rows whose last attempt is at or
// before cutoff. A zero limit uses the default of 10000.
func (s *Store) ClearDoneBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	if before.IsZero() {
		return 0, ErrCleanupBeforeRequired
	}
	if limit < 0 {
		return 0, ErrCleanupLimitInvalid
	}
	if limit == 0 {
		limit = defaultCleanupLimit
	}

	// #nosec G201 -- table name is sanitized.
	query := s.dialect.ClearDoneBefore(s.table)

	return s.exec(ctx, "clear done before", query, string(syncbox.StatusDone), before.UnixMicro(), limit)
}

func (s *Store) exec(ctx context.Context, step, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("syncbox %s: %s failed: %w", s.dialect.Name, step, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("syncbox %s: %s rows failed: %w", s.dialect.Name, step, err)
	}

	return n, nil
}

func (s *Store) list(ctx context.Context, status syncbox.Status, limit int) ([]syncbox.Entry, error) {
	if limit <= 0 {
		return nil, syncbox.ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx, s.queries.listByStatus, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("syncbox %s: select failed: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	entries := make([]syncbox.Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("syncbox %s: scan failed: %w", s.dialect.Name, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("syncbox %s: rows failed: %w", s.dialect.Name, err)
	}

	return entries, nil
}

func (s *Store) count(ctx context.Context, status syncbox.Status) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.queries.count, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("syncbox %s: count failed: %w", s.dialect.Name, err)
	}

	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (syncbox.Entry, error) {
	var (
		entry       syncbox.Entry
		entityKind  string
		entityID    sql.NullString
		opKind      string
		payload     sql.NullString
		createdAt   int64
		lastAttempt sql.NullInt64
		status      string
		errMsg      sql.NullString
	)
	if err := row.Scan(
		&entry.ID,
		&entry.OpID,
		&entityKind,
		&entityID,
		&opKind,
		&payload,
		&createdAt,
		&lastAttempt,
		&status,
		&errMsg,
	); err != nil {
		return syncbox.Entry{}, err
	}

	entry.EntityKind = syncbox.EntityKind(entityKind)
	if kind, err := syncbox.ParseEntityKind(entityKind); err == nil {
		entry.EntityKind = kind
	}
	entry.EntityID = entityID.String
	entry.OpKind = syncbox.OpKind(opKind)
	if kind, err := syncbox.ParseOpKind(opKind); err == nil {
		entry.OpKind = kind
	}
	if payload.Valid {
		entry.Payload = json.RawMessage(payload.String)
	}
	entry.CreatedAt = time.UnixMicro(createdAt).UTC()
	if lastAttempt.Valid {
		at := time.UnixMicro(lastAttempt.Int64).UTC()
		entry.LastAttemptAt = &at
	}
	entry.Status = syncbox.Status(status)
	entry.Error = errMsg.String

	return entry, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func nullPayload(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}

	return string(raw)
}
