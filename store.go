package syncbox

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"
)

// MaxErrorLength is the number of runes of a failure message kept by stores.
const MaxErrorLength = 1024

// Store is the durable, ordered outbox queue.
//
// Status updates are atomic single-row operations guarded on the current
// status: MarkAttempt, MarkDone and MarkFailed only touch PENDING entries,
// ResetFailed only moves FAILED entries. Unknown ids are no-ops.
type Store interface {
	// Enqueue appends op with a fresh op id in PENDING state.
	Enqueue(ctx context.Context, op PendingOperation) (Entry, error)
	// Get returns the entry with the given id.
	Get(ctx context.Context, id int64) (Entry, bool, error)
	// ListPending returns up to limit PENDING entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]Entry, error)
	// ListFailed returns up to limit FAILED entries, oldest first.
	ListFailed(ctx context.Context, limit int) ([]Entry, error)
	// CountPending returns the number of PENDING entries.
	CountPending(ctx context.Context) (int, error)
	// CountFailed returns the number of FAILED entries.
	CountFailed(ctx context.Context) (int, error)
	// MarkAttempt stamps the last attempt time of a PENDING entry before it
	// is sent.
	MarkAttempt(ctx context.Context, id int64, attemptedAt time.Time) error
	// MarkDone moves a PENDING entry to DONE.
	MarkDone(ctx context.Context, id int64, attemptedAt time.Time) error
	// MarkFailed moves a PENDING entry to FAILED with a diagnostic message.
	MarkFailed(ctx context.Context, id int64, attemptedAt time.Time, msg string) error
	// ResetFailed moves a FAILED entry back to PENDING, clearing its error
	// and last attempt time.
	ResetFailed(ctx context.Context, id int64) error
	// ResetAllFailed resets every FAILED entry like ResetFailed.
	ResetAllFailed(ctx context.Context) (int64, error)
	// ClearDone deletes DONE entries and returns how many were removed.
	ClearDone(ctx context.Context) (int64, error)
}

// Executor runs SQL statements, typically a *sql.Tx of the business write.
type Executor interface {
	// ExecContext executes a statement without returning rows.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TruncateError shortens msg to MaxErrorLength runes.
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorLength {
		return msg
	}
	runes := []rune(msg)

	return string(runes[:MaxErrorLength])
}
