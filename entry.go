package syncbox

import (
	"encoding/json"
	"time"
)

// Entry is a stored outbox row.
type Entry struct {
	// ID is the store-assigned sequence number.
	ID int64
	// OpID is the idempotency key, assigned once at enqueue and never changed.
	OpID       string
	EntityKind EntityKind
	EntityID   string
	OpKind     OpKind
	// Payload is the JSON encoded operation payload, nil when absent.
	Payload   json.RawMessage
	CreatedAt time.Time
	// LastAttemptAt is nil until the first delivery attempt.
	LastAttemptAt *time.Time
	Status        Status
	// Error holds the diagnostic message of the last failed attempt.
	Error string
}

// Operation decodes the entry back into the operation it was enqueued from.
func (e Entry) Operation() (PendingOperation, error) {
	return Decode(e)
}

// Clone returns a copy of e that shares no memory with it.
func (e Entry) Clone() Entry {
	out := e
	if e.Payload != nil {
		out.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	if e.LastAttemptAt != nil {
		at := *e.LastAttemptAt
		out.LastAttemptAt = &at
	}

	return out
}
