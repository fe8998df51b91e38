package syncbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// APIVersion is the envelope version produced by NewEnvelope.
const APIVersion = 1

// Envelope is the versioned wire document delivered to a Remote.
type Envelope struct {
	APIVersion int
	DeviceID   string
	// OpID is the idempotency key copied from the outbox entry.
	OpID       string
	SentAt     time.Time
	EntityKind EntityKind
	EntityID   string
	OpKind     OpKind
	// Body is the canonical body, nil for bodiless operations.
	Body map[string]any
}

type envelopeJSON struct {
	APIVersion   int            `json:"apiVersion"`
	DeviceID     string         `json:"deviceId"`
	OpID         string         `json:"opId"`
	SentAtMillis int64          `json:"sentAtMillis"`
	EntityType   string         `json:"entityType"`
	EntityID     string         `json:"entityId,omitempty"`
	Op           string         `json:"op"`
	Body         map[string]any `json:"body,omitempty"`
}

// NewEnvelope builds the v1 envelope delivering op under entry's op id.
func NewEnvelope(entry Entry, op PendingOperation, deviceID string, sentAt time.Time) Envelope {
	return Envelope{
		APIVersion: APIVersion,
		DeviceID:   deviceID,
		OpID:       entry.OpID,
		SentAt:     sentAt,
		EntityKind: op.EntityKind,
		EntityID:   op.EntityID,
		OpKind:     op.OpKind,
		Body:       Canonicalize(op),
	}
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		APIVersion:   e.APIVersion,
		DeviceID:     e.DeviceID,
		OpID:         e.OpID,
		SentAtMillis: e.SentAt.UnixMilli(),
		EntityType:   string(e.EntityKind),
		EntityID:     e.EntityID,
		Op:           string(e.OpKind),
		Body:         e.Body,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Numbers in the body decode as
// json.Number. Unknown kinds are kept verbatim so a receiver can reject them
// with a message instead of a decode error.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw envelopeJSON
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	*e = Envelope{
		APIVersion: raw.APIVersion,
		DeviceID:   raw.DeviceID,
		OpID:       raw.OpID,
		SentAt:     time.UnixMilli(raw.SentAtMillis).UTC(),
		EntityKind: EntityKind(raw.EntityType),
		EntityID:   raw.EntityID,
		OpKind:     OpKind(raw.Op),
		Body:       raw.Body,
	}

	return nil
}
