package syncbox

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/velmie/syncbox/internal/coerce"
)

// EncodePayload serializes a payload for storage. A nil payload encodes to nil.
func EncodePayload(payload Payload) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	// NaN, channels and funcs are errors, not silently dropped.
	if _, err := json.Marshal(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	normalized := coerce.Map(map[string]any(payload))
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("syncbox: encode payload failed: %w", err)
	}

	return raw, nil
}

// DecodePayload parses a stored payload. Numbers decode as json.Number so
// integer ids survive unchanged.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return Payload(out), nil
}

// Decode rebuilds the pending operation stored in an entry.
func Decode(entry Entry) (PendingOperation, error) {
	if !entry.EntityKind.IsValid() {
		return PendingOperation{}, ErrInvalidEntityKind
	}
	if !entry.OpKind.IsValid() {
		return PendingOperation{}, ErrInvalidOpKind
	}
	payload, err := DecodePayload(entry.Payload)
	if err != nil {
		return PendingOperation{}, err
	}

	return PendingOperation{
		EntityKind: entry.EntityKind,
		EntityID:   entry.EntityID,
		OpKind:     entry.OpKind,
		Payload:    payload,
	}, nil
}
