package syncbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStoreConfig configures a MemoryStore.
type MemoryStoreConfig struct {
	Clock     Clock
	Generator IDGenerator
	// AllowUnsupported accepts operations without a dedicated remote route.
	AllowUnsupported bool
}

func (c MemoryStoreConfig) withDefaults() MemoryStoreConfig {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = UUIDv7Generator{}
	}

	return c
}

// MemoryStore is a process-local Store. It is safe for concurrent use and
// never hands out references to its internal entries.
type MemoryStore struct {
	cfg MemoryStoreConfig

	mu      sync.RWMutex
	nextID  int64
	entries map[int64]*Entry
	opIDs   map[string]int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	return &MemoryStore{
		cfg:     cfg.withDefaults(),
		entries: make(map[int64]*Entry),
		opIDs:   make(map[string]int64),
	}
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(ctx context.Context, op PendingOperation) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if err := ValidateOperation(op, s.cfg.AllowUnsupported); err != nil {
		return Entry{}, err
	}
	payload, err := EncodePayload(op.Payload)
	if err != nil {
		return Entry{}, err
	}
	opID, err := s.cfg.Generator.New()
	if err != nil {
		return Entry{}, fmt.Errorf("syncbox memory: generate op id failed: %w", err)
	}
	if opID == "" {
		return Entry{}, ErrEmptyOpID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.opIDs[opID]; exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateOpID, opID)
	}
	s.nextID++
	entry := &Entry{
		ID:         s.nextID,
		OpID:       opID,
		EntityKind: op.EntityKind,
		EntityID:   op.EntityID,
		OpKind:     op.OpKind,
		Payload:    payload,
		CreatedAt:  s.cfg.Clock.Now(),
		Status:     StatusPending,
	}
	s.entries[entry.ID] = entry
	s.opIDs[opID] = entry.ID

	return entry.Clone(), nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id int64) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, false, nil
	}

	return entry.Clone(), true, nil
}

// ListPending implements Store.
func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]Entry, error) {
	return s.list(StatusPending, limit)
}

// ListFailed implements Store.
func (s *MemoryStore) ListFailed(_ context.Context, limit int) ([]Entry, error) {
	return s.list(StatusFailed, limit)
}

// CountPending implements Store.
func (s *MemoryStore) CountPending(context.Context) (int, error) {
	return s.count(StatusPending), nil
}

// CountFailed implements Store.
func (s *MemoryStore) CountFailed(context.Context) (int, error) {
	return s.count(StatusFailed), nil
}

// MarkDone implements Store.
func (s *MemoryStore) MarkDone(_ context.Context, id int64, attemptedAt time.Time) error {
	s.transition(id, StatusPending, StatusDone, func(e *Entry) {
		at := attemptedAt
		e.LastAttemptAt = &at
		e.Error = ""
	})

	return nil
}

// MarkFailed implements Store.
func (s *MemoryStore) MarkFailed(_ context.Context, id int64, attemptedAt time.Time, msg string) error {
	s.transition(id, StatusPending, StatusFailed, func(e *Entry) {
		at := attemptedAt
		e.LastAttemptAt = &at
		e.Error = TruncateError(msg)
	})

	return nil
}

// MarkAttempt implements Store.
func (s *MemoryStore) MarkAttempt(_ context.Context, id int64, attemptedAt time.Time) error {
	s.transition(id, StatusPending, StatusPending, func(e *Entry) {
		at := attemptedAt
		e.LastAttemptAt = &at
	})

	return nil
}

// ResetFailed implements Store.
func (s *MemoryStore) ResetFailed(_ context.Context, id int64) error {
	s.transition(id, StatusFailed, StatusPending, clearAttempt)

	return nil
}

// ResetAllFailed implements Store.
func (s *MemoryStore) ResetAllFailed(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, entry := range s.entries {
		if entry.Status == StatusFailed {
			entry.Status = StatusPending
			clearAttempt(entry)
			n++
		}
	}

	return n, nil
}

// ClearDone implements Store.
func (s *MemoryStore) ClearDone(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, entry := range s.entries {
		if entry.Status == StatusDone {
			delete(s.entries, id)
			delete(s.opIDs, entry.OpID)
			n++
		}
	}

	return n, nil
}

func (s *MemoryStore) transition(id int64, from, to Status, mutate func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.Status != from {
		return
	}
	entry.Status = to
	if mutate != nil {
		mutate(entry)
	}
}

func clearAttempt(e *Entry) {
	e.LastAttemptAt = nil
	e.Error = ""
}

func (s *MemoryStore) list(status Status, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	out := make([]Entry, 0, limit)
	for _, entry := range s.entries {
		if entry.Status == status {
			out = append(out, entry.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *MemoryStore) count(status Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, entry := range s.entries {
		if entry.Status == status {
			n++
		}
	}

	return n
}
