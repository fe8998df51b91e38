package syncbox

// Status represents the lifecycle state of an outbox entry.
type Status string

const (
	// StatusPending indicates the entry waits for delivery.
	StatusPending Status = "PENDING"
	// StatusDone indicates the remote accepted the entry. It is terminal.
	StatusDone Status = "DONE"
	// StatusFailed indicates the last attempt failed and the entry can be reset.
	StatusFailed Status = "FAILED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusDone || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}
