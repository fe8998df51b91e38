package syncbox

// Payload is the opaque structured body of a pending operation.
type Payload map[string]any

// PendingOperation describes one intended mutation of local state that must
// be pushed to the remote.
type PendingOperation struct {
	// EntityKind names the mutated entity.
	EntityKind EntityKind
	// EntityID is the local identifier, empty when absent.
	EntityID string
	// OpKind names the mutation.
	OpKind OpKind
	// Payload is nil when absent.
	Payload Payload
}

// Validate checks that both kinds are known and that a remote route exists.
func (op PendingOperation) Validate() error {
	return ValidateOperation(op, false)
}

// ValidateOperation validates an operation. When allowUnsupported is true,
// entity and op pairs without a dedicated route are accepted and later
// dispatched to the unsupported fallback path.
func ValidateOperation(op PendingOperation, allowUnsupported bool) error {
	if !op.EntityKind.IsValid() {
		return ErrInvalidEntityKind
	}
	if !op.OpKind.IsValid() {
		return ErrInvalidOpKind
	}
	if !allowUnsupported && !SupportedRoute(op.EntityKind, op.OpKind) {
		return ErrUnsupportedOperation
	}

	return nil
}
