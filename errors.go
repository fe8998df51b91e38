package syncbox

import "errors"

var (
	// ErrInvalidLimit indicates that a list limit is not positive.
	ErrInvalidLimit = errors.New("syncbox limit must be positive")
	// ErrInvalidEntityKind is returned for an unknown entity kind.
	ErrInvalidEntityKind = errors.New("syncbox entity kind is invalid")
	// ErrInvalidOpKind is returned for an unknown operation kind.
	ErrInvalidOpKind = errors.New("syncbox op kind is invalid")
	// ErrUnsupportedOperation is returned when no remote route exists for an
	// entity and op pair.
	ErrUnsupportedOperation = errors.New("syncbox operation has no remote route")
	// ErrInvalidPayload is returned when a stored payload is not a JSON object.
	ErrInvalidPayload = errors.New("syncbox payload must be a JSON object")
	// ErrDuplicateOpID is returned when a generated op id already exists.
	ErrDuplicateOpID = errors.New("syncbox op id already exists")
	// ErrEmptyOpID is returned when an id generator produces a blank op id.
	ErrEmptyOpID = errors.New("syncbox op id is empty")
	// ErrInvalidEnvelope is returned when an envelope cannot be decoded.
	ErrInvalidEnvelope = errors.New("syncbox envelope is invalid")
)
