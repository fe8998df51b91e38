package syncbox

import "github.com/google/uuid"

// IDGenerator creates op ids.
type IDGenerator interface {
	// New returns a new unique op id.
	New() (string, error)
}

// UUIDv7Generator produces time-ordered UUID v7 op ids.
type UUIDv7Generator struct{}

// New creates a new UUID v7 in canonical text form.
func (UUIDv7Generator) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() (string, error)

// New implements IDGenerator.
func (fn IDGeneratorFunc) New() (string, error) {
	return fn()
}
