package replication

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownComponentType is returned when a Construct or Update names a
	// type without a registered layout; its width is unknown, so the stream
	// cannot be followed past it.
	ErrUnknownComponentType = errors.New("replication: unknown component type")

	// ErrInvalidComponentState is returned for a state tag with no handler.
	ErrInvalidComponentState = errors.New("replication: invalid component state")
)

// DesyncError reports that a snapshot could not be decoded. The rest of the
// snapshot was dropped; whatever was applied before Offset stays applied.
type DesyncError struct {
	// Offset is the bit position of the reader when decoding failed.
	Offset uint64
	// EntityID is the entity frame being decoded, if any.
	EntityID EntityID
	Err      error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("replication: stream desynchronized at bit %d (entity %d): %v", e.Offset, e.EntityID, e.Err)
}

func (e *DesyncError) Unwrap() error {
	return e.Err
}
