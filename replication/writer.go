package replication

import (
	"errors"
	"fmt"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/schema"
)

// ComponentFrame is one component operation to encode. Value is the host
// component, or a pointer to it, and is ignored for Destruct.
type ComponentFrame struct {
	State  ComponentState
	TypeID schema.TypeID
	Value  any
	Mask   uint32
}

func ConstructComponent(id schema.TypeID, value any, mask uint32) ComponentFrame {
	return ComponentFrame{State: Construct, TypeID: id, Value: value, Mask: mask}
}

func UpdateComponent(id schema.TypeID, value any, mask uint32) ComponentFrame {
	return ComponentFrame{State: Update, TypeID: id, Value: value, Mask: mask}
}

func DestructComponent(id schema.TypeID) ComponentFrame {
	return ComponentFrame{State: Destruct, TypeID: id}
}

// SnapshotWriter encodes entity frames into a snapshot.
type SnapshotWriter struct {
	w        *bitstream.Writer
	registry *Registry
	entities int
}

func NewSnapshotWriter(registry *Registry) *SnapshotWriter {
	return &SnapshotWriter{w: bitstream.NewWriter(), registry: registry}
}

// Len returns the number of entity frames written.
func (s *SnapshotWriter) Len() int {
	return s.entities
}

// Position returns the number of bits written so far.
func (s *SnapshotWriter) Position() uint64 {
	return s.w.Position()
}

// WriteEntity appends one entity frame. A failed write leaves the snapshot
// unusable.
func (s *SnapshotWriter) WriteEntity(frame EntityFrame, components ...ComponentFrame) error {
	if !frame.HasMeta && (frame.Ownership || frame.IsOrphan || frame.IsDeleted) {
		return errors.New("replication: meta flags set without HasMeta")
	}
	if frame.IsDeleted && len(components) > 0 {
		return fmt.Errorf("replication: deleted entity %d cannot carry components", frame.EntityID)
	}
	if len(components) > MaxComponentsPerFrame {
		return fmt.Errorf("replication: %d components exceed %d per entity", len(components), MaxComponentsPerFrame)
	}

	if err := s.w.WriteBool(true); err != nil {
		return err
	}
	if err := s.w.WriteBits(uint64(frame.EntityID), EntityIDBits); err != nil {
		return err
	}
	if err := s.w.WriteBool(frame.HasMeta); err != nil {
		return err
	}
	if frame.HasMeta {
		for _, flag := range []bool{frame.Ownership, frame.IsOrphan, frame.IsDeleted} {
			if err := s.w.WriteBool(flag); err != nil {
				return err
			}
		}
	}
	s.entities++
	if frame.IsDeleted {
		return nil
	}

	if err := s.w.WriteBits(uint64(len(components)), ComponentCountBits); err != nil {
		return err
	}
	for _, c := range components {
		if err := s.writeComponent(c); err != nil {
			return fmt.Errorf("entity %d: %w", frame.EntityID, err)
		}
	}
	return nil
}

func (s *SnapshotWriter) writeComponent(c ComponentFrame) error {
	if c.State > Destruct {
		return fmt.Errorf("%w: %d", ErrInvalidComponentState, c.State)
	}
	if err := s.w.WriteBits(uint64(c.State), ComponentStateBits); err != nil {
		return err
	}
	if err := s.w.WriteBits(uint64(c.TypeID), ComponentIDBits); err != nil {
		return err
	}
	if c.State == Destruct {
		return nil
	}
	if c.State == Construct {
		if err := s.w.WriteBits(uint64(c.TypeID), ComponentTypeIDBits); err != nil {
			return err
		}
	}

	handler, ok := s.registry.Lookup(c.TypeID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownComponentType, c.TypeID)
	}
	return handler.Encode(s.w, c.Value, c.Mask)
}

// Finish writes the end of snapshot marker and returns the encoded bytes.
func (s *SnapshotWriter) Finish() ([]byte, error) {
	if err := s.w.WriteBool(false); err != nil {
		return nil, err
	}
	return s.w.Bytes()
}
