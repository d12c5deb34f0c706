package replication

import (
	"fmt"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/schema"
)

// EntityID is the remote peer's identifier for an entity.
type EntityID uint32

// ComponentState is the operation a component frame performs.
type ComponentState uint8

const (
	Construct ComponentState = iota
	Update
	Destruct
)

func (s ComponentState) String() string {
	switch s {
	case Construct:
		return "construct"
	case Update:
		return "update"
	case Destruct:
		return "destruct"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Wire widths in bits.
const (
	EntityIDBits        = 32
	ComponentCountBits  = 8
	ComponentStateBits  = 2
	ComponentIDBits     = 16
	ComponentTypeIDBits = 16

	// MaxComponentsPerFrame is the largest component count an entity frame can carry.
	MaxComponentsPerFrame = 1<<ComponentCountBits - 1
)

// EntityFrame is the envelope of one entity record. The meta flags are only
// meaningful when HasMeta is set; a deleted frame carries no components.
type EntityFrame struct {
	EntityID  EntityID
	HasMeta   bool
	Ownership bool
	IsOrphan  bool
	IsDeleted bool
}

// HasComponents reports whether a component section follows the envelope.
func (f EntityFrame) HasComponents() bool {
	return !f.IsDeleted
}

// ComponentHeader is the prefix of a component frame. For Update and
// Destruct the type is resolved from the component id.
type ComponentHeader struct {
	State       ComponentState
	ComponentID uint16
	TypeID      schema.TypeID
}

// FrameReader walks the entity frames of one snapshot.
type FrameReader struct {
	r        *bitstream.Reader
	registry *Registry
	done     bool
}

func NewFrameReader(r *bitstream.Reader, registry *Registry) *FrameReader {
	return &FrameReader{r: r, registry: registry}
}

// Position returns the bit offset of the underlying reader.
func (f *FrameReader) Position() uint64 {
	return f.r.Position()
}

// Reader exposes the underlying bit reader to component handlers.
func (f *FrameReader) Reader() *bitstream.Reader {
	return f.r
}

// Next reads the next entity envelope. It returns false once the end of
// snapshot marker has been consumed.
func (f *FrameReader) Next() (EntityFrame, bool, error) {
	if f.done {
		return EntityFrame{}, false, nil
	}

	more, err := f.r.ReadBool()
	if err != nil {
		return EntityFrame{}, false, fmt.Errorf("reading continuation bit: %w", err)
	}
	if !more {
		f.done = true
		return EntityFrame{}, false, nil
	}

	id, err := f.r.ReadBits(EntityIDBits)
	if err != nil {
		return EntityFrame{}, false, fmt.Errorf("reading entity id: %w", err)
	}
	frame := EntityFrame{EntityID: EntityID(id)}

	if frame.HasMeta, err = f.r.ReadBool(); err != nil {
		return frame, false, fmt.Errorf("reading meta flag: %w", err)
	}
	if !frame.HasMeta {
		return frame, true, nil
	}

	for _, flag := range []*bool{&frame.Ownership, &frame.IsOrphan, &frame.IsDeleted} {
		if *flag, err = f.r.ReadBool(); err != nil {
			return frame, false, fmt.Errorf("reading meta: %w", err)
		}
	}
	return frame, true, nil
}

// ReadComponentCount reads the number of component frames that follow an envelope.
func (f *FrameReader) ReadComponentCount() (int, error) {
	n, err := f.r.ReadBits(ComponentCountBits)
	if err != nil {
		return 0, fmt.Errorf("reading component count: %w", err)
	}
	return int(n), nil
}

// ReadComponentHeader reads the state, component id and, for Construct, the type id.
func (f *FrameReader) ReadComponentHeader() (ComponentHeader, error) {
	state, err := f.r.ReadBits(ComponentStateBits)
	if err != nil {
		return ComponentHeader{}, fmt.Errorf("reading component state: %w", err)
	}
	h := ComponentHeader{State: ComponentState(state)}
	if h.State > Destruct {
		return h, fmt.Errorf("%w: %d", ErrInvalidComponentState, state)
	}

	id, err := f.r.ReadBits(ComponentIDBits)
	if err != nil {
		return h, fmt.Errorf("reading component id: %w", err)
	}
	h.ComponentID = uint16(id)
	h.TypeID = schema.TypeID(id)

	if h.State == Construct {
		typeID, err := f.r.ReadBits(ComponentTypeIDBits)
		if err != nil {
			return h, fmt.Errorf("reading component type: %w", err)
		}
		h.TypeID = schema.TypeID(typeID)
	}
	return h, nil
}

// SkipComponents consumes the component section of the current entity frame
// without touching any store.
func (f *FrameReader) SkipComponents() error {
	count, err := f.ReadComponentCount()
	if err != nil {
		return err
	}
	for range count {
		header, err := f.ReadComponentHeader()
		if err != nil {
			return err
		}
		if header.State == Destruct {
			continue
		}
		handler, ok := f.registry.Lookup(header.TypeID)
		if !ok {
			return fmt.Errorf("%w: cannot skip %s of type %d", ErrUnknownComponentType, header.State, header.TypeID)
		}
		if err := handler.Skip(f.r); err != nil {
			return err
		}
	}
	return nil
}
