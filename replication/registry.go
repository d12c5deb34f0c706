package replication

import (
	"fmt"
	"reflect"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/schema"
)

// Handler applies the component frames of one schema type to a store.
// Binding implements it for any host component type.
type Handler interface {
	TypeID() schema.TypeID
	Name() string
	Layout() schema.Layout
	// ComponentType is the host component the handler writes.
	ComponentType() reflect.Type

	// Construct decodes a mask body onto the entity's component, creating it
	// if absent. Fields missing from the mask keep their current value.
	Construct(store *ecs.Storage, h ecs.Handle, frame uint64, r *bitstream.Reader) (uint32, error)
	// Update decodes a mask body onto an existing component. The body is
	// always consumed; applied is false when the entity lacks the component.
	Update(store *ecs.Storage, h ecs.Handle, frame uint64, r *bitstream.Reader) (mask uint32, applied bool, err error)
	// Destruct removes the component and reports whether it was present.
	Destruct(store *ecs.Storage, h ecs.Handle) bool
	// Skip consumes a mask body without decoding it.
	Skip(r *bitstream.Reader) error
	// Encode writes the mask body of value, a host component or pointer to one.
	Encode(w *bitstream.Writer, value any, mask uint32) error

	Interpolated() bool
	// RemoveInterpolation drops the sample buffers of the entity.
	RemoveInterpolation(store *ecs.Storage, h ecs.Handle)
	// RegisterStorage registers the host component and its sample buffers.
	RegisterStorage(registry *ecs.ComponentRegistry)
}

// Registry maps component type ids to their handlers.
type Registry struct {
	handlers map[schema.TypeID]Handler
	order    []Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[schema.TypeID]Handler, len(handlers))}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a handler. Each type id may be registered once.
func (r *Registry) Register(h Handler) error {
	if existing, dup := r.handlers[h.TypeID()]; dup {
		return fmt.Errorf("replication: type %d already registered to %s", h.TypeID(), existing.Name())
	}
	r.handlers[h.TypeID()] = h
	r.order = append(r.order, h)
	return nil
}

// Lookup returns the handler registered for id.
func (r *Registry) Lookup(id schema.TypeID) (Handler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// Handlers returns every handler in registration order.
func (r *Registry) Handlers() []Handler {
	return r.order
}

// RegisterStorage registers the bookkeeping components and every handled
// host component with the ECS registry.
func (r *Registry) RegisterStorage(registry *ecs.ComponentRegistry) {
	RegisterComponents(registry)
	for _, h := range r.order {
		h.RegisterStorage(registry)
	}
}
