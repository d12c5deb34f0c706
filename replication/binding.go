package replication

import (
	"fmt"
	"reflect"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/schema"
)

// Accessor moves one wire value in and out of a host component.
type Accessor[T any] struct {
	valueType reflect.Type
	get       func(*T) any
	set       func(*T, any)
}

// Field builds an accessor from a typed getter and setter. V must be the
// value type of the schema field it is bound to.
func Field[T, V any](get func(*T) V, set func(*T, V)) Accessor[T] {
	return Accessor[T]{
		valueType: reflect.TypeFor[V](),
		get:       func(c *T) any { return get(c) },
		set:       func(c *T, v any) { set(c, v.(V)) },
	}
}

// Binding ties a schema layout to the host component T, one accessor per field.
type Binding[T any] struct {
	layout      schema.Layout
	accessors   []Accessor[T]
	interpolate bool
}

var _ Handler = (*Binding[struct{}])(nil)

// Bind checks the accessors against the layout's fields, in order.
func Bind[T any](layout schema.Layout, accessors ...Accessor[T]) (*Binding[T], error) {
	if len(accessors) != len(layout.Fields) {
		return nil, fmt.Errorf("replication: %s has %d fields, got %d accessors", layout.Name, len(layout.Fields), len(accessors))
	}
	for i, f := range layout.Fields {
		want := f.Kind.ValueType()
		if want == nil || accessors[i].valueType != want {
			return nil, fmt.Errorf("replication: %s.%s is %s, accessor uses %v", layout.Name, f.Name, f.Kind, accessors[i].valueType)
		}
	}
	return &Binding[T]{layout: layout, accessors: accessors}, nil
}

// MustBind is like Bind but panics on a mismatch.
func MustBind[T any](layout schema.Layout, accessors ...Accessor[T]) *Binding[T] {
	b, err := Bind(layout, accessors...)
	if err != nil {
		panic(err)
	}
	return b
}

// Interpolated makes remote updates of T feed Samples[T] and Interpolation[T].
func (b *Binding[T]) Interpolated() bool {
	return b.interpolate
}

// WithInterpolation enables interpolation and returns b.
func (b *Binding[T]) WithInterpolation() *Binding[T] {
	b.interpolate = true
	return b
}

func (b *Binding[T]) TypeID() schema.TypeID { return b.layout.ID }

func (b *Binding[T]) Name() string { return b.layout.Name }

func (b *Binding[T]) Layout() schema.Layout { return b.layout }

func (b *Binding[T]) ComponentType() reflect.Type { return reflect.TypeFor[T]() }

// Decode reads a mask body into dst and returns the presence mask.
// On error dst may be partially written.
func (b *Binding[T]) Decode(r *bitstream.Reader, dst *T) (uint32, error) {
	var mask uint32
	for i, f := range b.layout.Fields {
		present, err := r.ReadMask()
		if err != nil {
			return mask, fmt.Errorf("%s.%s presence: %w", b.layout.Name, f.Name, err)
		}
		if !present {
			continue
		}
		v, err := f.Read(r)
		if err != nil {
			return mask, fmt.Errorf("%s.%s: %w", b.layout.Name, f.Name, err)
		}
		b.accessors[i].set(dst, v)
		mask |= 1 << i
	}
	return mask, nil
}

// EncodeValue writes the mask body of src: every field whose mask bit is set.
func (b *Binding[T]) EncodeValue(w *bitstream.Writer, src *T, mask uint32) error {
	if n := len(b.layout.Fields); n < schema.MaxFields && mask>>n != 0 {
		return fmt.Errorf("replication: mask %b has bits beyond the %d fields of %s", mask, n, b.layout.Name)
	}
	for i, f := range b.layout.Fields {
		present := mask&(1<<i) != 0
		if err := w.WriteMask(present); err != nil {
			return err
		}
		if !present {
			continue
		}
		if err := f.Write(w, b.accessors[i].get(src)); err != nil {
			return fmt.Errorf("%s.%s: %w", b.layout.Name, f.Name, err)
		}
	}
	return nil
}

func (b *Binding[T]) Encode(w *bitstream.Writer, value any, mask uint32) error {
	switch v := value.(type) {
	case T:
		return b.EncodeValue(w, &v, mask)
	case *T:
		return b.EncodeValue(w, v, mask)
	default:
		return fmt.Errorf("replication: %s cannot encode %T", b.layout.Name, value)
	}
}

func (b *Binding[T]) Skip(r *bitstream.Reader) error {
	return b.layout.Skip(r)
}

func (b *Binding[T]) Construct(store *ecs.Storage, h ecs.Handle, frame uint64, r *bitstream.Reader) (uint32, error) {
	var comp T
	if existing := ecs.ReadComponent[T](store, h); existing != nil {
		comp = *existing
	}
	mask, err := b.Decode(r, &comp)
	if err != nil {
		return mask, err
	}
	store.AddComponent(h, comp)
	b.sample(store, h, frame, comp)
	return mask, nil
}

func (b *Binding[T]) Update(store *ecs.Storage, h ecs.Handle, frame uint64, r *bitstream.Reader) (uint32, bool, error) {
	existing := ecs.ReadComponent[T](store, h)

	// Decode into a copy so a failed body leaves the component untouched.
	var comp T
	if existing != nil {
		comp = *existing
	}
	mask, err := b.Decode(r, &comp)
	if err != nil || existing == nil {
		return mask, false, err
	}
	*existing = comp
	b.sample(store, h, frame, comp)
	return mask, true, nil
}

func (b *Binding[T]) Destruct(store *ecs.Storage, h ecs.Handle) bool {
	b.RemoveInterpolation(store, h)
	return ecs.RemoveComponent[T](store, h)
}

func (b *Binding[T]) RemoveInterpolation(store *ecs.Storage, h ecs.Handle) {
	if !b.interpolate {
		return
	}
	ecs.RemoveComponent[Samples[T]](store, h)
	ecs.RemoveComponent[Interpolation[T]](store, h)
}

func (b *Binding[T]) RegisterStorage(registry *ecs.ComponentRegistry) {
	ecs.RegisterComponent[T](registry)
	if b.interpolate {
		ecs.RegisterComponent[Samples[T]](registry)
		ecs.RegisterComponent[Interpolation[T]](registry)
	}
}

// sample records a received value on remote entities.
func (b *Binding[T]) sample(store *ecs.Storage, h ecs.Handle, frame uint64, value T) {
	if !b.interpolate || ecs.HasComponent[Simulated](store, h) {
		return
	}

	samples := ecs.ReadComponent[Samples[T]](store, h)
	if samples == nil {
		store.AddComponent(h, Samples[T]{})
		samples = ecs.ReadComponent[Samples[T]](store, h)
	}
	samples.Push(frame, value)

	interp := ecs.ReadComponent[Interpolation[T]](store, h)
	if interp == nil {
		store.AddComponent(h, Interpolation[T]{})
		interp = ecs.ReadComponent[Interpolation[T]](store, h)
		interp.From = Sample[T]{Frame: frame, Value: value}
	} else {
		interp.From = interp.To
	}
	interp.To = Sample[T]{Frame: frame, Value: value}
}
