package ecs

import (
	"iter"
	"reflect"
)

// Storage is the main ECS storage. Entities are addressed by stable Handles:
// adding or removing components never changes an entity's handle, and a
// destroyed entity's handle never resolves again even when its slot is reused.
type Storage struct {
	generations []uint32
	alive       []bool
	free        []uint32
	count       int

	storages map[reflect.Type]iComponentStorage
	registry *ComponentRegistry
}

// NewStorage creates a new ECS storage system with the given component registry
func NewStorage(registry *ComponentRegistry) *Storage {
	return &Storage{
		storages: make(map[reflect.Type]iComponentStorage),
		registry: registry,
	}
}

// Registry returns the component registry this storage was created with
func (s *Storage) Registry() *ComponentRegistry {
	return s.registry
}

// Create allocates a new entity and adds the provided components to it
func (s *Storage) Create(components ...any) Handle {
	var index uint32
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		index = uint32(len(s.generations))
		s.generations = append(s.generations, 0)
		s.alive = append(s.alive, false)
	}

	s.generations[index]++
	if s.generations[index] == 0 {
		s.generations[index] = 1
	}
	s.alive[index] = true
	s.count++

	h := NewHandle(s.generations[index], index)
	for _, comp := range components {
		s.AddComponent(h, comp)
	}
	return h
}

// Exists reports whether the handle refers to a live entity
func (s *Storage) Exists(h Handle) bool {
	index := h.Index()
	if h.IsZero() || int(index) >= len(s.generations) {
		return false
	}
	return s.alive[index] && s.generations[index] == h.Generation()
}

// Destroy removes the entity and all of its components.
// Returns false if the handle did not refer to a live entity.
func (s *Storage) Destroy(h Handle) bool {
	if !s.Exists(h) {
		return false
	}

	index := int(h.Index())
	for _, storage := range s.storages {
		storage.Delete(index)
	}

	s.alive[index] = false
	s.free = append(s.free, uint32(index))
	s.count--
	return true
}

// Len returns the number of live entities
func (s *Storage) Len() int {
	return s.count
}

// Entities returns an iterator over all live entity handles
func (s *Storage) Entities() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for index, alive := range s.alive {
			if !alive {
				continue
			}
			if !yield(NewHandle(s.generations[index], uint32(index))) {
				return
			}
		}
	}
}

// AddComponent adds the component to the entity, replacing any existing value of the same type.
// Returns false if the entity does not exist.
func (s *Storage) AddComponent(h Handle, component any) bool {
	if !s.Exists(h) {
		return false
	}
	compType := componentType(component)
	return s.storageFor(compType).Set(int(h.Index()), component)
}

// SetComponent replaces the value of a component the entity already has.
// Returns false if the entity or component is missing.
func (s *Storage) SetComponent(h Handle, component any) bool {
	compType := componentType(component)
	if !s.HasComponent(h, compType) {
		return false
	}
	return s.storages[compType].Set(int(h.Index()), component)
}

// RemoveComponent removes the component type from the entity.
// Returns false if the entity did not have it.
func (s *Storage) RemoveComponent(h Handle, compType reflect.Type) bool {
	if !s.Exists(h) {
		return false
	}
	storage, ok := s.storages[compType]
	if !ok {
		return false
	}
	return storage.Delete(int(h.Index()))
}

// GetComponent returns a pointer to the component for the given handle and component type,
// or nil if the entity does not have it. The pointer is valid until another
// component of the same type is added.
func (s *Storage) GetComponent(h Handle, compType reflect.Type) any {
	if !s.Exists(h) {
		return nil
	}
	storage, ok := s.storages[compType]
	if !ok {
		return nil
	}
	return storage.Get(int(h.Index()))
}

// HasComponent checks if an entity has a specific component type
func (s *Storage) HasComponent(h Handle, compType reflect.Type) bool {
	if !s.Exists(h) {
		return false
	}
	storage, ok := s.storages[compType]
	if !ok {
		return false
	}
	return storage.Has(int(h.Index()))
}

// Count returns the number of entities holding the component type
func (s *Storage) Count(compType reflect.Type) int {
	storage, ok := s.storages[compType]
	if !ok {
		return 0
	}
	return storage.Len()
}

func (s *Storage) storageFor(compType reflect.Type) iComponentStorage {
	storage, ok := s.storages[compType]
	if ok {
		return storage
	}

	factory := s.registry.getFactory(compType)
	if factory == nil {
		panic("component type " + compType.String() + " not registered")
	}
	storage = factory()
	s.storages[compType] = storage
	return storage
}

// componentType extracts the component type, looking through a pointer
func componentType(component any) reflect.Type {
	compType := reflect.TypeOf(component)
	if compType == nil {
		panic("component cannot be nil")
	}

	// If it's a pointer, get the underlying type
	if compType.Kind() == reflect.Ptr {
		compType = compType.Elem()
	}

	// Components can be structs or primitives (int, string, etc.)
	// But not pointers, maps, channels, or functions (those aren't value types)
	if compType.Kind() == reflect.Ptr || compType.Kind() == reflect.Map ||
		compType.Kind() == reflect.Chan || compType.Kind() == reflect.Func {
		panic("components cannot be pointers, maps, channels, or functions")
	}
	return compType
}

type ComponentReader interface {
	GetComponent(Handle, reflect.Type) any
}

// ReadComponent returns a pointer to the entity's T component, or nil if it has none
func ReadComponent[T any](reader ComponentReader, h Handle) *T {
	comp, _ := reader.GetComponent(h, reflect.TypeFor[T]()).(*T)
	return comp
}

// HasComponent reports whether the entity has a T component
func HasComponent[T any](s *Storage, h Handle) bool {
	return s.HasComponent(h, reflect.TypeFor[T]())
}

// RemoveComponent removes the entity's T component, if present
func RemoveComponent[T any](s *Storage, h Handle) bool {
	return s.RemoveComponent(h, reflect.TypeFor[T]())
}

// Each returns an iterator over every entity holding a T component
func Each[T any](s *Storage) iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		storage, ok := s.storages[reflect.TypeFor[T]()]
		if !ok {
			return
		}
		for index := range storage.Iter() {
			h := NewHandle(s.generations[index], uint32(index))
			if !yield(h, storage.Get(index).(*T)) {
				return
			}
		}
	}
}
