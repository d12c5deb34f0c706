package replication

import (
	"github.com/kamstrup/intmap"
	"github.com/plus3/deltasync/ecs"
)

// Mapper is the bidirectional table between remote EntityIDs and local handles.
// Each EntityID maps to at most one handle at a time.
type Mapper struct {
	toLocal  *intmap.Map[EntityID, ecs.Handle]
	toRemote *intmap.Map[ecs.Handle, EntityID]
}

func NewMapper() *Mapper {
	return &Mapper{
		toLocal:  intmap.New[EntityID, ecs.Handle](256),
		toRemote: intmap.New[ecs.Handle, EntityID](256),
	}
}

// Add maps id to h, replacing any previous mapping of either side.
func (m *Mapper) Add(id EntityID, h ecs.Handle) {
	if old, ok := m.toLocal.Get(id); ok {
		m.toRemote.Del(old)
	}
	if old, ok := m.toRemote.Get(h); ok {
		m.toLocal.Del(old)
	}
	m.toLocal.Put(id, h)
	m.toRemote.Put(h, id)
}

// Remove drops the mapping of id and returns the handle it pointed at.
func (m *Mapper) Remove(id EntityID) (ecs.Handle, bool) {
	h, ok := m.toLocal.Get(id)
	if !ok {
		return 0, false
	}
	m.toLocal.Del(id)
	m.toRemote.Del(h)
	return h, true
}

// Local returns the handle mapped to id.
func (m *Mapper) Local(id EntityID) (ecs.Handle, bool) {
	return m.toLocal.Get(id)
}

// Remote returns the EntityID mapped to h.
func (m *Mapper) Remote(h ecs.Handle) (EntityID, bool) {
	return m.toRemote.Get(h)
}

// Len returns the number of live mappings.
func (m *Mapper) Len() int {
	return m.toLocal.Len()
}
