package replication

import (
	"cmp"
	"math"
	"slices"

	"github.com/kamstrup/intmap"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/schema"
)

// DefaultImportance is the priority a SyncState gains per Accumulate.
const DefaultImportance = 1

// SyncState is the outgoing replication state of one component of a locally
// simulated entity.
type SyncState struct {
	// LastSent is the last value serialized for the component.
	LastSent any
	// ResendMask holds fields that must be re-sent, usually after packet loss.
	ResendMask uint32
	// Importance is added to AccumulatedPriority on every Accumulate.
	Importance          uint32
	AccumulatedPriority uint32
	// DeletedAtFrame is the frame the component was removed, zero while alive.
	DeletedAtFrame          uint64
	HasBeenSerialized       bool
	DeleteHasBeenSerialized bool
	HasReceivedConstructor  bool
}

// Pending reports whether the state still has something to send.
func (s *SyncState) Pending() bool {
	if s.DeletedAtFrame != 0 {
		return !s.DeleteHasBeenSerialized
	}
	return s.ResendMask != 0 || !s.HasBeenSerialized
}

// PendingSync is a SyncState awaiting serialization.
type PendingSync struct {
	Handle     ecs.Handle
	TypeID     schema.TypeID
	ResendMask uint32
	Priority   uint32
	Deleted    bool
}

// DestroyedEntityRecord remembers a locally destroyed entity until the
// remote peer confirms the deletion.
type DestroyedEntityRecord struct {
	Handle     ecs.Handle
	Frame      uint64
	Serialized bool
}

// Tracker owns the SyncStates and DestroyedEntityRecords of a receiver.
type Tracker struct {
	states    *intmap.Map[ecs.Handle, map[schema.TypeID]*SyncState]
	destroyed *intmap.Map[ecs.Handle, DestroyedEntityRecord]
}

func NewTracker() *Tracker {
	return &Tracker{
		states:    intmap.New[ecs.Handle, map[schema.TypeID]*SyncState](64),
		destroyed: intmap.New[ecs.Handle, DestroyedEntityRecord](16),
	}
}

// Track returns the SyncState of (h, id), creating it if needed.
func (t *Tracker) Track(h ecs.Handle, id schema.TypeID) *SyncState {
	byType, ok := t.states.Get(h)
	if !ok {
		byType = make(map[schema.TypeID]*SyncState, 4)
		t.states.Put(h, byType)
	}
	state, ok := byType[id]
	if !ok {
		state = &SyncState{Importance: DefaultImportance}
		byType[id] = state
	}
	return state
}

// Sync returns the SyncState of (h, id) if it is tracked.
func (t *Tracker) Sync(h ecs.Handle, id schema.TypeID) (*SyncState, bool) {
	byType, ok := t.states.Get(h)
	if !ok {
		return nil, false
	}
	state, ok := byType[id]
	return state, ok
}

// Forget drops the SyncState of (h, id).
func (t *Tracker) Forget(h ecs.Handle, id schema.TypeID) bool {
	byType, ok := t.states.Get(h)
	if !ok {
		return false
	}
	if _, ok := byType[id]; !ok {
		return false
	}
	delete(byType, id)
	if len(byType) == 0 {
		t.states.Del(h)
	}
	return true
}

// ForgetEntity drops every SyncState of h and returns how many there were.
func (t *Tracker) ForgetEntity(h ecs.Handle) int {
	byType, ok := t.states.Get(h)
	if !ok {
		return 0
	}
	t.states.Del(h)
	return len(byType)
}

// Len returns the number of tracked SyncStates.
func (t *Tracker) Len() int {
	n := 0
	t.states.ForEach(func(_ ecs.Handle, byType map[schema.TypeID]*SyncState) bool {
		n += len(byType)
		return true
	})
	return n
}

// MarkResend ORs mask into the resend set of (h, id). It returns false if
// the state is not tracked.
func (t *Tracker) MarkResend(h ecs.Handle, id schema.TypeID, mask uint32) bool {
	state, ok := t.Sync(h, id)
	if !ok {
		return false
	}
	state.ResendMask |= mask
	return true
}

// Accumulate raises the priority of every pending state by its importance.
func (t *Tracker) Accumulate() {
	t.states.ForEach(func(_ ecs.Handle, byType map[schema.TypeID]*SyncState) bool {
		for _, state := range byType {
			if !state.Pending() {
				continue
			}
			if state.AccumulatedPriority > math.MaxUint32-state.Importance {
				state.AccumulatedPriority = math.MaxUint32
			} else {
				state.AccumulatedPriority += state.Importance
			}
		}
		return true
	})
}

// MarkSent records a serialization of the fields in mask.
func (t *Tracker) MarkSent(h ecs.Handle, id schema.TypeID, value any, mask uint32) bool {
	state, ok := t.Sync(h, id)
	if !ok {
		return false
	}
	state.LastSent = value
	state.ResendMask &^= mask
	state.HasBeenSerialized = true
	state.AccumulatedPriority = 0
	return true
}

// MarkComponentDeleted flags (h, id) as removed at frame so the deletion is sent.
func (t *Tracker) MarkComponentDeleted(h ecs.Handle, id schema.TypeID, frame uint64) bool {
	state, ok := t.Sync(h, id)
	if !ok {
		return false
	}
	state.DeletedAtFrame = max(frame, 1)
	state.DeleteHasBeenSerialized = false
	return true
}

// MarkDeleteSerialized records that the deletion of (h, id) was sent and
// drops the state.
func (t *Tracker) MarkDeleteSerialized(h ecs.Handle, id schema.TypeID) bool {
	state, ok := t.Sync(h, id)
	if !ok || state.DeletedAtFrame == 0 {
		return false
	}
	state.DeleteHasBeenSerialized = true
	return t.Forget(h, id)
}

// Pending returns every state with something to send, highest priority first.
func (t *Tracker) Pending() []PendingSync {
	var out []PendingSync
	t.states.ForEach(func(h ecs.Handle, byType map[schema.TypeID]*SyncState) bool {
		for id, state := range byType {
			if !state.Pending() {
				continue
			}
			out = append(out, PendingSync{
				Handle:     h,
				TypeID:     id,
				ResendMask: state.ResendMask,
				Priority:   state.AccumulatedPriority,
				Deleted:    state.DeletedAtFrame != 0,
			})
		}
		return true
	})
	slices.SortFunc(out, func(a, b PendingSync) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Handle, b.Handle); c != 0 {
			return c
		}
		return cmp.Compare(a.TypeID, b.TypeID)
	})
	return out
}

// MarkDestroyed records that h was destroyed locally at frame. Marking an
// entity again keeps one record and schedules it to be sent again.
func (t *Tracker) MarkDestroyed(h ecs.Handle, frame uint64) {
	t.ForgetEntity(h)
	t.destroyed.Put(h, DestroyedEntityRecord{Handle: h, Frame: frame})
}

// IsDestroyed reports whether h has a destroyed-entity record.
func (t *Tracker) IsDestroyed(h ecs.Handle) bool {
	_, ok := t.destroyed.Get(h)
	return ok
}

// DestroyedRecord returns the record of h.
func (t *Tracker) DestroyedRecord(h ecs.Handle) (DestroyedEntityRecord, bool) {
	return t.destroyed.Get(h)
}

// PendingDestroyed returns the records not yet serialized, oldest first.
func (t *Tracker) PendingDestroyed() []DestroyedEntityRecord {
	var out []DestroyedEntityRecord
	t.destroyed.ForEach(func(_ ecs.Handle, rec DestroyedEntityRecord) bool {
		if !rec.Serialized {
			out = append(out, rec)
		}
		return true
	})
	slices.SortFunc(out, func(a, b DestroyedEntityRecord) int {
		if c := cmp.Compare(a.Frame, b.Frame); c != 0 {
			return c
		}
		return cmp.Compare(a.Handle, b.Handle)
	})
	return out
}

// MarkDestroySerialized records that the destruction of h was sent.
func (t *Tracker) MarkDestroySerialized(h ecs.Handle) bool {
	rec, ok := t.destroyed.Get(h)
	if !ok {
		return false
	}
	rec.Serialized = true
	t.destroyed.Put(h, rec)
	return true
}

// ForgetDestroyed drops the record of h once the remote peer confirmed it.
func (t *Tracker) ForgetDestroyed(h ecs.Handle) bool {
	return t.destroyed.Del(h)
}

// DestroyedLen returns the number of destroyed-entity records.
func (t *Tracker) DestroyedLen() int {
	return t.destroyed.Len()
}
