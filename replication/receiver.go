package replication

import (
	"fmt"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/logging"
	"github.com/plus3/deltasync/schema"
)

// Stats counts what a Receiver has processed.
type Stats struct {
	Snapshots       uint64
	EntityFrames    uint64
	Created         uint64
	Deleted         uint64
	Skipped         uint64
	ComponentFrames uint64
	Warnings        uint64
	Desyncs         uint64
}

// Receiver applies snapshots to a store.
type Receiver struct {
	store    *ecs.Storage
	registry *Registry
	mapper   *Mapper
	tracker  *Tracker
	logger   logging.Logger
	stats    Stats
}

type Option func(*Receiver)

func WithLogger(logger logging.Logger) Option {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// NewReceiver creates a receiver writing into store. The registry's
// components must already be registered with the store's ComponentRegistry.
func NewReceiver(store *ecs.Storage, registry *Registry, opts ...Option) *Receiver {
	r := &Receiver{
		store:    store,
		registry: registry,
		mapper:   NewMapper(),
		tracker:  NewTracker(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Receiver) Store() *ecs.Storage { return r.store }

func (r *Receiver) Registry() *Registry { return r.registry }

func (r *Receiver) Mapper() *Mapper { return r.mapper }

func (r *Receiver) Tracker() *Tracker { return r.tracker }

func (r *Receiver) Stats() Stats { return r.stats }

func (r *Receiver) warn(msg string, keyValues ...any) {
	r.stats.Warnings++
	r.logger.Warn(msg, keyValues...)
}

// ApplySnapshot decodes every entity frame of stream and applies it.
// simulationFrame is the local frame the snapshot is applied at.
//
// Stale references and ownership races are logged and skipped. A malformed
// stream stops decoding and returns a *DesyncError; frames before the
// failure stay applied.
func (r *Receiver) ApplySnapshot(simulationFrame uint64, stream *bitstream.Reader) error {
	r.stats.Snapshots++
	frames := NewFrameReader(stream, r.registry)
	for {
		frame, ok, err := frames.Next()
		if err != nil {
			return r.desync(stream, frame.EntityID, err)
		}
		if !ok {
			return nil
		}
		r.stats.EntityFrames++
		if err := r.applyEntity(frames, simulationFrame, frame); err != nil {
			return r.desync(stream, frame.EntityID, err)
		}
	}
}

func (r *Receiver) desync(stream *bitstream.Reader, id EntityID, err error) error {
	r.stats.Desyncs++
	derr := &DesyncError{Offset: stream.Position(), EntityID: id, Err: err}
	r.logger.Error("snapshot desynchronized", "bit", derr.Offset, "entity", id, "err", err)
	return derr
}

func (r *Receiver) applyEntity(frames *FrameReader, simulationFrame uint64, frame EntityFrame) error {
	h, mapped := r.mapper.Local(frame.EntityID)

	if mapped && r.tracker.IsDestroyed(h) {
		return r.applyDestroyed(frames, frame, h)
	}

	wasSimulated := mapped && r.store.Exists(h) && ecs.HasComponent[Simulated](r.store, h)

	var ok bool
	if frame.HasMeta {
		h, ok = r.reconcile(frame, h, mapped)
	} else {
		ok = mapped && r.resolve(frame.EntityID, h)
	}

	if !ok {
		if !frame.HasComponents() {
			return nil
		}
		if !frame.HasMeta {
			r.warn("entity is missing", "entity", frame.EntityID)
		}
		r.stats.Skipped++
		return frames.SkipComponents()
	}

	isSimulated := ecs.HasComponent[Simulated](r.store, h)
	if isSimulated && wasSimulated {
		r.warn("trying to update owned entity", "entity", frame.EntityID, "handle", h)
		r.stats.Skipped++
		return frames.SkipComponents()
	}
	return r.applyComponents(frames, simulationFrame, frame.EntityID, h)
}

// applyDestroyed handles frames for entities destroyed locally. Updates are
// dropped; a deletion is the remote peer's confirmation and clears the record.
func (r *Receiver) applyDestroyed(frames *FrameReader, frame EntityFrame, h ecs.Handle) error {
	if !frame.IsDeleted {
		r.logger.Debug("skipping frame for destroyed entity", "entity", frame.EntityID, "handle", h)
		r.stats.Skipped++
		return frames.SkipComponents()
	}

	if r.store.Exists(h) {
		r.reconcile(frame, h, true)
	} else {
		r.mapper.Remove(frame.EntityID)
		r.logger.Debug("deletion confirmed", "entity", frame.EntityID, "handle", h)
	}
	r.tracker.ForgetDestroyed(h)
	return nil
}

// resolve checks that a mapped handle still refers to a live entity and
// drops the mapping if it does not.
func (r *Receiver) resolve(id EntityID, h ecs.Handle) bool {
	if r.store.Exists(h) {
		return true
	}
	r.warn("entity does not exist, was a remote entity destroyed locally?", "entity", id, "handle", h)
	r.mapper.Remove(id)
	r.tracker.ForgetEntity(h)
	return false
}

// reconcile applies the meta flags of frame. It returns the entity to apply
// components to, or false when there is none.
func (r *Receiver) reconcile(frame EntityFrame, h ecs.Handle, mapped bool) (ecs.Handle, bool) {
	id := frame.EntityID

	if mapped && !r.resolve(id, h) {
		mapped = false
	}

	if !mapped {
		if frame.IsDeleted {
			r.warn("attempted to delete missing entity, already deleted", "entity", id)
			return 0, false
		}
		h = r.store.Create(Mapped{})
		r.mapper.Add(id, h)
		r.stats.Created++
		r.logger.Debug("created entity", "entity", id, "handle", h)
	}

	simulated := ecs.HasComponent[Simulated](r.store, h)
	switch {
	case simulated && !frame.Ownership:
		r.loseOwnership(id, h)
	case !simulated && frame.Ownership:
		r.gainOwnership(id, h)
	}

	orphan := ecs.HasComponent[Orphan](r.store, h)
	switch {
	case orphan && !frame.IsOrphan:
		ecs.RemoveComponent[Orphan](r.store, h)
	case !orphan && frame.IsOrphan:
		r.store.AddComponent(h, Orphan{})
	}

	if !frame.IsDeleted {
		return h, true
	}

	if frame.Ownership {
		r.warn("attempted to delete owned entity", "entity", id, "handle", h)
		return 0, false
	}

	r.mapper.Remove(id)
	ecs.RemoveComponent[LingerSimulated](r.store, h)
	r.tracker.ForgetEntity(h)
	r.store.Destroy(h)
	r.stats.Deleted++
	r.logger.Debug("deleted entity", "entity", id, "handle", h)
	return 0, false
}

func (r *Receiver) loseOwnership(id EntityID, h ecs.Handle) {
	r.logger.Debug("lost ownership", "entity", id, "handle", h)
	ecs.RemoveComponent[Simulated](r.store, h)
	ecs.RemoveComponent[LingerSimulated](r.store, h)
	r.tracker.ForgetEntity(h)
	if !ecs.HasComponent[AuthorityTransfer](r.store, h) {
		r.store.AddComponent(h, AuthorityTransfer{})
	}
	if !ecs.HasComponent[AuthorityTransferRequest](r.store, h) {
		r.store.AddComponent(h, AuthorityTransferRequest{})
	}
}

// gainOwnership makes h locally simulated. The remote peer already holds
// every component present, so their constructors count as received.
func (r *Receiver) gainOwnership(id EntityID, h ecs.Handle) {
	r.logger.Debug("gained ownership", "entity", id, "handle", h)
	r.store.AddComponent(h, Simulated{})
	for _, handler := range r.registry.Handlers() {
		handler.RemoveInterpolation(r.store, h)
		if r.store.HasComponent(h, handler.ComponentType()) {
			state := r.tracker.Track(h, handler.TypeID())
			state.HasReceivedConstructor = true
		}
	}
}

func (r *Receiver) applyComponents(frames *FrameReader, simulationFrame uint64, id EntityID, h ecs.Handle) error {
	count, err := frames.ReadComponentCount()
	if err != nil {
		return err
	}

	stream := frames.Reader()
	for range count {
		header, err := frames.ReadComponentHeader()
		if err != nil {
			return err
		}
		r.stats.ComponentFrames++

		handler, known := r.registry.Lookup(header.TypeID)
		switch header.State {
		case Construct:
			if !known {
				return fmt.Errorf("%w: construct of type %d", ErrUnknownComponentType, header.TypeID)
			}
			if _, err := handler.Construct(r.store, h, simulationFrame, stream); err != nil {
				return err
			}
			if ecs.HasComponent[Simulated](r.store, h) {
				r.tracker.Track(h, header.TypeID).HasReceivedConstructor = true
			}

		case Update:
			if !known {
				return fmt.Errorf("%w: update of type %d", ErrUnknownComponentType, header.TypeID)
			}
			_, applied, err := handler.Update(r.store, h, simulationFrame, stream)
			if err != nil {
				return err
			}
			if !applied {
				r.warn("update for missing component", "entity", id, "component", handler.Name())
			}

		case Destruct:
			if !known {
				r.warn("destruct of unknown component type", "entity", id, "type", header.TypeID)
				continue
			}
			if !handler.Destruct(r.store, h) {
				r.logger.Debug("destruct for missing component", "entity", id, "component", handler.Name())
			}
			r.tracker.Forget(h, header.TypeID)
		}
	}
	return nil
}

// MarkForResend schedules the fields in mask of one component to be sent again,
// typically after the packet carrying them was lost.
func (r *Receiver) MarkForResend(id EntityID, typeID schema.TypeID, mask uint32) {
	h, ok := r.mapper.Local(id)
	if !ok || !r.store.Exists(h) {
		r.warn("resend for missing entity", "entity", id, "type", typeID)
		return
	}
	if _, known := r.registry.Lookup(typeID); !known {
		r.warn("resend for unknown component type", "entity", id, "type", typeID)
		return
	}
	if !r.tracker.MarkResend(h, typeID, mask) {
		r.warn("resend for component that is not synced", "entity", id, "type", typeID)
	}
}

// MarkDestroyed records that the entity mapped to id was destroyed locally at
// frame. Frames for it are ignored until the remote peer confirms the deletion.
func (r *Receiver) MarkDestroyed(id EntityID, frame uint64) {
	h, ok := r.mapper.Local(id)
	if !ok {
		r.warn("destroyed entity is not mapped", "entity", id)
		return
	}
	r.tracker.MarkDestroyed(h, frame)
}

// MarkConstructAcknowledged records that the remote peer received the
// constructor of one component of a locally simulated entity.
func (r *Receiver) MarkConstructAcknowledged(id EntityID, typeID schema.TypeID) {
	h, ok := r.mapper.Local(id)
	if ok && r.tracker.IsDestroyed(h) {
		return
	}
	if !ok || !r.store.Exists(h) {
		r.warn("acknowledged entity does not exist", "entity", id, "type", typeID)
		return
	}

	simulated := ecs.ReadComponent[Simulated](r.store, h)
	if simulated == nil {
		r.logger.Debug("acknowledged entity is not simulated", "entity", id, "type", typeID)
		return
	}
	simulated.HasReceivedConstructor = true

	if _, known := r.registry.Lookup(typeID); !known {
		r.warn("acknowledged unknown component type", "entity", id, "type", typeID)
		return
	}
	state, ok := r.tracker.Sync(h, typeID)
	if !ok {
		r.logger.Debug("acknowledged component is not synced", "entity", id, "type", typeID)
		return
	}
	state.HasReceivedConstructor = true
}
