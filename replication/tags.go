package replication

import "github.com/plus3/deltasync/ecs"

// Simulated marks an entity the local peer has authority over.
type Simulated struct {
	// HasReceivedConstructor is set once the remote peer acknowledged a
	// construct for any of the entity's components.
	HasReceivedConstructor bool
}

// LingerSimulated keeps a released entity simulated briefly after authority
// moved to another peer. The host adds it; losing ownership removes it.
type LingerSimulated struct{}

// Mapped marks entities created from the network.
type Mapped struct{}

// Orphan marks entities that currently have no owning peer.
type Orphan struct{}

// AuthorityTransfer buffers authority transfer events delivered to a remote-owned entity.
type AuthorityTransfer struct {
	Events []AuthorityTransferEvent
}

type AuthorityTransferEvent struct {
	Participant uint32
	Accepted    bool
}

// AuthorityTransferRequest buffers outgoing requests for authority over a remote-owned entity.
type AuthorityTransferRequest struct {
	Requests []AuthorityRequest
}

type AuthorityRequest struct {
	Participant uint32
}

// SampleCapacity bounds the number of samples kept per interpolated component.
const SampleCapacity = 8

// Sample is a component value received for a simulation frame.
type Sample[T any] struct {
	Frame uint64
	Value T
}

// Samples buffers the most recent values received for a remote-owned component, oldest first.
type Samples[T any] struct {
	Items []Sample[T]
}

// Push appends a sample, dropping the oldest once SampleCapacity is reached.
func (s *Samples[T]) Push(frame uint64, value T) {
	if len(s.Items) == SampleCapacity {
		copy(s.Items, s.Items[1:])
		s.Items = s.Items[:SampleCapacity-1]
	}
	s.Items = append(s.Items, Sample[T]{Frame: frame, Value: value})
}

// Latest returns the newest sample.
func (s *Samples[T]) Latest() (Sample[T], bool) {
	if len(s.Items) == 0 {
		return Sample[T]{}, false
	}
	return s.Items[len(s.Items)-1], true
}

// Interpolation holds the two samples a renderer blends between.
type Interpolation[T any] struct {
	From Sample[T]
	To   Sample[T]
}

// RegisterComponents registers the bookkeeping components the receiver attaches to entities.
func RegisterComponents(registry *ecs.ComponentRegistry) {
	ecs.RegisterComponent[Simulated](registry)
	ecs.RegisterComponent[LingerSimulated](registry)
	ecs.RegisterComponent[Mapped](registry)
	ecs.RegisterComponent[Orphan](registry)
	ecs.RegisterComponent[AuthorityTransfer](registry)
	ecs.RegisterComponent[AuthorityTransferRequest](registry)
}
