package replication

import (
	"sync"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/ecs"
)

// ReceiveSystem applies queued snapshots inside the scheduler tick, the only
// place the store is written from. Enqueue may be called from any goroutine.
type ReceiveSystem struct {
	receiver *Receiver

	mu    sync.Mutex
	queue [][]byte

	// OnDesync is called with the *DesyncError of a dropped snapshot.
	OnDesync func(error)
}

func NewReceiveSystem(receiver *Receiver) *ReceiveSystem {
	return &ReceiveSystem{receiver: receiver}
}

// Enqueue queues a snapshot for the next tick. The system keeps data.
func (s *ReceiveSystem) Enqueue(data []byte) {
	s.mu.Lock()
	s.queue = append(s.queue, data)
	s.mu.Unlock()
}

// Pending returns the number of queued snapshots.
func (s *ReceiveSystem) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *ReceiveSystem) Execute(frame *ecs.UpdateFrame) {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, data := range batch {
		err := s.receiver.ApplySnapshot(frame.Frame, bitstream.NewReader(data))
		if err != nil && s.OnDesync != nil {
			s.OnDesync(err)
		}
	}
}
