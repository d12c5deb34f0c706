package main

import (
	"math/rand/v2"

	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/replication"
)

// ReleaseSystem destroys a random share of the locally owned entities each
// tick, the way a host drops objects it simulates. The receiver keeps a
// destroyed record for each until the owning peer's deletion arrives.
type ReleaseSystem struct {
	receiver *replication.Receiver
	ratio    float64
	rng      *rand.Rand

	Released int
}

func NewReleaseSystem(receiver *replication.Receiver, ratio float64, seed int64) *ReleaseSystem {
	return &ReleaseSystem{
		receiver: receiver,
		ratio:    ratio,
		rng:      rand.New(rand.NewPCG(uint64(seed), ^uint64(0))),
	}
}

func (s *ReleaseSystem) Execute(frame *ecs.UpdateFrame) {
	if s.ratio == 0 {
		return
	}
	for h := range ecs.Each[replication.Simulated](frame.Storage) {
		if s.rng.Float64() >= s.ratio {
			continue
		}
		id, ok := s.receiver.Mapper().Remote(h)
		if !ok {
			continue
		}
		s.receiver.MarkDestroyed(id, frame.Frame)
		frame.Commands.Destroy(h)
		s.Released++
	}
}
