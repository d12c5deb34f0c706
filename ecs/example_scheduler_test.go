package ecs_test

import (
	"fmt"

	"github.com/plus3/deltasync/ecs"
)

func ExampleScheduler() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	storage := ecs.NewStorage(registry)

	h := storage.Create(Position{}, Velocity{DX: 2, DY: 1})

	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(&MovementSystem{})
	for range 4 {
		scheduler.Once(0.5)
	}

	pos := ecs.ReadComponent[Position](storage, h)
	fmt.Printf("frame %d: (%.1f, %.1f)\n", scheduler.Frame(), pos.X, pos.Y)
	// Output:
	// frame 4: (4.0, 2.0)
}
