package ecs_test

import (
	"context"
	"testing"
	"time"

	"github.com/plus3/deltasync/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MovementSystem struct{}

func (s *MovementSystem) Execute(frame *ecs.UpdateFrame) {
	for h, vel := range ecs.Each[Velocity](frame.Storage) {
		if pos := ecs.ReadComponent[Position](frame.Storage, h); pos != nil {
			pos.X += vel.DX * float32(frame.DeltaTime)
			pos.Y += vel.DY * float32(frame.DeltaTime)
		}
	}
}

type frameRecorder struct {
	frames []uint64
}

func (s *frameRecorder) Execute(frame *ecs.UpdateFrame) {
	s.frames = append(s.frames, frame.Frame)
}

func TestSchedulerOnce(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	h := storage.Create(Position{}, Velocity{DX: 10, DY: -4})

	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(&MovementSystem{})
	scheduler.Once(0.5)
	scheduler.Once(0.5)

	pos := ecs.ReadComponent[Position](storage, h)
	assert.InDelta(t, 10, pos.X, 1e-6)
	assert.InDelta(t, -4, pos.Y, 1e-6)
}

func TestSchedulerFrameCounter(t *testing.T) {
	scheduler := ecs.NewScheduler(ecs.NewStorage(newTestRegistry()))
	recorder := &frameRecorder{}
	scheduler.Register(recorder)

	assert.Zero(t, scheduler.Frame())
	for range 3 {
		scheduler.Once(0)
	}
	assert.Equal(t, []uint64{1, 2, 3}, recorder.frames)
	assert.Equal(t, uint64(3), scheduler.Frame())
}

func TestSchedulerSystemOrder(t *testing.T) {
	scheduler := ecs.NewScheduler(ecs.NewStorage(newTestRegistry()))
	var order []int
	for i := range 3 {
		scheduler.Register(&funcSystem{fn: func(*ecs.UpdateFrame) {
			order = append(order, i)
		}})
	}
	scheduler.Once(0)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestSchedulerStats(t *testing.T) {
	scheduler := ecs.NewScheduler(ecs.NewStorage(newTestRegistry()))
	scheduler.Register(&MovementSystem{})
	scheduler.Register(&frameRecorder{})

	for range 5 {
		scheduler.Once(0.016)
	}

	stats := scheduler.GetStats()
	assert.Equal(t, 2, stats.SystemCount)
	assert.Equal(t, int64(10), stats.TotalExecutions)
	assert.Equal(t, uint64(5), stats.Frame)
	require.Len(t, stats.Systems, 2)

	movement := stats.Systems[0]
	assert.Equal(t, "MovementSystem", movement.Name)
	assert.Equal(t, int64(5), movement.ExecutionCount)
	assert.LessOrEqual(t, movement.MinDuration, movement.MaxDuration)
	assert.Equal(t, movement.TotalDuration/5, movement.AvgDuration)
	assert.Equal(t, "frameRecorder", stats.Systems[1].Name)
}

func TestSchedulerStatsBeforeFirstTick(t *testing.T) {
	scheduler := ecs.NewScheduler(ecs.NewStorage(newTestRegistry()))
	scheduler.Register(&MovementSystem{})

	stats := scheduler.GetStats()
	assert.Zero(t, stats.TotalExecutions)
	assert.Zero(t, stats.Systems[0].AvgDuration)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	scheduler := ecs.NewScheduler(ecs.NewStorage(newTestRegistry()))
	recorder := &frameRecorder{}
	scheduler.Register(recorder)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.NotEmpty(t, recorder.frames)
	assert.Equal(t, uint64(len(recorder.frames)), scheduler.Frame())
}
