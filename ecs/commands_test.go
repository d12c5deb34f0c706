package ecs_test

import (
	"reflect"
	"testing"

	"github.com/plus3/deltasync/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawnSystem struct {
	spawned []ecs.Handle
}

func (s *spawnSystem) Execute(frame *ecs.UpdateFrame) {
	frame.Commands.Create(func(h ecs.Handle) {
		s.spawned = append(s.spawned, h)
	}, Position{X: float32(frame.Frame)})
}

func TestCommandsAreDeferredUntilFlush(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	scheduler := ecs.NewScheduler(storage)

	var observed int
	scheduler.Register(&spawnSystem{})
	scheduler.Register(&funcSystem{fn: func(frame *ecs.UpdateFrame) {
		observed = frame.Storage.Len()
	}})

	scheduler.Once(0.016)
	assert.Equal(t, 0, observed, "creation is not visible during the tick")
	assert.Equal(t, 1, storage.Len())

	scheduler.Once(0.016)
	assert.Equal(t, 1, observed)
	assert.Equal(t, 2, storage.Len())
}

func TestCommandsCreateReportsHandle(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	runCommands(storage, func(c *ecs.Commands) {
		c.Create(nil, Tag("anonymous"))
	})

	spawner := &spawnSystem{}
	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(spawner)
	scheduler.Once(0)
	scheduler.Once(0)

	require.Len(t, spawner.spawned, 2)
	assert.Equal(t, float32(1), ecs.ReadComponent[Position](storage, spawner.spawned[0]).X)
	assert.Equal(t, float32(2), ecs.ReadComponent[Position](storage, spawner.spawned[1]).X)
	assert.Equal(t, 3, storage.Len())
}

func TestCommandsAddRemoveDestroy(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	keep := storage.Create(Position{X: 1})
	drop := storage.Create(Position{X: 2})

	runCommands(storage, func(c *ecs.Commands) {
		c.AddComponent(keep, Velocity{DX: 3})
		c.RemoveComponent(keep, reflect.TypeOf(Position{}))
		c.Destroy(drop)
		c.AddComponent(drop, Health{Current: 1})
	})

	assert.False(t, ecs.HasComponent[Position](storage, keep))
	assert.Equal(t, float32(3), ecs.ReadComponent[Velocity](storage, keep).DX)
	assert.False(t, storage.Exists(drop))
	assert.Zero(t, storage.Count(reflect.TypeOf(Health{})), "adds to destroyed entities are dropped")
}

func TestCommandsFlushOrder(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	h := storage.Create(Score(1))

	var order []string
	runCommands(storage, func(c *ecs.Commands) {
		c.Defer(func() {
			order = append(order, "defer")
			assert.Equal(t, Score(2), *ecs.ReadComponent[Score](storage, h))
		})
		c.Create(func(ecs.Handle) { order = append(order, "create") })
		c.AddComponent(h, Score(2))
		c.RemoveComponent(h, reflect.TypeOf(Score(0)))
	})

	// removes run before adds, so the replacement survives
	assert.Equal(t, []string{"create", "defer"}, order)
	assert.Equal(t, Score(2), *ecs.ReadComponent[Score](storage, h))
}

func TestCommandsResetAfterFlush(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	var calls int

	cmds := runCommands(storage, func(c *ecs.Commands) {
		c.Defer(func() { calls++ })
		c.Create(nil)
	})
	cmds.Flush(storage)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, storage.Len())
}

type funcSystem struct {
	fn func(frame *ecs.UpdateFrame)
}

func (s *funcSystem) Execute(frame *ecs.UpdateFrame) {
	s.fn(frame)
}

// runCommands records commands inside a single scheduler tick and returns the
// buffer after it has been flushed.
func runCommands(storage *ecs.Storage, record func(c *ecs.Commands)) *ecs.Commands {
	var cmds *ecs.Commands
	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(&funcSystem{fn: func(frame *ecs.UpdateFrame) {
		cmds = frame.Commands
		record(cmds)
	}})
	scheduler.Once(0)
	return cmds
}
