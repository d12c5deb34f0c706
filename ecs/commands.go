package ecs

import "reflect"

// Commands provides a buffer for deferred ECS operations that are executed at the end of a frame.
// This prevents structural changes to the ECS storage during system execution.
type Commands struct {
	creates  []createCommand
	destroys []Handle
	adds     []addComponentCommand
	removes  []removeComponentCommand
	defers   []deferCommand
}

func newCommands() *Commands {
	return &Commands{}
}

type deferCommand struct {
	fn func()
}

type createCommand struct {
	components []any
	done       func(Handle)
}

type addComponentCommand struct {
	entity    Handle
	component any
}

type removeComponentCommand struct {
	entity   Handle
	compType reflect.Type
}

// Defer queues a function execution operation.
func (c *Commands) Defer(fn func()) {
	c.defers = append(c.defers, deferCommand{fn: fn})
}

// Create queues an entity creation with the given components.
// done, if not nil, receives the new handle when the buffer is flushed.
func (c *Commands) Create(done func(Handle), components ...any) {
	c.creates = append(c.creates, createCommand{components: components, done: done})
}

// Destroy queues an entity destruction.
func (c *Commands) Destroy(entity Handle) {
	c.destroys = append(c.destroys, entity)
}

// AddComponent queues a component addition operation.
func (c *Commands) AddComponent(entity Handle, component any) {
	c.adds = append(c.adds, addComponentCommand{
		entity:    entity,
		component: component,
	})
}

// RemoveComponent queues a component removal operation.
func (c *Commands) RemoveComponent(entity Handle, compType reflect.Type) {
	c.removes = append(c.removes, removeComponentCommand{
		entity:   entity,
		compType: compType,
	})
}

// Flush flushes all commands to the provided storage, reseting the buffer state.
// Destroyed handles no longer resolve, so adds and removes queued against them are dropped.
func (c *Commands) Flush(storage *Storage) {
	for _, cmd := range c.destroys {
		storage.Destroy(cmd)
	}

	for _, cmd := range c.removes {
		storage.RemoveComponent(cmd.entity, cmd.compType)
	}

	for _, cmd := range c.adds {
		storage.AddComponent(cmd.entity, cmd.component)
	}

	for _, cmd := range c.creates {
		h := storage.Create(cmd.components...)
		if cmd.done != nil {
			cmd.done(h)
		}
	}

	for _, df := range c.defers {
		df.fn()
	}

	c.creates = c.creates[:0]
	c.destroys = c.destroys[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]
}
