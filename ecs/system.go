package ecs

// System represents a behavior that runs once per scheduler tick.
// All systems of a scheduler run on the same goroutine, so a system may mutate
// the storage directly or defer structural changes through frame.Commands.
type System interface {
	Execute(frame *UpdateFrame)
}
