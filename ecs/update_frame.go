package ecs

type UpdateFrame struct {
	DeltaTime float64
	// Frame is the absolute simulation frame, counted from the scheduler's first tick.
	Frame    uint64
	Commands *Commands
	Storage  *Storage
}

func newUpdateFrame(dt float64, frame uint64, storage *Storage) *UpdateFrame {
	return &UpdateFrame{
		DeltaTime: dt,
		Frame:     frame,
		Commands:  newCommands(),
		Storage:   storage,
	}
}
