package ecs

// UpdateFrame is handed to every system on every scheduler step.
type UpdateFrame struct {
	DeltaTime float64
	// Tick counts scheduler steps, starting at 1.
	Tick uint64
	// Commands is private to the running system and flushed after its stage.
	Commands *Commands
	Storage  *Storage
	// System is the registered name of the running system.
	System string
}

func newUpdateFrame(dt float64, tick uint64, storage *Storage, system string) *UpdateFrame {
	return &UpdateFrame{
		DeltaTime: dt,
		Tick:      tick,
		Commands:  newCommands(),
		Storage:   storage,
		System:    system,
	}
}
