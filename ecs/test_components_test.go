package ecs_test

import (
	"io"
	"log/slog"

	"github.com/plus3/archecs/ecs"
)

// Fixture components shared by the package tests.
type (
	Position struct{ X, Y float32 }
	Velocity struct{ DX, DY float32 }
	Name     struct{ Value string }

	Health struct {
		Current int
		Max     int
	}

	// PlayerController is a zero-sized marker.
	PlayerController struct{}

	AI struct{ State int }

	Inventory struct{ Items []string }

	// Link holds a pointer inside a struct, which is allowed.
	Link struct{ Next *Position }
)

// Named primitives exercise non-struct columns.
type (
	Score       int32
	Tag         string
	Temperature float64
)

func newTestRegistry() *ecs.ComponentRegistry {
	r := ecs.NewComponentRegistry()
	for _, register := range []func(*ecs.ComponentRegistry, ...ecs.ComponentOption) ecs.Mask{
		ecs.RegisterComponent[Position],
		ecs.RegisterComponent[Velocity],
		ecs.RegisterComponent[Name],
		ecs.RegisterComponent[Health],
		ecs.RegisterComponent[PlayerController],
		ecs.RegisterComponent[AI],
		ecs.RegisterComponent[Score],
		ecs.RegisterComponent[Tag],
		ecs.RegisterComponent[Temperature],
		ecs.RegisterComponent[Inventory],
		ecs.RegisterComponent[Link],
	} {
		register(r)
	}
	return r
}

func newTestStorage() *ecs.Storage {
	return ecs.NewStorage(newTestRegistry(),
		ecs.WithStorageLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}
