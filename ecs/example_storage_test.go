package ecs_test

import (
	"errors"
	"fmt"

	"github.com/plus3/archecs/ecs"
)

// ExampleStorage demonstrates the basic API for managing entities and components.
// Entities with the same component types share an archetype, and attaching or
// detaching a component moves the entity to the archetype for its new set.
func ExampleStorage() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Health](registry)
	storage := ecs.NewStorage(registry)

	player, _ := storage.Spawn(
		Position{X: 10, Y: 20},
		Velocity{DX: 1, DY: 0},
	)

	pos, _ := ecs.Get[Position](storage, player)
	fmt.Printf("Player spawned at (%.0f, %.0f)\n", pos.X, pos.Y)

	p, _ := ecs.GetMut[Position](storage, player)
	p.X, p.Y = 15, 25
	pos, _ = ecs.Get[Position](storage, player)
	fmt.Printf("Player moved to (%.0f, %.0f)\n", pos.X, pos.Y)

	_ = ecs.Add(storage, player, Health{Current: 100, Max: 100})
	linkings, _ := storage.Resolve(player)
	fmt.Println("Components:", registry.Describe(linkings.Mask))

	_ = storage.Delete(player)
	_, err := ecs.Get[Position](storage, player)
	fmt.Println("Stale handle:", errors.Is(err, ecs.ErrStaleHandle))

	// Output:
	// Player spawned at (10, 20)
	// Player moved to (15, 25)
	// Components: [Position Velocity Health]
	// Stale handle: true
}

// ExampleStorage_Migrate shows adding and removing components by mask.
func ExampleStorage_Migrate() {
	registry := ecs.NewComponentRegistry()
	pos := ecs.RegisterComponent[Position](registry)
	vel := ecs.RegisterComponent[Velocity](registry)
	storage := ecs.NewStorage(registry)

	id, _ := storage.Spawn(Position{X: 1})

	linkings, _ := storage.Migrate(id, vel, 0)
	fmt.Println(linkings.Mask == pos|vel)

	linkings, _ = storage.Migrate(id, 0, pos)
	fmt.Println(linkings.Mask == vel)

	// Output:
	// true
	// true
}
