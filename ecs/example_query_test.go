package ecs_test

import (
	"fmt"

	"github.com/plus3/archecs/ecs"
)

// ExampleQuery moves every entity that has both a position and a velocity.
// Terms are kept by the caller and used to read and write each row.
func ExampleQuery() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	storage := ecs.NewStorage(registry)

	storage.Spawn(Position{X: 1}, Velocity{DX: 2})
	storage.Spawn(Position{X: 3})

	pos := ecs.Write[Position]()
	vel := ecs.Read[Velocity]()
	query, err := ecs.NewQuery(storage, pos, vel)
	if err != nil {
		panic(err)
	}

	for row := range query.Iter() {
		p := pos.Get(row)
		p.X += vel.Get(row).DX
	}

	for row := range ecs.MustQuery(storage, ecs.Read[Position]()).Iter() {
		p, _ := ecs.Get[Position](storage, row.Entity())
		fmt.Printf("%.0f\n", p.X)
	}

	// Output:
	// 3
	// 3
}

// ExampleChanged reports only rows written since the previous pass.
func ExampleChanged() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Health](registry)
	storage := ecs.NewStorage(registry)

	a, _ := storage.Spawn(Health{Current: 10})
	storage.Spawn(Health{Current: 20})

	hp := ecs.Read[Health]()
	changed := ecs.MustQuery(storage, hp, ecs.Changed[Health]())
	fmt.Println("first pass:", changed.Count())

	n := 0
	for range changed.Iter() {
		n++
	}
	fmt.Println("changed rows:", n)

	_ = ecs.Set(storage, a, Health{Current: 5})
	for row := range changed.Iter() {
		fmt.Println("changed:", hp.Get(row).Current)
	}

	// Output:
	// first pass: 2
	// changed rows: 2
	// changed: 5
}
