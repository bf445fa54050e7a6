package main

import (
	"log/slog"
	"math/rand/v2"
	"reflect"

	"github.com/plus3/archecs/ecs"
)

// Stress components. Each one is a plain value type registered at startup.
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Health struct {
	Current, Max int32
}

type Lifetime struct {
	Remaining float64
}

type Burning struct {
	Damage int32
}

var burningType = reflect.TypeFor[Burning]()

type Team uint8

type Score int64

// FrameRNG is the shared random source systems draw from.
type FrameRNG struct {
	rng *rand.Rand
}

func registerComponents(registry *ecs.ComponentRegistry) {
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Health](registry)
	ecs.RegisterComponent[Lifetime](registry)
	ecs.RegisterComponent[Burning](registry)
	ecs.RegisterComponent[Team](registry)
	ecs.RegisterComponent[Score](registry)
	ecs.RegisterComponent[FrameRNG](registry)
}

// World bundles everything one stress run needs.
type World struct {
	Storage   *ecs.Storage
	Scheduler *ecs.Scheduler
	rng       *rand.Rand
}

func newWorld(scenario Scenario, logger *slog.Logger) (*World, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := ecs.NewComponentRegistry()
	registerComponents(registry)

	storage := ecs.NewStorage(registry,
		ecs.WithStorageLogger(logger),
		ecs.WithEntityCapacity(scenario.Entities),
	)
	scheduler := ecs.NewScheduler(storage,
		ecs.WithWorkers(scenario.Workers),
		ecs.WithLogger(logger),
	)

	w := &World{
		Storage:   storage,
		Scheduler: scheduler,
		rng:       rand.New(rand.NewPCG(scenario.Seed, scenario.Seed^0x9e3779b97f4a7c15)),
	}

	rng, err := ecs.NewSingleton(storage, FrameRNG{rng: rand.New(rand.NewPCG(scenario.Seed+1, scenario.Seed))})
	if err != nil {
		return nil, err
	}

	systems := []struct {
		name   string
		system ecs.System
		opts   []ecs.SystemOption
	}{
		{"steering", newSteeringSystem(storage, rng), nil},
		{"movement", newMovementSystem(storage, scenario.Workers), []ecs.SystemOption{ecs.After("steering")}},
		{"bounds", newBoundsSystem(storage), []ecs.SystemOption{ecs.After("movement")}},
		{"burn", newBurnSystem(storage), nil},
		{"regen", newRegenSystem(storage), []ecs.SystemOption{ecs.After("burn")}},
		{"scoring", newScoringSystem(storage), nil},
		{"lifetime", newLifetimeSystem(storage), nil},
		{"churn", newChurnSystem(storage, rng, scenario.Churn, max(2*scenario.Entities, scenario.Churn)), []ecs.SystemOption{ecs.After("lifetime", "bounds")}},
	}
	for _, s := range systems {
		if _, err := scheduler.Register(s.name, s.system, s.opts...); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// randomBundle builds a bundle with Position and a random selection of other components.
func randomBundle(rng *rand.Rand) []any {
	bundle := []any{Position{X: rng.Float32() * 1000, Y: rng.Float32() * 1000}}
	if rng.IntN(4) != 0 {
		bundle = append(bundle, Velocity{DX: rng.Float32()*2 - 1, DY: rng.Float32()*2 - 1})
	}
	if rng.IntN(2) == 0 {
		bundle = append(bundle, Health{Current: 100, Max: 100})
	}
	if rng.IntN(3) == 0 {
		bundle = append(bundle, Lifetime{Remaining: 1 + rng.Float64()*5})
	}
	if rng.IntN(5) == 0 {
		bundle = append(bundle, Team(rng.IntN(4)))
	}
	if rng.IntN(6) == 0 {
		bundle = append(bundle, Score(0))
	}
	return bundle
}

// Populate spawns n entities with random bundles in one batch.
func (w *World) Populate(n int) error {
	bundles := make([][]any, n)
	for i := range bundles {
		bundles[i] = randomBundle(w.rng)
	}
	_, err := w.Storage.SpawnBatch(bundles)
	return err
}

type steeringSystem struct {
	Query *ecs.Query
	RNG   *ecs.Singleton[FrameRNG]
	vel   *ecs.WriteTerm[Velocity]
}

func newSteeringSystem(storage *ecs.Storage, rng *ecs.Singleton[FrameRNG]) *steeringSystem {
	s := &steeringSystem{RNG: rng, vel: ecs.Write[Velocity]()}
	s.Query = ecs.MustQuery(storage, s.vel, ecs.With[Team]())
	return s
}

func (s *steeringSystem) Execute(frame *ecs.UpdateFrame) error {
	rng := s.RNG.Get().rng
	return s.Query.ForEach(func(row ecs.Row) error {
		v := s.vel.Get(row)
		v.DX += (rng.Float32() - 0.5) * 0.1
		v.DY += (rng.Float32() - 0.5) * 0.1
		return nil
	})
}

type movementSystem struct {
	Query   *ecs.Query
	pos     *ecs.WriteTerm[Position]
	vel     *ecs.ReadTerm[Velocity]
	workers int
}

func newMovementSystem(storage *ecs.Storage, workers int) *movementSystem {
	s := &movementSystem{
		pos:     ecs.Write[Position](),
		vel:     ecs.Read[Velocity](),
		workers: workers,
	}
	s.Query = ecs.MustQuery(storage, s.pos, s.vel)
	return s
}

func (s *movementSystem) Execute(frame *ecs.UpdateFrame) error {
	dt := float32(frame.DeltaTime)
	return s.Query.ParForEach(s.workers, func(row ecs.Row) error {
		p := s.pos.Get(row)
		v := s.vel.Get(row)
		p.X += v.DX * dt
		p.Y += v.DY * dt
		return nil
	})
}

type boundsSystem struct {
	Query *ecs.Query
	pos   *ecs.ReadTerm[Position]
}

func newBoundsSystem(storage *ecs.Storage) *boundsSystem {
	s := &boundsSystem{pos: ecs.Read[Position]()}
	s.Query = ecs.MustQuery(storage, s.pos, ecs.Changed[Position]())
	return s
}

func (s *boundsSystem) Execute(frame *ecs.UpdateFrame) error {
	return s.Query.ForEach(func(row ecs.Row) error {
		p := s.pos.Get(row)
		if p.X < -1000 || p.X > 2000 || p.Y < -1000 || p.Y > 2000 {
			frame.Commands.Delete(row.Entity())
		}
		return nil
	})
}

type burnSystem struct {
	Query  *ecs.Query
	health *ecs.WriteTerm[Health]
	burn   *ecs.ReadTerm[Burning]
}

func newBurnSystem(storage *ecs.Storage) *burnSystem {
	s := &burnSystem{health: ecs.Write[Health](), burn: ecs.Read[Burning]()}
	s.Query = ecs.MustQuery(storage, s.health, s.burn)
	return s
}

func (s *burnSystem) Execute(frame *ecs.UpdateFrame) error {
	return s.Query.ForEach(func(row ecs.Row) error {
		h := s.health.Get(row)
		h.Current -= s.burn.Get(row).Damage
		if h.Current <= 0 {
			frame.Commands.Delete(row.Entity())
		}
		return nil
	})
}

type regenSystem struct {
	Query  *ecs.Query
	health *ecs.WriteTerm[Health]
}

func newRegenSystem(storage *ecs.Storage) *regenSystem {
	s := &regenSystem{health: ecs.Write[Health]()}
	s.Query = ecs.MustQuery(storage, s.health, ecs.Without[Burning]())
	return s
}

func (s *regenSystem) Execute(frame *ecs.UpdateFrame) error {
	return s.Query.ForEach(func(row ecs.Row) error {
		if h := s.health.Peek(row); h.Current < h.Max {
			s.health.Set(row, Health{Current: h.Current + 1, Max: h.Max})
		}
		return nil
	})
}

type scoringSystem struct {
	Query *ecs.Query
	score *ecs.WriteTerm[Score]
	team  *ecs.OptionalTerm[Team]
}

func newScoringSystem(storage *ecs.Storage) *scoringSystem {
	s := &scoringSystem{score: ecs.Write[Score](), team: ecs.Optional[Team]()}
	s.Query = ecs.MustQuery(storage, s.score, s.team)
	return s
}

func (s *scoringSystem) Execute(frame *ecs.UpdateFrame) error {
	return s.Query.ForEach(func(row ecs.Row) error {
		bonus := Score(1)
		if team, ok := s.team.Get(row); ok {
			bonus += Score(team)
		}
		*s.score.Get(row) += bonus
		return nil
	})
}

type lifetimeSystem struct {
	Query    *ecs.Query
	lifetime *ecs.WriteTerm[Lifetime]
}

func newLifetimeSystem(storage *ecs.Storage) *lifetimeSystem {
	s := &lifetimeSystem{lifetime: ecs.Write[Lifetime]()}
	s.Query = ecs.MustQuery(storage, s.lifetime)
	return s
}

func (s *lifetimeSystem) Execute(frame *ecs.UpdateFrame) error {
	return s.Query.ForEach(func(row ecs.Row) error {
		l := s.lifetime.Get(row)
		l.Remaining -= frame.DeltaTime
		if l.Remaining <= 0 {
			frame.Commands.Delete(row.Entity())
		}
		return nil
	})
}

// churnSystem keeps archetypes moving: it spawns fresh entities while the
// population is under its limit and sets or puts out fires, which migrates
// entities in and out of the Burning archetypes.
type churnSystem struct {
	Query *ecs.Query
	RNG   *ecs.Singleton[FrameRNG]
	rate  int
	limit int
}

func newChurnSystem(storage *ecs.Storage, rng *ecs.Singleton[FrameRNG], rate, limit int) *churnSystem {
	return &churnSystem{
		Query: ecs.MustQuery(storage, ecs.With[Health]()),
		RNG:   rng,
		rate:  rate,
		limit: limit,
	}
}

func (s *churnSystem) Execute(frame *ecs.UpdateFrame) error {
	if s.rate <= 0 {
		return nil
	}
	rng := s.RNG.Get().rng

	if frame.Storage.Len() < s.limit {
		for range s.rate {
			frame.Commands.Spawn(randomBundle(rng)...)
		}
	}

	budget := s.rate
	return s.Query.ForEach(func(row ecs.Row) error {
		if budget == 0 {
			return nil
		}
		switch rng.IntN(64) {
		case 0:
			frame.Commands.AddComponents(row.Entity(), Burning{Damage: 1 + rng.Int32N(5)})
			budget--
		case 1:
			frame.Commands.RemoveComponents(row.Entity(), burningType)
			budget--
		}
		return nil
	})
}
