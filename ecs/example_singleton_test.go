package ecs_test

import (
	"fmt"

	"github.com/plus3/archecs/ecs"
)

type FrameCounter struct {
	Frames int
}

type CounterSystem struct {
	Counter *ecs.Singleton[FrameCounter]
}

func (s *CounterSystem) Execute(*ecs.UpdateFrame) error {
	s.Counter.Get().Frames++
	return nil
}

// ExampleSingleton shares one value between systems without attaching it to an entity.
func ExampleSingleton() {
	storage := ecs.NewStorage(ecs.NewComponentRegistry())
	counter := ecs.MustSingleton(storage, FrameCounter{Frames: 100})

	scheduler := ecs.NewScheduler(storage)
	scheduler.MustRegister("counter", &CounterSystem{Counter: counter})

	for range 3 {
		_ = scheduler.Once(0.016)
	}
	fmt.Println(counter.Get().Frames)

	// Output:
	// 103
}
