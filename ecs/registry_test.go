package ecs_test

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/plus3/archecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterComponentIsIdempotent(t *testing.T) {
	registry := ecs.NewComponentRegistry()

	pos := ecs.RegisterComponent[Position](registry)
	vel := ecs.RegisterComponent[Velocity](registry)

	assert.Equal(t, ecs.Bit(0), pos)
	assert.Equal(t, ecs.Bit(1), vel)
	assert.Equal(t, pos, ecs.RegisterComponent[Position](registry))

	again, err := ecs.MaskOf[Position](registry)
	require.NoError(t, err)
	assert.Equal(t, pos, again)
	assert.Equal(t, 2, registry.Len())
}

func TestMaskOfRegistersOnFirstUse(t *testing.T) {
	registry := ecs.NewComponentRegistry()

	_, err := registry.MaskOfType(reflect.TypeFor[Health]())
	assert.ErrorIs(t, err, ecs.ErrUnknownComponent)

	mask, err := ecs.MaskOf[Health](registry)
	require.NoError(t, err)

	byType, err := registry.MaskOfType(reflect.TypeFor[Health]())
	require.NoError(t, err)
	assert.Equal(t, mask, byType)

	// pointer types resolve to their element
	byPtr, err := registry.MaskOfType(reflect.TypeFor[*Health]())
	require.NoError(t, err)
	assert.Equal(t, mask, byPtr)
}

func TestRegisterRejectsInvalidTypes(t *testing.T) {
	registry := ecs.NewComponentRegistry()

	_, err := ecs.MaskOf[*Position](registry)
	assert.ErrorIs(t, err, ecs.ErrInvalidComponentType)

	_, err = ecs.MaskOf[map[string]int](registry)
	assert.ErrorIs(t, err, ecs.ErrInvalidComponentType)

	_, err = ecs.MaskOf[func()](registry)
	assert.ErrorIs(t, err, ecs.ErrInvalidComponentType)

	assert.Panics(t, func() {
		ecs.RegisterComponent[chan int](registry)
	})
	assert.Equal(t, 0, registry.Len())
}

type capacityProbe[T any] struct {
	Value T
}

func registerProbe[T any](registry *ecs.ComponentRegistry) error {
	_, err := ecs.MaskOf[capacityProbe[T]](registry)
	return err
}

func TestRegistryCapacity(t *testing.T) {
	registry := ecs.NewComponentRegistry()

	probes := []func(*ecs.ComponentRegistry) error{
		registerProbe[[1]byte], registerProbe[[2]byte], registerProbe[[3]byte], registerProbe[[4]byte],
		registerProbe[[5]byte], registerProbe[[6]byte], registerProbe[[7]byte], registerProbe[[8]byte],
		registerProbe[[9]byte], registerProbe[[10]byte], registerProbe[[11]byte], registerProbe[[12]byte],
		registerProbe[[13]byte], registerProbe[[14]byte], registerProbe[[15]byte], registerProbe[[16]byte],
		registerProbe[[17]byte], registerProbe[[18]byte], registerProbe[[19]byte], registerProbe[[20]byte],
		registerProbe[[21]byte], registerProbe[[22]byte], registerProbe[[23]byte], registerProbe[[24]byte],
		registerProbe[[25]byte], registerProbe[[26]byte], registerProbe[[27]byte], registerProbe[[28]byte],
		registerProbe[[29]byte], registerProbe[[30]byte], registerProbe[[31]byte], registerProbe[[32]byte],
		registerProbe[[33]byte], registerProbe[[34]byte], registerProbe[[35]byte], registerProbe[[36]byte],
		registerProbe[[37]byte], registerProbe[[38]byte], registerProbe[[39]byte], registerProbe[[40]byte],
		registerProbe[[41]byte], registerProbe[[42]byte], registerProbe[[43]byte], registerProbe[[44]byte],
		registerProbe[[45]byte], registerProbe[[46]byte], registerProbe[[47]byte], registerProbe[[48]byte],
		registerProbe[[49]byte], registerProbe[[50]byte], registerProbe[[51]byte], registerProbe[[52]byte],
		registerProbe[[53]byte], registerProbe[[54]byte], registerProbe[[55]byte], registerProbe[[56]byte],
		registerProbe[[57]byte], registerProbe[[58]byte], registerProbe[[59]byte], registerProbe[[60]byte],
		registerProbe[[61]byte], registerProbe[[62]byte], registerProbe[[63]byte], registerProbe[[64]byte],
	}
	require.Len(t, probes, ecs.MaskWidth)

	for i, probe := range probes {
		require.NoError(t, probe(registry), "probe %d", i)
	}
	assert.Equal(t, ecs.MaskWidth, registry.Len())

	err := registerProbe[[65]byte](registry)
	assert.ErrorIs(t, err, ecs.ErrRegistryCapacityExceeded)

	// already registered types still resolve
	assert.NoError(t, registerProbe[[1]byte](registry))

	assert.PanicsWithError(t, err.Error(), func() {
		ecs.RegisterComponent[capacityProbe[[65]byte]](registry)
	})
}

func TestRegistryDescribe(t *testing.T) {
	registry := ecs.NewComponentRegistry()
	pos := ecs.RegisterComponent[Position](registry)
	vel := ecs.RegisterComponent[Velocity](registry, ecs.WithName("vel"))

	assert.Equal(t, []string{"Position", "vel"}, registry.Describe(pos|vel))
	assert.Equal(t, []string{"vel", "?9"}, registry.Describe(vel|ecs.Bit(9)))
	assert.Equal(t, "vel", registry.Name(1))
	assert.Equal(t, reflect.TypeFor[Position](), registry.TypeAt(0))
	assert.Nil(t, registry.TypeAt(9))

	ints := ecs.RegisterComponent[[]int](registry)
	assert.Equal(t, []string{"[]int"}, registry.Describe(ints))
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	registry := ecs.NewComponentRegistry()

	var wg sync.WaitGroup
	masks := make([]ecs.Mask, 16)
	for i := range masks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := ecs.MaskOf[Position](registry)
			if err == nil {
				masks[i] = m
			}
		}()
	}
	wg.Wait()

	for _, m := range masks {
		assert.Equal(t, masks[0], m)
	}
	assert.Equal(t, 1, registry.Len())
}

func ExampleRegisterComponent() {
	registry := ecs.NewComponentRegistry()
	pos := ecs.RegisterComponent[Position](registry)
	vel := ecs.RegisterComponent[Velocity](registry)

	fmt.Println(pos, vel, pos|vel)
	fmt.Println(registry.Describe(pos | vel))

	_, err := ecs.MaskOf[*Position](registry)
	fmt.Println(errors.Is(err, ecs.ErrInvalidComponentType))

	// Output:
	// m1 m10 m11
	// [Position Velocity]
	// true
}
