package ecs_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/plus3/archecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsSpawn(t *testing.T) {
	storage := newTestStorage()
	cmds := ecs.NewCommands()

	cmds.Spawn(Position{X: 1}, Velocity{DX: 2})
	cmds.Spawn(Health{Current: 3})
	assert.Equal(t, 2, cmds.Len())
	assert.Equal(t, 0, storage.Len(), "nothing happens before Flush")

	require.NoError(t, cmds.Flush(storage))
	assert.Equal(t, 2, storage.Len())
	assert.Equal(t, 0, cmds.Len())

	// flushing an empty buffer is a no-op
	require.NoError(t, cmds.Flush(storage))
	assert.Equal(t, 2, storage.Len())
}

func TestCommandsAddRemove(t *testing.T) {
	storage := newTestStorage()
	id := mustSpawn(t, storage, Position{}, Velocity{})
	cmds := ecs.NewCommands()

	cmds.AddComponents(id, Health{Current: 10}, Score(5))
	cmds.RemoveComponents(id, reflect.TypeFor[Velocity]())
	require.NoError(t, cmds.Flush(storage))

	assert.True(t, ecs.Has[Position](storage, id))
	assert.False(t, ecs.Has[Velocity](storage, id))
	hp, err := ecs.Get[Health](storage, id)
	require.NoError(t, err)
	assert.Equal(t, 10, hp.Current)
	assert.True(t, ecs.Has[Score](storage, id))
}

func TestCommandsDeleteWinsOverOtherOperations(t *testing.T) {
	storage := newTestStorage()
	id := mustSpawn(t, storage, Position{})
	cmds := ecs.NewCommands()

	cmds.AddComponents(id, Health{})
	cmds.RemoveComponents(id, reflect.TypeFor[Position]())
	cmds.Delete(id)
	cmds.Delete(id)

	require.NoError(t, cmds.Flush(storage), "duplicate deletes and operations on deleted entities are dropped")
	assert.False(t, storage.IsAlive(id))
	assert.Equal(t, 0, storage.Len())
}

func TestCommandsFlushJoinsErrors(t *testing.T) {
	storage := newTestStorage()
	live := mustSpawn(t, storage, Position{})
	stale := mustSpawn(t, storage, Position{})
	require.NoError(t, storage.Delete(stale))

	type unregistered struct{}
	cmds := ecs.NewCommands()
	cmds.Delete(stale)
	cmds.AddComponents(live, unregistered{})
	cmds.Spawn(Velocity{})

	err := cmds.Flush(storage)
	assert.ErrorIs(t, err, ecs.ErrStaleHandle)
	assert.ErrorIs(t, err, ecs.ErrUnknownComponent)
	assert.Equal(t, 2, storage.Len(), "valid commands still apply")
}

func TestCommandsDeferRunsLast(t *testing.T) {
	storage := newTestStorage()
	cmds := ecs.NewCommands()

	var seen int
	cmds.Defer(func() {
		seen = storage.Len()
	})
	cmds.Spawn(Position{})
	require.NoError(t, cmds.Flush(storage))
	assert.Equal(t, 1, seen)
}

func TestCommandsConcurrentQueueing(t *testing.T) {
	storage := newTestStorage()
	cmds := ecs.NewCommands()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				cmds.Spawn(Score(i*100 + j))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, cmds.Flush(storage))
	assert.Equal(t, 800, storage.Len())
}
