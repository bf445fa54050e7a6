package ecs

import (
	"errors"
	"reflect"
	"sync"

	"github.com/kamstrup/intmap"
)

// Commands provides a buffer for deferred ECS operations that are executed at the end of a stage.
// This keeps structural changes out of live query passes. Commands may be queued from
// several goroutines, for example from a ParForEach callback.
type Commands struct {
	mu      sync.Mutex
	spawns  [][]any
	deletes []EntityId
	adds    []addComponentsCommand
	removes []removeComponentsCommand
	defers  []func()
}

func newCommands() *Commands {
	return &Commands{}
}

// NewCommands creates an empty buffer for use outside the scheduler.
func NewCommands() *Commands {
	return newCommands()
}

type addComponentsCommand struct {
	entity     EntityId
	components []any
}

type removeComponentsCommand struct {
	entity EntityId
	types  []reflect.Type
}

// Defer queues a function to run after every other queued operation.
func (c *Commands) Defer(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defers = append(c.defers, fn)
}

// Spawn queues an entity spawn operation with the given components.
func (c *Commands) Spawn(components ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spawns = append(c.spawns, components)
}

// Delete queues an entity deletion operation.
func (c *Commands) Delete(entity EntityId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, entity)
}

// AddComponents queues attaching components to an entity.
func (c *Commands) AddComponents(entity EntityId, components ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adds = append(c.adds, addComponentsCommand{
		entity:     entity,
		components: components,
	})
}

// RemoveComponents queues detaching component types from an entity.
func (c *Commands) RemoveComponents(entity EntityId, types ...reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removes = append(c.removes, removeComponentsCommand{
		entity: entity,
		types:  types,
	})
}

// Len returns the number of queued operations.
func (c *Commands) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spawns) + len(c.deletes) + len(c.adds) + len(c.removes) + len(c.defers)
}

// Flush applies all queued operations to storage and resets the buffer.
// Deletes run first, then removals, additions, spawns and deferred functions.
// Operations on an entity deleted by the same flush are dropped. Every failed
// operation is reported in the joined error; the rest still apply.
func (c *Commands) Flush(storage *Storage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	deleted := intmap.New[EntityId, struct{}](len(c.deletes))

	for _, id := range c.deletes {
		if _, ok := deleted.Get(id); ok {
			continue
		}
		if err := storage.Delete(id); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted.Put(id, struct{}{})
	}

	for _, cmd := range c.removes {
		if _, ok := deleted.Get(cmd.entity); ok {
			continue
		}
		if err := storage.RemoveComponents(cmd.entity, cmd.types...); err != nil {
			errs = append(errs, err)
		}
	}

	for _, cmd := range c.adds {
		if _, ok := deleted.Get(cmd.entity); ok {
			continue
		}
		if _, err := storage.Insert(cmd.entity, cmd.components...); err != nil {
			errs = append(errs, err)
		}
	}

	for _, components := range c.spawns {
		if _, err := storage.Spawn(components...); err != nil {
			errs = append(errs, err)
		}
	}

	for _, fn := range c.defers {
		fn()
	}

	c.spawns = c.spawns[:0]
	c.deletes = c.deletes[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]
	return errors.Join(errs...)
}
