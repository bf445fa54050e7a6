package ecs

import (
	"fmt"
	"math"
)

// EntityId encodes both the generation (upper 32 bits) and the slot index (lower 32 bits).
// Generations start at 1, so the zero EntityId never refers to a live entity.
type EntityId uint64

// NewEntityId creates an EntityId from a slot index and generation
func NewEntityId(index uint32, generation uint32) EntityId {
	return EntityId(uint64(generation)<<32 | uint64(index))
}

// Index extracts the slot index from the entity ID
func (e EntityId) Index() uint32 {
	return uint32(e & 0xFFFFFFFF)
}

// Generation extracts the generation from the entity ID
func (e EntityId) Generation() uint32 {
	return uint32(e >> 32)
}

func (e EntityId) String() string {
	return fmt.Sprintf("%dv%d", e.Index(), e.Generation())
}

// ArchetypeId is the dense index of an archetype inside its Storage.
type ArchetypeId uint32

// EmptyArchetype is the id of the archetype with no components. Every storage has one.
const EmptyArchetype ArchetypeId = 0

// EntityLinkings locates a live entity: its archetype and its row in that archetype's columns.
type EntityLinkings struct {
	Archetype ArchetypeId
	Mask      Mask
	Row       int
}

type entitySlot struct {
	generation uint32
	alive      bool
	linkings   EntityLinkings
}

// EntityAllocator issues generational entity handles and tracks each live
// entity's linkings into archetype storage. Freed slots are reused LIFO.
type EntityAllocator struct {
	slots []entitySlot
	free  []uint32
	live  int
}

// NewEntityAllocator creates an allocator with room for capacity slots before growing.
func NewEntityAllocator(capacity int) *EntityAllocator {
	return &EntityAllocator{
		slots: make([]entitySlot, 0, capacity),
	}
}

// Allocate returns a fresh handle, reusing a freed slot when one is available.
// The new entity is linked to row 0 of the empty archetype until the caller relinks it.
func (a *EntityAllocator) Allocate() EntityId {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		if len(a.slots) >= math.MaxUint32 {
			panic("ecs: entity slot space exhausted")
		}
		index = uint32(len(a.slots))
		a.slots = append(a.slots, entitySlot{generation: 1})
	}

	slot := &a.slots[index]
	slot.alive = true
	slot.linkings = EntityLinkings{}
	a.live++
	return NewEntityId(index, slot.generation)
}

// Free invalidates id and returns the linkings it had, so storage can compact the row.
// Freeing bumps the slot generation, which makes every copy of id stale.
func (a *EntityAllocator) Free(id EntityId) (EntityLinkings, error) {
	slot, ok := a.slot(id)
	if !ok {
		return EntityLinkings{}, fmt.Errorf("%w: %s", ErrStaleHandle, id)
	}

	linkings := slot.linkings
	slot.alive = false
	slot.linkings = EntityLinkings{}
	slot.generation++
	if slot.generation == 0 {
		slot.generation = 1
	}
	a.free = append(a.free, id.Index())
	a.live--
	return linkings, nil
}

// Resolve returns the linkings of a live entity. It reports false for stale or unknown handles.
func (a *EntityAllocator) Resolve(id EntityId) (EntityLinkings, bool) {
	slot, ok := a.slot(id)
	if !ok {
		return EntityLinkings{}, false
	}
	return slot.linkings, true
}

// IsAlive reports whether id refers to a live entity.
func (a *EntityAllocator) IsAlive(id EntityId) bool {
	_, ok := a.slot(id)
	return ok
}

// Len returns the number of live entities.
func (a *EntityAllocator) Len() int {
	return a.live
}

// Cap returns the number of slots ever allocated, live or free.
func (a *EntityAllocator) Cap() int {
	return len(a.slots)
}

func (a *EntityAllocator) slot(id EntityId) (*entitySlot, bool) {
	index := id.Index()
	if int(index) >= len(a.slots) {
		return nil, false
	}
	slot := &a.slots[index]
	if !slot.alive || slot.generation != id.Generation() {
		return nil, false
	}
	return slot, true
}

// link overwrites the linkings of a live entity.
func (a *EntityAllocator) link(id EntityId, linkings EntityLinkings) {
	a.slots[id.Index()].linkings = linkings
}

// setRow updates only the row of a live entity, used after a swap-remove moved it.
func (a *EntityAllocator) setRow(id EntityId, row int) {
	a.slots[id.Index()].linkings.Row = row
}
