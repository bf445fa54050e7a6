package ecs

import (
	"fmt"
	"reflect"
)

// Removal is a component value that left an entity, either because the entity was
// despawned or because the component was detached.
type Removal[T any] struct {
	Entity EntityId
	Value  T
}

// removalLog is the type-erased view of a removalBuffer.
type removalLog interface {
	record(id EntityId, column iComponentStorage, row int, epoch uint64)
	rotate(keepFrom uint64)
}

type removalBuffer[T any] struct {
	entries []Removal[T]
	// epochs is index-aligned with entries and never decreases.
	epochs []uint64
}

func (b *removalBuffer[T]) record(id EntityId, column iComponentStorage, row int, epoch uint64) {
	cs, ok := storageAs[T](column)
	if !ok {
		return
	}
	b.entries = append(b.entries, Removal[T]{Entity: id, Value: cs.data[row]})
	b.epochs = append(b.epochs, epoch)
}

func (b *removalBuffer[T]) rotate(keepFrom uint64) {
	drop := 0
	for drop < len(b.epochs) && b.epochs[drop] < keepFrom {
		drop++
	}
	if drop == 0 {
		return
	}
	kept := copy(b.entries, b.entries[drop:])
	copy(b.epochs, b.epochs[drop:])
	clear(b.entries[kept:])
	b.entries = b.entries[:kept]
	b.epochs = b.epochs[:kept]
}

// TrackRemoved starts recording T values that leave entities, registering T on
// first use. Untracked types are dropped without a copy.
func TrackRemoved[T any](s *Storage) error {
	if err := s.checkStructural(); err != nil {
		return err
	}
	bit, err := MaskOf[T](s.registry)
	if err != nil {
		return err
	}
	if s.tracked.Contains(bit) {
		return nil
	}
	s.removed[bit.Offset()] = &removalBuffer[T]{}
	s.tracked |= bit
	return nil
}

// Removed returns the T values removed during the current and the previous
// removal epoch, oldest first. The scheduler starts a new epoch on every step, so a
// system sees every removal made since its own previous run. The slice is only
// valid until the next structural change. Untracked types yield nil.
func Removed[T any](s *Storage) []Removal[T] {
	bit, err := s.registry.MaskOfType(reflect.TypeFor[T]())
	if err != nil || !s.tracked.Contains(bit) {
		return nil
	}
	buf, ok := s.removed[bit.Offset()].(*removalBuffer[T])
	if !ok {
		panic(fmt.Sprintf("ecs: removal log of %s has type %T", reflect.TypeFor[T](), s.removed[bit.Offset()]))
	}
	return buf.entries
}

// RotateRemoved starts a new removal epoch and discards removals recorded before
// the previous one.
func (s *Storage) RotateRemoved() {
	s.removedEpoch++
	for offset := range s.tracked.Offsets() {
		s.removed[offset].rotate(s.removedEpoch - 1)
	}
}

// recordRemoved copies the tracked components of mask at row into their logs.
func (s *Storage) recordRemoved(a *Archetype, row int, mask Mask) {
	mask &= s.tracked
	if mask == 0 {
		return
	}
	id := a.entities[row]
	for offset := range mask.Offsets() {
		s.removed[offset].record(id, a.storages[a.slots[offset]], row, s.removedEpoch)
	}
}
