package ecs

import (
	"fmt"
	"iter"
	"reflect"
)

// Archetype stores every entity that has exactly the component set described by its mask.
// Each component type gets one densely packed column; row i of every column and
// entities[i] belong to the same entity.
type Archetype struct {
	id       ArchetypeId
	mask     Mask
	types    []reflect.Type
	storages []iComponentStorage
	// slots maps a bit offset to its column index, or -1.
	slots    [MaskWidth]int8
	entities []EntityId
}

// newArchetype creates an empty archetype for mask. Every bit of mask must be registered.
func newArchetype(id ArchetypeId, mask Mask, registry *ComponentRegistry) (*Archetype, error) {
	a := &Archetype{
		id:       id,
		mask:     mask,
		types:    make([]reflect.Type, 0, mask.Count()),
		storages: make([]iComponentStorage, 0, mask.Count()),
	}
	for i := range a.slots {
		a.slots[i] = -1
	}

	for offset := range mask.Offsets() {
		info := registry.infoAt(offset)
		if info == nil {
			return nil, fmt.Errorf("%w: bit %d of %s", ErrUnknownComponent, offset, mask)
		}
		a.slots[offset] = int8(len(a.storages))
		a.types = append(a.types, info.typ)
		a.storages = append(a.storages, info.factory())
	}

	return a, nil
}

// ID returns the archetype's unique identifier
func (a *Archetype) ID() ArchetypeId {
	return a.id
}

// Mask returns the component set of this archetype.
func (a *Archetype) Mask() Mask {
	return a.mask
}

// Types returns the component types of this archetype in bit order.
func (a *Archetype) Types() []reflect.Type {
	return a.types
}

// Len returns the number of rows (entities).
func (a *Archetype) Len() int {
	return len(a.entities)
}

// Entities returns the entities in row order. The slice must not be modified.
func (a *Archetype) Entities() []EntityId {
	return a.entities
}

// HasComponent checks if this archetype has the given component type
func (a *Archetype) HasComponent(compType reflect.Type) bool {
	for _, typ := range a.types {
		if typ == compType {
			return true
		}
	}
	return false
}

// storage returns the column for a unit mask, or nil if the archetype lacks it.
func (a *Archetype) storage(bit Mask) iComponentStorage {
	offset := bit.Offset()
	if offset < 0 {
		return nil
	}
	idx := a.slots[offset]
	if idx < 0 {
		return nil
	}
	return a.storages[idx]
}

func (a *Archetype) storageForType(t reflect.Type) iComponentStorage {
	for idx, typ := range a.types {
		if typ == t {
			return a.storages[idx]
		}
	}
	return nil
}

// GetComponent returns a pointer to the component of the given type at row,
// or nil if the archetype does not have that type.
func (a *Archetype) GetComponent(row int, compType reflect.Type) any {
	if row < 0 || row >= len(a.entities) {
		return nil
	}
	s := a.storageForType(compType)
	if s == nil {
		return nil
	}
	return s.Get(row)
}

// pushEntity appends an entity row. The caller is responsible for pushing one
// value onto every column.
func (a *Archetype) pushEntity(id EntityId) int {
	a.entities = append(a.entities, id)
	return len(a.entities) - 1
}

// swapRemoveEntity removes row from the entity list by moving the last row into it.
// It returns the entity that now occupies row, if any. Columns are not touched.
func (a *Archetype) swapRemoveEntity(row int) (EntityId, bool) {
	last := len(a.entities) - 1
	moved := a.entities[last]
	a.entities[row] = moved
	a.entities = a.entities[:last]
	if row == last {
		return 0, false
	}
	return moved, true
}

// swapRemove drops row from every column and from the entity list.
func (a *Archetype) swapRemove(row int) (EntityId, bool) {
	for _, s := range a.storages {
		s.SwapRemove(row)
	}
	return a.swapRemoveEntity(row)
}

// clear drops every row of the archetype.
func (a *Archetype) clear() {
	for _, s := range a.storages {
		s.Clear()
	}
	a.entities = a.entities[:0]
}

// values returns copies of every component value at row, in bit order.
func (a *Archetype) values(row int) []any {
	out := make([]any, len(a.storages))
	for i, s := range a.storages {
		out[i] = s.Value(row)
	}
	return out
}

// Rows iterates over row indices together with their entity.
func (a *Archetype) Rows() iter.Seq2[int, EntityId] {
	return func(yield func(int, EntityId) bool) {
		for row, id := range a.entities {
			if !yield(row, id) {
				return
			}
		}
	}
}
