package ecs

import (
	"fmt"
	"reflect"
)

type termKind uint8

const (
	termRead termKind = iota
	termWrite
	termOptional
	termWith
	termWithout
	termChanged
	termAdded
)

func (k termKind) String() string {
	switch k {
	case termRead:
		return "Read"
	case termWrite:
		return "Write"
	case termOptional:
		return "Optional"
	case termWith:
		return "With"
	case termWithout:
		return "Without"
	case termChanged:
		return "Changed"
	case termAdded:
		return "Added"
	}
	return "?"
}

// Term is one element of a query descriptor. Terms are created with Read, Write,
// Optional, With, Without, Changed and Added, and belong to exactly one Query.
type Term interface {
	base() *termBase
	// prepare caches the term's column for each matching archetype, index-aligned
	// with the query's archetype list.
	prepare(archetypes []*Archetype)
}

type termBase struct {
	kind     termKind
	typ      reflect.Type
	bit      Mask
	register func(*ComponentRegistry) (Mask, error)
	owner    *Query
}

func (t *termBase) base() *termBase {
	return t
}

func newTermBase[T any](kind termKind) termBase {
	return termBase{
		kind: kind,
		typ:  reflect.TypeFor[T](),
		register: func(r *ComponentRegistry) (Mask, error) {
			return MaskOf[T](r)
		},
	}
}

func (t *termBase) String() string {
	return fmt.Sprintf("%s[%s]", t.kind, t.typ)
}

// Row is the position of one entity inside a query pass. It is only meaningful to
// the terms of the query that produced it, and only until the pass ends.
type Row struct {
	slot   int
	index  int
	entity EntityId
	tick   uint64
}

// Entity returns the entity stored at this row.
func (r Row) Entity() EntityId {
	return r.entity
}

// Index returns the row index inside its archetype.
func (r Row) Index() int {
	return r.index
}

func typedColumns[T any](archetypes []*Archetype, bit Mask) []*genericComponentStorage[T] {
	columns := make([]*genericComponentStorage[T], len(archetypes))
	for i, a := range archetypes {
		// nil when the archetype lacks the component, which only optional terms allow
		columns[i], _ = storageAs[T](a.storage(bit))
	}
	return columns
}

// ReadTerm gives shared access to component T.
type ReadTerm[T any] struct {
	termBase
	columns []*genericComponentStorage[T]
}

// Read requires T and reads it.
func Read[T any]() *ReadTerm[T] {
	return &ReadTerm[T]{termBase: newTermBase[T](termRead)}
}

func (t *ReadTerm[T]) prepare(archetypes []*Archetype) {
	t.columns = typedColumns[T](archetypes, t.bit)
}

// Get returns a copy of the row's T.
func (t *ReadTerm[T]) Get(r Row) T {
	return t.columns[r.slot].data[r.index]
}

// WriteTerm gives exclusive access to component T.
type WriteTerm[T any] struct {
	termBase
	columns []*genericComponentStorage[T]
}

// Write requires T and may modify it.
func Write[T any]() *WriteTerm[T] {
	return &WriteTerm[T]{termBase: newTermBase[T](termWrite)}
}

func (t *WriteTerm[T]) prepare(archetypes []*Archetype) {
	t.columns = typedColumns[T](archetypes, t.bit)
}

// Get returns a pointer to the row's T and marks it changed. The pointer must not
// be kept past the end of the pass.
func (t *WriteTerm[T]) Get(r Row) *T {
	column := t.columns[r.slot]
	column.changed[r.index] = r.tick
	return &column.data[r.index]
}

// Peek returns a copy of the row's T without marking it changed.
func (t *WriteTerm[T]) Peek(r Row) T {
	return t.columns[r.slot].data[r.index]
}

// Set overwrites the row's T and marks it changed.
func (t *WriteTerm[T]) Set(r Row, value T) {
	column := t.columns[r.slot]
	column.data[r.index] = value
	column.changed[r.index] = r.tick
}

// OptionalTerm reads component T when the entity has it.
type OptionalTerm[T any] struct {
	termBase
	columns []*genericComponentStorage[T]
}

// Optional reads T if present without requiring it.
func Optional[T any]() *OptionalTerm[T] {
	return &OptionalTerm[T]{termBase: newTermBase[T](termOptional)}
}

func (t *OptionalTerm[T]) prepare(archetypes []*Archetype) {
	t.columns = typedColumns[T](archetypes, t.bit)
}

// Get returns the row's T and true, or the zero value and false when absent.
func (t *OptionalTerm[T]) Get(r Row) (T, bool) {
	column := t.columns[r.slot]
	if column == nil {
		var zero T
		return zero, false
	}
	return column.data[r.index], true
}

// FilterTerm narrows a query without giving access to component data.
type FilterTerm struct {
	termBase
	columns []iComponentStorage
}

func newFilter[T any](kind termKind) *FilterTerm {
	return &FilterTerm{termBase: newTermBase[T](kind)}
}

// With requires T without accessing it.
func With[T any]() *FilterTerm {
	return newFilter[T](termWith)
}

// Without excludes archetypes that have T.
func Without[T any]() *FilterTerm {
	return newFilter[T](termWithout)
}

// Changed requires T and keeps only rows whose T was written since the query's
// previous pass.
func Changed[T any]() *FilterTerm {
	return newFilter[T](termChanged)
}

// Added requires T and keeps only rows whose T was attached since the query's
// previous pass.
func Added[T any]() *FilterTerm {
	return newFilter[T](termAdded)
}

func (t *FilterTerm) prepare(archetypes []*Archetype) {
	if t.kind != termChanged && t.kind != termAdded {
		return
	}
	t.columns = make([]iComponentStorage, len(archetypes))
	for i, a := range archetypes {
		t.columns[i] = a.storage(t.bit)
	}
}

// accept applies a change filter to one row.
func (t *FilterTerm) accept(slot, row int, baseline uint64) bool {
	switch t.kind {
	case termChanged:
		return t.columns[slot].ChangedTick(row) > baseline
	case termAdded:
		return t.columns[slot].AddedTick(row) > baseline
	}
	return true
}
