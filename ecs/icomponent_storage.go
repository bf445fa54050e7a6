package ecs

import "reflect"

// iComponentStorage is a type-erased, densely packed column of one component type.
// Rows are index-aligned with the owning archetype's entity list. Each row also
// carries the tick it was added at and the tick it was last written at.
type iComponentStorage interface {
	Type() reflect.Type
	Len() int

	// AppendZero pushes a zero value stamped as added and changed at tick.
	AppendZero(tick uint64)
	// Append pushes item (a T or *T) stamped as added and changed at tick.
	Append(item any, tick uint64) error
	// Set overwrites row with item and stamps it changed at tick.
	Set(row int, item any, tick uint64) error

	// Get returns a *T pointing into the column.
	Get(row int) any
	// Value returns a copy of the row's value as a T.
	Value(row int) any

	// SwapRemove moves the last row into row and shrinks the column by one.
	SwapRemove(row int)
	// MoveTo appends row (value and ticks) to dst, then swap-removes it here.
	// dst must hold the same component type.
	MoveTo(row int, dst iComponentStorage)
	// Clear drops every row but keeps the capacity.
	Clear()

	AddedTick(row int) uint64
	ChangedTick(row int) uint64
	MarkChanged(row int, tick uint64)

	// New returns an empty column of the same component type.
	New() iComponentStorage
}
