package ecs

import (
	"errors"
	"reflect"
)

var (
	// ErrStaleHandle is returned when an EntityId no longer refers to a live entity.
	ErrStaleHandle = errors.New("ecs: stale entity handle")
	// ErrMissingComponent is returned when a live entity does not carry the requested component.
	ErrMissingComponent = errors.New("ecs: missing component")
	// ErrUnknownComponent is returned for component types or bits that were never registered.
	ErrUnknownComponent = errors.New("ecs: component type not registered")
	// ErrInvalidComponentType is returned when registering pointer, map, channel or function types.
	ErrInvalidComponentType = errors.New("ecs: invalid component type")
	// ErrDuplicateComponent is returned when a bundle carries the same component type twice.
	ErrDuplicateComponent = errors.New("ecs: duplicate component in bundle")
	// ErrRegistryCapacityExceeded is returned when more than MaskWidth component types are registered.
	ErrRegistryCapacityExceeded = errors.New("ecs: component registry capacity exceeded")
	// ErrStorageBorrowed is returned by structural operations while a query pass is live.
	ErrStorageBorrowed = errors.New("ecs: storage is borrowed by a live query")

	// ErrQueryConstruction matches every *QueryError.
	ErrQueryConstruction = errors.New("ecs: invalid query")
	// ErrMultipleMutableAccess: the same component is written twice.
	ErrMultipleMutableAccess = errors.New("ecs: multiple mutable access")
	// ErrSimultaneousMutRefAccess: a component is written and read by the same query.
	ErrSimultaneousMutRefAccess = errors.New("ecs: simultaneous mutable and shared access")
	// ErrMutableAccessWhilstView: a mutating pass and a read-only pass overlap.
	ErrMutableAccessWhilstView = errors.New("ecs: mutable access whilst viewed")
	// ErrConflictingFilter: a component is both required and excluded.
	ErrConflictingFilter = errors.New("ecs: conflicting query filters")

	// ErrCyclicDependency is returned when system ordering hints form a cycle.
	ErrCyclicDependency = errors.New("ecs: cyclic system dependency")
	// ErrUnknownSystem is returned when an ordering hint names an unregistered system.
	ErrUnknownSystem = errors.New("ecs: unknown system")
	// ErrDuplicateSystem is returned when two systems are registered under the same name.
	ErrDuplicateSystem = errors.New("ecs: duplicate system name")
)

// QueryError describes an access-rule violation detected while building a query
// or while starting a pass over it.
type QueryError struct {
	Kind      error
	Component reflect.Type
}

func (e *QueryError) Error() string {
	if e.Component == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + " on " + e.Component.String()
}

// Unwrap exposes both the specific kind and ErrQueryConstruction to errors.Is.
func (e *QueryError) Unwrap() []error {
	return []error{e.Kind, ErrQueryConstruction}
}

func newQueryError(kind error, typ reflect.Type) *QueryError {
	return &QueryError{Kind: kind, Component: typ}
}
