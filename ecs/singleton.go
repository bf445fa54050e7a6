package ecs

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// singletonEntry holds the single *T instance of a singleton type.
type singletonEntry struct {
	typ   reflect.Type
	bit   Mask
	value any
}

// Singleton provides efficient access to a single component instance
// that is not associated with any entity. Use this for global state,
// configuration, or other singleton data.
//
// A Singleton held as an exported system field counts as a write of T
// for scheduling, so two systems using the same singleton never share a stage.
type Singleton[T any] struct {
	storage *Storage
	bit     Mask
	ptr     *T
}

// NewSingleton returns the accessor for T's singleton. If the singleton does not
// exist yet it is created from initializer, or the zero value. T is registered
// with the storage's registry so the singleton takes part in conflict detection.
func NewSingleton[T any](storage *Storage, initializer ...T) (*Singleton[T], error) {
	bit, err := MaskOf[T](storage.registry)
	if err != nil {
		return nil, err
	}

	storage.singletonMu.Lock()
	defer storage.singletonMu.Unlock()

	t := reflect.TypeFor[T]()
	entry, ok := storage.singletons[t]
	if !ok {
		value := new(T)
		if len(initializer) > 0 {
			*value = initializer[0]
		}
		entry = &singletonEntry{typ: t, bit: bit, value: value}
		storage.singletons[t] = entry
	}

	ptr, ok := entry.value.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: singleton %s holds %T", ErrInvalidComponentType, t, entry.value)
	}
	return &Singleton[T]{storage: storage, bit: bit, ptr: ptr}, nil
}

// MustSingleton is NewSingleton that panics on error.
func MustSingleton[T any](storage *Storage, initializer ...T) *Singleton[T] {
	s, err := NewSingleton(storage, initializer...)
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns a pointer to the singleton value. It is nil only on a zero Singleton.
func (s *Singleton[T]) Get() *T {
	return s.ptr
}

// Set replaces the singleton value.
func (s *Singleton[T]) Set(value T) {
	*s.ptr = value
}

// Exists reports whether the accessor is bound to a storage.
func (s *Singleton[T]) Exists() bool {
	return s != nil && s.ptr != nil
}

// Access reports the singleton as a write of T.
func (s *Singleton[T]) Access() Access {
	return Access{Writes: s.bit}
}

// HasSingleton reports whether a singleton of type T has been created.
func HasSingleton[T any](storage *Storage) bool {
	storage.singletonMu.Lock()
	defer storage.singletonMu.Unlock()
	_, ok := storage.singletons[reflect.TypeFor[T]()]
	return ok
}

// Singletons returns the types of every singleton in the storage, sorted by name.
func (s *Storage) Singletons() []reflect.Type {
	s.singletonMu.Lock()
	defer s.singletonMu.Unlock()
	out := make([]reflect.Type, 0, len(s.singletons))
	for t := range s.singletons {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b reflect.Type) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}
