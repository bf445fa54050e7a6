package ecs

import (
	"fmt"
	"reflect"
	"sync"
)

// componentInfo records everything the registry knows about one component type.
type componentInfo struct {
	typ     reflect.Type
	name    string
	offset  int
	factory func() iComponentStorage
}

// ComponentOption customises a component registration.
type ComponentOption func(*componentInfo)

// WithName overrides the display name used in stats and error messages.
func WithName(name string) ComponentOption {
	return func(info *componentInfo) {
		info.name = name
	}
}

// ComponentRegistry assigns each component type a stable bit in the Mask.
// Each Storage is built on a registry, and several storages may share one.
// Bits are handed out in registration order and never reused.
type ComponentRegistry struct {
	mu       sync.RWMutex
	byType   map[reflect.Type]*componentInfo
	byOffset [MaskWidth]*componentInfo
	count    int
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		byType: make(map[reflect.Type]*componentInfo),
	}
}

// RegisterComponent registers T and returns its mask. Registering the same type again
// returns the same mask. This is meant to run once at startup: it panics when the
// registry is full or T is not a valid component type.
func RegisterComponent[T any](r *ComponentRegistry, opts ...ComponentOption) Mask {
	mask, err := register[T](r, opts...)
	if err != nil {
		panic(err)
	}
	return mask
}

// MaskOf returns the mask of T, registering T on first use.
func MaskOf[T any](r *ComponentRegistry) (Mask, error) {
	return register[T](r)
}

func register[T any](r *ComponentRegistry, opts ...ComponentOption) (Mask, error) {
	t := reflect.TypeFor[T]()

	r.mu.RLock()
	info, ok := r.byType[t]
	r.mu.RUnlock()
	if ok && len(opts) == 0 {
		return Bit(info.offset), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.byType[t]; ok {
		for _, opt := range opts {
			opt(info)
		}
		return Bit(info.offset), nil
	}

	if err := validateComponentType(t); err != nil {
		return 0, err
	}
	if r.count >= MaskWidth {
		return 0, fmt.Errorf("%w: cannot register %s, all %d bits are taken", ErrRegistryCapacityExceeded, t, MaskWidth)
	}

	info = &componentInfo{
		typ:    t,
		name:   displayName(t),
		offset: r.count,
		factory: func() iComponentStorage {
			return &genericComponentStorage[T]{}
		},
	}
	for _, opt := range opts {
		opt(info)
	}

	r.byType[t] = info
	r.byOffset[info.offset] = info
	r.count++
	return Bit(info.offset), nil
}

// displayName is the bare type name, falling back to the full type string for
// unnamed types such as []int.
func displayName(t reflect.Type) string {
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

func validateComponentType(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return fmt.Errorf("%w: %s (components cannot be pointers, maps, channels, functions or interfaces)", ErrInvalidComponentType, t)
	}
	return nil
}

// MaskOfType returns the mask of an already registered type.
// Pointer types resolve to their element type.
func (r *ComponentRegistry) MaskOfType(t reflect.Type) (Mask, error) {
	info, err := r.lookup(t)
	if err != nil {
		return 0, err
	}
	return Bit(info.offset), nil
}

func (r *ComponentRegistry) lookup(t reflect.Type) (*componentInfo, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrUnknownComponent)
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	info, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, t)
	}
	return info, nil
}

func (r *ComponentRegistry) infoAt(offset int) *componentInfo {
	if offset < 0 || offset >= MaskWidth {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byOffset[offset]
}

// Len returns the number of registered component types.
func (r *ComponentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// TypeAt returns the type registered at a bit offset, or nil.
func (r *ComponentRegistry) TypeAt(offset int) reflect.Type {
	if info := r.infoAt(offset); info != nil {
		return info.typ
	}
	return nil
}

// Name returns the display name of the type at a bit offset, or "".
func (r *ComponentRegistry) Name(offset int) string {
	if info := r.infoAt(offset); info != nil {
		return info.name
	}
	return ""
}

// Describe returns the component names of every bit in mask, in bit order.
// Unregistered bits are rendered as "?<offset>".
func (r *ComponentRegistry) Describe(mask Mask) []string {
	names := make([]string, 0, mask.Count())
	for offset := range mask.Offsets() {
		if info := r.infoAt(offset); info != nil {
			names = append(names, info.name)
		} else {
			names = append(names, fmt.Sprintf("?%d", offset))
		}
	}
	return names
}

// genericComponentStorage is the only implementation of iComponentStorage.
// One instance exists per (archetype, component type) pair.
type genericComponentStorage[T any] struct {
	data    []T
	added   []uint64
	changed []uint64
}

// storageAs interprets an erased column as a column of T. It reports false on a
// type mismatch instead of panicking.
func storageAs[T any](s iComponentStorage) (*genericComponentStorage[T], bool) {
	cs, ok := s.(*genericComponentStorage[T])
	return cs, ok
}

func (cs *genericComponentStorage[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

func (cs *genericComponentStorage[T]) Len() int {
	return len(cs.data)
}

func (cs *genericComponentStorage[T]) AppendZero(tick uint64) {
	var zero T
	cs.push(zero, tick, tick)
}

func (cs *genericComponentStorage[T]) Append(item any, tick uint64) error {
	value, err := cs.cast(item)
	if err != nil {
		return err
	}
	cs.push(value, tick, tick)
	return nil
}

func (cs *genericComponentStorage[T]) push(value T, added, changed uint64) {
	cs.data = append(cs.data, value)
	cs.added = append(cs.added, added)
	cs.changed = append(cs.changed, changed)
}

func (cs *genericComponentStorage[T]) cast(item any) (T, error) {
	switch v := item.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: cannot store %T in column of %s", ErrUnknownComponent, item, cs.Type())
}

func (cs *genericComponentStorage[T]) Set(row int, item any, tick uint64) error {
	value, err := cs.cast(item)
	if err != nil {
		return err
	}
	cs.data[row] = value
	cs.changed[row] = tick
	return nil
}

func (cs *genericComponentStorage[T]) Get(row int) any {
	return &cs.data[row]
}

func (cs *genericComponentStorage[T]) Value(row int) any {
	return cs.data[row]
}

func (cs *genericComponentStorage[T]) SwapRemove(row int) {
	last := len(cs.data) - 1
	if row != last {
		cs.data[row] = cs.data[last]
		cs.added[row] = cs.added[last]
		cs.changed[row] = cs.changed[last]
	}
	var zero T
	cs.data[last] = zero // release references held by the vacated slot
	cs.data = cs.data[:last]
	cs.added = cs.added[:last]
	cs.changed = cs.changed[:last]
}

func (cs *genericComponentStorage[T]) MoveTo(row int, dst iComponentStorage) {
	out, ok := storageAs[T](dst)
	if !ok {
		panic(fmt.Sprintf("ecs: cannot move %s into column of %s", cs.Type(), dst.Type()))
	}
	out.push(cs.data[row], cs.added[row], cs.changed[row])
	cs.SwapRemove(row)
}

func (cs *genericComponentStorage[T]) Clear() {
	clear(cs.data)
	cs.data = cs.data[:0]
	cs.added = cs.added[:0]
	cs.changed = cs.changed[:0]
}

func (cs *genericComponentStorage[T]) AddedTick(row int) uint64 {
	return cs.added[row]
}

func (cs *genericComponentStorage[T]) ChangedTick(row int) uint64 {
	return cs.changed[row]
}

func (cs *genericComponentStorage[T]) MarkChanged(row int, tick uint64) {
	cs.changed[row] = tick
}

func (cs *genericComponentStorage[T]) New() iComponentStorage {
	return &genericComponentStorage[T]{}
}
