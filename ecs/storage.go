package ecs

import (
	"cmp"
	"fmt"
	"iter"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kamstrup/intmap"
)

// Storage is the main ECS storage. It owns the entity allocator and every archetype table,
// and performs all structural changes: spawning, despawning and migrating entities
// between archetypes.
//
// Structural changes must not run concurrently with each other or with a live query
// pass; while a pass is live they fail with ErrStorageBorrowed.
type Storage struct {
	registry   *ComponentRegistry
	entities   *EntityAllocator
	archetypes []*Archetype
	byMask     *intmap.Map[Mask, ArchetypeId]
	tick       atomic.Uint64
	borrows    borrowTable
	logger     *slog.Logger

	singletonMu sync.Mutex
	singletons  map[reflect.Type]*singletonEntry

	tracked      Mask
	removed      [MaskWidth]removalLog
	removedEpoch uint64
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithStorageLogger sets the logger used for debug output. Defaults to slog.Default().
func WithStorageLogger(logger *slog.Logger) StorageOption {
	return func(s *Storage) {
		s.logger = logger
	}
}

// WithEntityCapacity pre-sizes the entity allocator.
func WithEntityCapacity(capacity int) StorageOption {
	return func(s *Storage) {
		s.entities = NewEntityAllocator(capacity)
	}
}

// NewStorage creates a new ECS storage system with the given component registry
func NewStorage(registry *ComponentRegistry, opts ...StorageOption) *Storage {
	s := &Storage{
		registry:   registry,
		entities:   NewEntityAllocator(256),
		byMask:     intmap.New[Mask, ArchetypeId](64),
		singletons: make(map[reflect.Type]*singletonEntry),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.getOrCreate(0); err != nil {
		panic(err) // the empty archetype has no columns and cannot fail
	}
	return s
}

// Registry returns the component registry this storage was built with.
func (s *Storage) Registry() *ComponentRegistry {
	return s.registry
}

// Tick returns the current change tick.
func (s *Storage) Tick() uint64 {
	return s.tick.Load()
}

func (s *Storage) nextTick() uint64 {
	return s.tick.Add(1)
}

func (s *Storage) checkStructural() error {
	if s.borrows.active() {
		return ErrStorageBorrowed
	}
	return nil
}

// GetOrCreateArchetype returns the archetype for exactly mask, creating an empty one
// if none exists yet.
func (s *Storage) GetOrCreateArchetype(mask Mask) (ArchetypeId, error) {
	if id, ok := s.byMask.Get(mask); ok {
		return id, nil
	}
	if err := s.checkStructural(); err != nil {
		return 0, err
	}
	a, err := s.getOrCreate(mask)
	if err != nil {
		return 0, err
	}
	return a.id, nil
}

func (s *Storage) getOrCreate(mask Mask) (*Archetype, error) {
	if id, ok := s.byMask.Get(mask); ok {
		return s.archetypes[id], nil
	}

	a, err := newArchetype(ArchetypeId(len(s.archetypes)), mask, s.registry)
	if err != nil {
		return nil, err
	}
	s.archetypes = append(s.archetypes, a)
	s.byMask.Put(mask, a.id)

	s.logger.Debug("archetype created",
		"id", a.id,
		"mask", mask,
		"components", s.registry.Describe(mask),
	)
	return a, nil
}

// Archetype returns an archetype by id, or nil.
func (s *Storage) Archetype(id ArchetypeId) *Archetype {
	if int(id) >= len(s.archetypes) {
		return nil
	}
	return s.archetypes[id]
}

// ArchetypeByMask returns the archetype for exactly mask, or nil if it does not exist.
func (s *Storage) ArchetypeByMask(mask Mask) *Archetype {
	id, ok := s.byMask.Get(mask)
	if !ok {
		return nil
	}
	return s.archetypes[id]
}

// Archetypes returns all archetypes ordered by id. The slice must not be modified.
func (s *Storage) Archetypes() []*Archetype {
	return s.archetypes
}

// Len returns the number of live entities.
func (s *Storage) Len() int {
	return s.entities.Len()
}

// Resolve returns the linkings of a live entity.
func (s *Storage) Resolve(id EntityId) (EntityLinkings, bool) {
	return s.entities.Resolve(id)
}

// IsAlive reports whether id refers to a live entity.
func (s *Storage) IsAlive(id EntityId) bool {
	return s.entities.IsAlive(id)
}

type bundleEntry struct {
	bit   Mask
	value any
}

// resolveBundle validates a bundle and computes its combined mask.
func (s *Storage) resolveBundle(components []any) (Mask, []bundleEntry, error) {
	var mask Mask
	entries := make([]bundleEntry, 0, len(components))
	for _, comp := range components {
		if comp == nil {
			return 0, nil, fmt.Errorf("%w: nil component", ErrUnknownComponent)
		}
		compType := reflect.TypeOf(comp)
		if compType.Kind() == reflect.Ptr && reflect.ValueOf(comp).IsNil() {
			return 0, nil, fmt.Errorf("%w: nil %s", ErrUnknownComponent, compType)
		}

		info, err := s.registry.lookup(compType)
		if err != nil {
			return 0, nil, err
		}
		bit := Bit(info.offset)
		if mask.Intersects(bit) {
			return 0, nil, fmt.Errorf("%w: %s", ErrDuplicateComponent, info.typ)
		}
		mask |= bit
		entries = append(entries, bundleEntry{bit: bit, value: comp})
	}
	return mask, entries, nil
}

// writeBundle stores bundle values into row. Values were validated by resolveBundle.
func writeBundle(a *Archetype, row int, entries []bundleEntry, tick uint64) {
	for _, e := range entries {
		if err := a.storage(e.bit).Set(row, e.value, tick); err != nil {
			panic(err)
		}
	}
}

// Allocate creates an entity with no components.
func (s *Storage) Allocate() (EntityId, error) {
	return s.Spawn()
}

// Spawn creates a new entity with the provided components. Components may be values
// or pointers to values; the values are copied into storage.
func (s *Storage) Spawn(components ...any) (EntityId, error) {
	if err := s.checkStructural(); err != nil {
		return 0, err
	}

	mask, entries, err := s.resolveBundle(components)
	if err != nil {
		return 0, err
	}
	archetype, err := s.getOrCreate(mask)
	if err != nil {
		return 0, err
	}

	id := s.entities.Allocate()
	tick := s.nextTick()
	row := archetype.pushEntity(id)
	for _, st := range archetype.storages {
		st.AppendZero(tick)
	}
	writeBundle(archetype, row, entries, tick)

	s.entities.link(id, EntityLinkings{
		Archetype: archetype.id,
		Mask:      mask,
		Row:       row,
	})
	return id, nil
}

// Insert attaches a bundle to a live entity. Components the entity already has are
// overwritten in place; new ones move the entity to the matching archetype.
func (s *Storage) Insert(id EntityId, components ...any) (EntityLinkings, error) {
	if err := s.checkStructural(); err != nil {
		return EntityLinkings{}, err
	}

	linkings, ok := s.entities.Resolve(id)
	if !ok {
		return EntityLinkings{}, fmt.Errorf("%w: %s", ErrStaleHandle, id)
	}
	mask, entries, err := s.resolveBundle(components)
	if err != nil {
		return EntityLinkings{}, err
	}

	tick := s.nextTick()
	if add := mask &^ linkings.Mask; add != 0 {
		target, err := s.getOrCreate(linkings.Mask | add)
		if err != nil {
			return EntityLinkings{}, err
		}
		linkings = s.move(id, linkings, target, tick)
	}

	writeBundle(s.archetypes[linkings.Archetype], linkings.Row, entries, tick)
	return linkings, nil
}

// Migrate moves an entity to the archetype with mask (current | add) &^ remove.
// Retained components keep their values and ticks, added components start as zero
// values, removed components are dropped. Migrating to the current mask is a no-op.
// The target archetype is resolved before any row moves, so on error the entity is
// left untouched.
func (s *Storage) Migrate(id EntityId, add, remove Mask) (EntityLinkings, error) {
	if err := s.checkStructural(); err != nil {
		return EntityLinkings{}, err
	}

	linkings, ok := s.entities.Resolve(id)
	if !ok {
		return EntityLinkings{}, fmt.Errorf("%w: %s", ErrStaleHandle, id)
	}

	newMask := (linkings.Mask | add) &^ remove
	if newMask == linkings.Mask {
		return linkings, nil
	}

	target, err := s.getOrCreate(newMask)
	if err != nil {
		return EntityLinkings{}, err
	}
	return s.move(id, linkings, target, s.nextTick()), nil
}

// move transfers the entity's row from its current archetype to target.
func (s *Storage) move(id EntityId, linkings EntityLinkings, target *Archetype, tick uint64) EntityLinkings {
	source := s.archetypes[linkings.Archetype]
	row := linkings.Row
	s.recordRemoved(source, row, source.mask&^target.mask)

	newRow := target.pushEntity(id)
	for offset := range source.mask.Offsets() {
		column := source.storages[source.slots[offset]]
		if dst := target.storage(Bit(offset)); dst != nil {
			column.MoveTo(row, dst)
		} else {
			column.SwapRemove(row)
		}
	}
	for offset := range (target.mask &^ source.mask).Offsets() {
		target.storages[target.slots[offset]].AppendZero(tick)
	}

	if moved, ok := source.swapRemoveEntity(row); ok {
		s.entities.setRow(moved, row)
	}

	next := EntityLinkings{
		Archetype: target.id,
		Mask:      target.mask,
		Row:       newRow,
	}
	s.entities.link(id, next)
	return next
}

// RemoveAll strips every component from a live entity and returns the removed values
// in bit order. The entity stays alive in the empty archetype.
func (s *Storage) RemoveAll(id EntityId) ([]any, error) {
	if err := s.checkStructural(); err != nil {
		return nil, err
	}

	linkings, ok := s.entities.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, id)
	}
	values := s.archetypes[linkings.Archetype].values(linkings.Row)
	if linkings.Mask != 0 {
		s.move(id, linkings, s.archetypes[EmptyArchetype], s.nextTick())
	}
	return values, nil
}

// Delete removes all data related to the entity ID and frees its handle.
func (s *Storage) Delete(id EntityId) error {
	_, err := s.despawn(id, false)
	return err
}

// Take despawns an entity and hands its component values back to the caller in bit order.
func (s *Storage) Take(id EntityId) ([]any, error) {
	return s.despawn(id, true)
}

func (s *Storage) despawn(id EntityId, keep bool) ([]any, error) {
	if err := s.checkStructural(); err != nil {
		return nil, err
	}

	linkings, ok := s.entities.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, id)
	}

	archetype := s.archetypes[linkings.Archetype]
	var values []any
	if keep {
		values = archetype.values(linkings.Row)
	}
	s.recordRemoved(archetype, linkings.Row, archetype.mask)
	if moved, ok := archetype.swapRemove(linkings.Row); ok {
		s.entities.setRow(moved, linkings.Row)
	}
	if _, err := s.entities.Free(id); err != nil {
		return nil, err
	}
	return values, nil
}

// SpawnBatch creates one entity per bundle and returns their ids in bundle order.
// Every bundle is validated before anything is spawned, so on error no entity is
// created. The whole batch shares one change tick.
func (s *Storage) SpawnBatch(bundles [][]any) ([]EntityId, error) {
	if err := s.checkStructural(); err != nil {
		return nil, err
	}

	type prepared struct {
		archetype *Archetype
		entries   []bundleEntry
	}
	batch := make([]prepared, len(bundles))
	for i, bundle := range bundles {
		mask, entries, err := s.resolveBundle(bundle)
		if err != nil {
			return nil, fmt.Errorf("bundle %d: %w", i, err)
		}
		archetype, err := s.getOrCreate(mask)
		if err != nil {
			return nil, fmt.Errorf("bundle %d: %w", i, err)
		}
		batch[i] = prepared{archetype: archetype, entries: entries}
	}

	ids := make([]EntityId, len(batch))
	tick := s.nextTick()
	for i, p := range batch {
		id := s.entities.Allocate()
		row := p.archetype.pushEntity(id)
		for _, st := range p.archetype.storages {
			st.AppendZero(tick)
		}
		writeBundle(p.archetype, row, p.entries, tick)
		s.entities.link(id, EntityLinkings{
			Archetype: p.archetype.id,
			Mask:      p.archetype.mask,
			Row:       row,
		})
		ids[i] = id
	}
	return ids, nil
}

// DeleteBatch despawns every entity in ids. Handles are checked up front: if any is
// stale nothing is deleted. Repeated ids are deleted once. Entities are grouped by
// archetype, and an archetype losing all of its rows is cleared in one go.
func (s *Storage) DeleteBatch(ids []EntityId) error {
	if err := s.checkStructural(); err != nil {
		return err
	}

	type target struct {
		id       EntityId
		linkings EntityLinkings
	}
	targets := make([]target, 0, len(ids))
	for _, id := range ids {
		linkings, ok := s.entities.Resolve(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrStaleHandle, id)
		}
		targets = append(targets, target{id: id, linkings: linkings})
	}

	// by archetype, then by descending row so swap-removes never move a pending row
	slices.SortFunc(targets, func(a, b target) int {
		if c := cmp.Compare(a.linkings.Archetype, b.linkings.Archetype); c != 0 {
			return c
		}
		return cmp.Compare(b.linkings.Row, a.linkings.Row)
	})
	targets = slices.CompactFunc(targets, func(a, b target) bool {
		return a.id == b.id
	})

	for group := range chunkByArchetype(targets, func(t target) ArchetypeId { return t.linkings.Archetype }) {
		archetype := s.archetypes[group[0].linkings.Archetype]
		if len(group) == archetype.Len() {
			for row := range archetype.Len() {
				s.recordRemoved(archetype, row, archetype.mask)
			}
			archetype.clear()
		} else {
			for _, t := range group {
				s.recordRemoved(archetype, t.linkings.Row, archetype.mask)
				if moved, ok := archetype.swapRemove(t.linkings.Row); ok {
					s.entities.setRow(moved, t.linkings.Row)
				}
			}
		}
		for _, t := range group {
			if _, err := s.entities.Free(t.id); err != nil {
				return err
			}
		}
	}
	return nil
}

// chunkByArchetype yields runs of consecutive items sharing an archetype.
func chunkByArchetype[E any](items []E, key func(E) ArchetypeId) iter.Seq[[]E] {
	return func(yield func([]E) bool) {
		for start := 0; start < len(items); {
			end := start + 1
			for end < len(items) && key(items[end]) == key(items[start]) {
				end++
			}
			if !yield(items[start:end]) {
				return
			}
			start = end
		}
	}
}

// AddComponent attaches one component, see Insert.
func (s *Storage) AddComponent(id EntityId, component any) error {
	_, err := s.Insert(id, component)
	return err
}

// RemoveComponents detaches the given component types. Types the entity does not
// have are ignored, including types that were never registered.
func (s *Storage) RemoveComponents(id EntityId, types ...reflect.Type) error {
	var remove Mask
	for _, t := range types {
		if bit, err := s.registry.MaskOfType(t); err == nil {
			remove |= bit
		}
	}
	_, err := s.Migrate(id, 0, remove)
	return err
}

// GetComponent returns a pointer to the component of the given type, or nil if the
// entity is stale or lacks it. Writes through the pointer are not change-tracked.
func (s *Storage) GetComponent(id EntityId, compType reflect.Type) any {
	linkings, ok := s.entities.Resolve(id)
	if !ok {
		return nil
	}
	return s.archetypes[linkings.Archetype].GetComponent(linkings.Row, compType)
}

// HasComponent checks if an entity has a specific component type
func (s *Storage) HasComponent(id EntityId, compType reflect.Type) bool {
	linkings, ok := s.entities.Resolve(id)
	if !ok {
		return false
	}
	bit, err := s.registry.MaskOfType(compType)
	if err != nil {
		return false
	}
	return linkings.Mask.Contains(bit)
}

func columnOf[T any](s *Storage, id EntityId) (*genericComponentStorage[T], int, error) {
	linkings, ok := s.entities.Resolve(id)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrStaleHandle, id)
	}
	t := reflect.TypeFor[T]()
	bit, err := s.registry.MaskOfType(t)
	if err != nil || !linkings.Mask.Contains(bit) {
		return nil, 0, fmt.Errorf("%w: %s on %s", ErrMissingComponent, t, id)
	}
	column, ok := storageAs[T](s.archetypes[linkings.Archetype].storage(bit))
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s on %s", ErrMissingComponent, t, id)
	}
	return column, linkings.Row, nil
}

// Get returns a copy of the entity's T component.
func Get[T any](s *Storage, id EntityId) (T, error) {
	column, row, err := columnOf[T](s, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return column.data[row], nil
}

// GetMut returns a pointer to the entity's T component and marks it changed.
// The pointer is invalidated by the next structural change.
func GetMut[T any](s *Storage, id EntityId) (*T, error) {
	column, row, err := columnOf[T](s, id)
	if err != nil {
		return nil, err
	}
	column.MarkChanged(row, s.nextTick())
	return &column.data[row], nil
}

// Set overwrites the entity's existing T component and marks it changed.
func Set[T any](s *Storage, id EntityId, value T) error {
	column, row, err := columnOf[T](s, id)
	if err != nil {
		return err
	}
	column.data[row] = value
	column.MarkChanged(row, s.nextTick())
	return nil
}

// Has reports whether the entity is alive and has a T component.
func Has[T any](s *Storage, id EntityId) bool {
	return s.HasComponent(id, reflect.TypeFor[T]())
}

// Add attaches value to the entity, registering T on first use.
func Add[T any](s *Storage, id EntityId, value T) error {
	if _, err := MaskOf[T](s.registry); err != nil {
		return err
	}
	_, err := s.Insert(id, value)
	return err
}

// Remove detaches T from the entity. Removing a component the entity lacks is a no-op.
func Remove[T any](s *Storage, id EntityId) error {
	bit, err := s.registry.MaskOfType(reflect.TypeFor[T]())
	if err != nil {
		if !s.IsAlive(id) {
			return fmt.Errorf("%w: %s", ErrStaleHandle, id)
		}
		return nil
	}
	_, err = s.Migrate(id, 0, bit)
	return err
}
