package ecs

import (
	"context"
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"
)

// parChunkSize is the number of rows handed to one ParForEach task.
const parChunkSize = 512

// Query iterates over every entity whose archetype matches its terms.
// Matching archetypes are cached and refreshed when new archetypes appear.
//
// A Query is not safe for concurrent passes from several goroutines; ParForEach
// is the way to spread one pass over many.
type Query struct {
	storage *Storage
	terms   []Term
	filters []*FilterTerm

	required Mask
	excluded Mask
	access   Access

	cachedArchetypes   []*Archetype
	lastArchetypeCount int

	// baseline is the tick of the previous pass, used by Changed and Added filters.
	baseline uint64
}

// NewQuery validates terms and builds a query over storage. Every rule is checked
// here, before any component data is handed out:
// writing T twice, writing and reading T, and requiring and excluding T all fail
// with a *QueryError.
func NewQuery(storage *Storage, terms ...Term) (*Query, error) {
	q := &Query{
		storage:            storage,
		terms:              terms,
		lastArchetypeCount: -1,
	}

	// change filters read tick columns, which counts as shared access
	var filterReads Mask
	for _, term := range terms {
		tb := term.base()
		if tb.owner != nil && tb.owner != q {
			return nil, fmt.Errorf("%w: %s already belongs to another query", ErrQueryConstruction, tb)
		}
		bit, err := tb.register(storage.registry)
		if err != nil {
			return nil, err
		}
		tb.bit = bit

		switch tb.kind {
		case termWrite:
			if q.access.Writes.Intersects(bit) {
				return nil, newQueryError(ErrMultipleMutableAccess, tb.typ)
			}
			if q.access.Reads.Intersects(bit) {
				return nil, newQueryError(ErrSimultaneousMutRefAccess, tb.typ)
			}
			q.access.Writes |= bit
			q.required |= bit
		case termRead, termOptional:
			if q.access.Writes.Intersects(bit) {
				return nil, newQueryError(ErrSimultaneousMutRefAccess, tb.typ)
			}
			q.access.Reads |= bit
			if tb.kind == termRead {
				q.required |= bit
			}
		case termWith:
			q.required |= bit
		case termChanged, termAdded:
			q.required |= bit
			filterReads |= bit
			q.filters = append(q.filters, term.(*FilterTerm))
		case termWithout:
			q.excluded |= bit
		}
		if q.required.Intersects(q.excluded) {
			return nil, newQueryError(ErrConflictingFilter, tb.typ)
		}
	}

	q.access.Reads |= filterReads &^ q.access.Writes

	for _, term := range terms {
		term.base().owner = q
	}
	return q, nil
}

// MustQuery is NewQuery for queries known to be valid; it panics on error.
func MustQuery(storage *Storage, terms ...Term) *Query {
	q, err := NewQuery(storage, terms...)
	if err != nil {
		panic(err)
	}
	return q
}

// Access returns the component bits this query reads and writes.
func (q *Query) Access() Access {
	return q.access
}

// Reset forgets the previous pass, so the next pass sees every row as added and changed.
func (q *Query) Reset() {
	q.baseline = 0
}

// Baseline returns the tick Changed and Added filters compare against: the tick of
// the last completed pass, or whatever SetBaseline stored.
func (q *Query) Baseline() uint64 {
	return q.baseline
}

// SetBaseline makes the next pass report rows added or changed after tick. Passing
// another query's Baseline hands its position over.
func (q *Query) SetBaseline(tick uint64) {
	q.baseline = tick
}

func (q *Query) matches(a *Archetype) bool {
	return a.mask.Contains(q.required) && !a.mask.Intersects(q.excluded)
}

// refresh rebuilds the archetype cache when new archetypes have been created.
// Archetypes are never removed and cannot be created during a pass, so the
// count alone tells whether the cache is stale.
func (q *Query) refresh() {
	currentCount := len(q.storage.archetypes)
	if currentCount == q.lastArchetypeCount {
		return
	}

	q.cachedArchetypes = q.cachedArchetypes[:0]
	for _, archetype := range q.storage.archetypes {
		if q.matches(archetype) {
			q.cachedArchetypes = append(q.cachedArchetypes, archetype)
		}
	}
	for _, term := range q.terms {
		term.prepare(q.cachedArchetypes)
	}
	q.lastArchetypeCount = currentCount
}

// MatchingArchetypes returns the ids of matching archetypes in ascending order.
// Change filters do not affect matching.
func (q *Query) MatchingArchetypes() []ArchetypeId {
	q.refresh()
	ids := make([]ArchetypeId, len(q.cachedArchetypes))
	for i, a := range q.cachedArchetypes {
		ids[i] = a.id
	}
	return ids
}

// Count returns the number of rows in matching archetypes, ignoring change filters.
func (q *Query) Count() int {
	q.refresh()
	n := 0
	for _, a := range q.cachedArchetypes {
		n += a.Len()
	}
	return n
}

// Entities returns the entities of matching archetypes, ignoring change filters.
func (q *Query) Entities() []EntityId {
	q.refresh()
	out := make([]EntityId, 0, q.Count())
	for _, a := range q.cachedArchetypes {
		out = append(out, a.entities...)
	}
	return out
}

type pass struct {
	tick     uint64
	baseline uint64
}

// begin takes the pass's borrows and a fresh tick.
func (q *Query) begin() (pass, error) {
	if offset, kind := q.storage.borrows.acquire(q.access.Reads, q.access.Writes); kind != nil {
		return pass{}, newQueryError(kind, q.storage.registry.TypeAt(offset))
	}
	q.refresh()
	return pass{
		tick:     q.storage.nextTick(),
		baseline: q.baseline,
	}, nil
}

func (q *Query) end(p pass) {
	q.baseline = p.tick
	q.storage.borrows.end(q.access.Reads, q.access.Writes)
}

func (q *Query) accept(slot, row int, baseline uint64) bool {
	for _, f := range q.filters {
		if !f.accept(slot, row, baseline) {
			return false
		}
	}
	return true
}

// scan visits rows [from, to) of one cached archetype.
func (q *Query) scan(p pass, slot, from, to int, fn func(Row) bool) bool {
	entities := q.cachedArchetypes[slot].entities
	for row := from; row < to; row++ {
		if !q.accept(slot, row, p.baseline) {
			continue
		}
		if !fn(Row{slot: slot, index: row, entity: entities[row], tick: p.tick}) {
			return false
		}
	}
	return true
}

// Iter returns a lazy iterator over matching rows, archetypes in ascending id order
// and rows in storage order. Every call starts a new pass. It panics with a
// *QueryError if the pass conflicts with a live one; use ForEach to get the error.
func (q *Query) Iter() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		p, err := q.begin()
		if err != nil {
			panic(err)
		}
		defer q.end(p)

		for slot, a := range q.cachedArchetypes {
			if !q.scan(p, slot, 0, a.Len(), yield) {
				return
			}
		}
	}
}

// ForEach calls fn for every matching row and stops at the first error.
func (q *Query) ForEach(fn func(Row) error) error {
	p, err := q.begin()
	if err != nil {
		return err
	}
	defer q.end(p)

	var ferr error
	for slot, a := range q.cachedArchetypes {
		ok := q.scan(p, slot, 0, a.Len(), func(r Row) bool {
			ferr = fn(r)
			return ferr == nil
		})
		if !ok {
			return ferr
		}
	}
	return nil
}

// ParForEach is ForEach spread over up to workers goroutines. Rows are split into
// chunks that never share a row, so fn may write through Write terms without locking.
// Row order is unspecified. The first error cancels chunks that have not started.
func (q *Query) ParForEach(workers int, fn func(Row) error) error {
	p, err := q.begin()
	if err != nil {
		return err
	}
	defer q.end(p)

	g, ctx := errgroup.WithContext(context.Background())
	if workers > 0 {
		g.SetLimit(workers)
	}

	for slot, a := range q.cachedArchetypes {
		for from := 0; from < a.Len(); from += parChunkSize {
			to := min(from+parChunkSize, a.Len())
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				var ferr error
				q.scan(p, slot, from, to, func(r Row) bool {
					ferr = fn(r)
					return ferr == nil
				})
				return ferr
			})
		}
	}
	return g.Wait()
}
