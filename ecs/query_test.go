package ecs_test

import (
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/plus3/archecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryMovesPositionByVelocity(t *testing.T) {
	storage := newTestStorage()
	moving := mustSpawn(t, storage, Position{X: 1}, Velocity{DX: 2})
	still := mustSpawn(t, storage, Position{X: 3})

	pos := ecs.Write[Position]()
	vel := ecs.Read[Velocity]()
	query, err := ecs.NewQuery(storage, pos, vel)
	require.NoError(t, err)

	var visited []ecs.EntityId
	for row := range query.Iter() {
		visited = append(visited, row.Entity())
		p := pos.Get(row)
		v := vel.Get(row)
		p.X += v.DX
		p.Y += v.DY
	}

	assert.Equal(t, []ecs.EntityId{moving}, visited)
	got, _ := ecs.Get[Position](storage, moving)
	assert.Equal(t, float32(3), got.X)
	got, _ = ecs.Get[Position](storage, still)
	assert.Equal(t, float32(3), got.X)
}

func TestQueryConstructionErrors(t *testing.T) {
	storage := newTestStorage()

	tests := []struct {
		name  string
		terms []ecs.Term
		kind  error
	}{
		{"write twice", []ecs.Term{ecs.Write[Position](), ecs.Write[Position]()}, ecs.ErrMultipleMutableAccess},
		{"write then read", []ecs.Term{ecs.Write[Position](), ecs.Read[Position]()}, ecs.ErrSimultaneousMutRefAccess},
		{"read then write", []ecs.Term{ecs.Read[Position](), ecs.Write[Position]()}, ecs.ErrSimultaneousMutRefAccess},
		{"optional and write", []ecs.Term{ecs.Optional[Position](), ecs.Write[Position]()}, ecs.ErrSimultaneousMutRefAccess},
		{"with and without", []ecs.Term{ecs.With[Health](), ecs.Without[Health]()}, ecs.ErrConflictingFilter},
		{"changed and without", []ecs.Term{ecs.Without[Health](), ecs.Changed[Health]()}, ecs.ErrConflictingFilter},
		{"read and without", []ecs.Term{ecs.Read[Health](), ecs.Without[Health]()}, ecs.ErrConflictingFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := ecs.NewQuery(storage, tt.terms...)
			assert.Nil(t, query)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, ecs.ErrQueryConstruction)

			var qe *ecs.QueryError
			require.True(t, errors.As(err, &qe))
			assert.Equal(t, tt.kind, qe.Kind)
		})
	}
}

func TestQueryAllowedCombinations(t *testing.T) {
	storage := newTestStorage()

	_, err := ecs.NewQuery(storage, ecs.Read[Position](), ecs.Read[Position]())
	assert.NoError(t, err, "two shared reads are fine")

	query, err := ecs.NewQuery(storage, ecs.Write[Position](), ecs.Changed[Position]())
	require.NoError(t, err)
	assert.Zero(t, query.Access().Reads, "a change filter on a written component adds no read")

	query, err = ecs.NewQuery(storage, ecs.Changed[Velocity](), ecs.Read[Position]())
	require.NoError(t, err)
	assert.Equal(t, maskOf[Velocity](t, storage)|maskOf[Position](t, storage), query.Access().Reads)
}

func TestTermBelongsToOneQuery(t *testing.T) {
	storage := newTestStorage()
	pos := ecs.Read[Position]()

	_, err := ecs.NewQuery(storage, pos)
	require.NoError(t, err)
	_, err = ecs.NewQuery(storage, pos)
	assert.ErrorIs(t, err, ecs.ErrQueryConstruction)
}

func TestQueryMatchingArchetypes(t *testing.T) {
	storage := newTestStorage()
	mustSpawn(t, storage, Position{})
	mustSpawn(t, storage, Position{}, Velocity{})
	mustSpawn(t, storage, Position{}, Velocity{}, Health{})
	mustSpawn(t, storage, Velocity{})

	query := ecs.MustQuery(storage, ecs.Read[Position](), ecs.With[Velocity](), ecs.Without[Health]())
	ids := query.MatchingArchetypes()
	require.Len(t, ids, 1)
	assert.Equal(t, maskOf[Position](t, storage)|maskOf[Velocity](t, storage), storage.Archetype(ids[0]).Mask())

	// new archetypes are picked up
	mustSpawn(t, storage, Position{}, Velocity{}, Score(1))
	assert.Len(t, query.MatchingArchetypes(), 2)
	assert.Equal(t, 2, query.Count())
	assert.Len(t, query.Entities(), 2)
	assert.True(t, slices.IsSorted(query.MatchingArchetypes()))
}

func TestQueryOptionalTerm(t *testing.T) {
	storage := newTestStorage()
	named := mustSpawn(t, storage, Position{}, Name{Value: "a"})
	mustSpawn(t, storage, Position{})

	name := ecs.Optional[Name]()
	query := ecs.MustQuery(storage, ecs.Read[Position](), name)

	found := map[ecs.EntityId]string{}
	missing := 0
	for row := range query.Iter() {
		if n, ok := name.Get(row); ok {
			found[row.Entity()] = n.Value
		} else {
			missing++
		}
	}
	assert.Equal(t, map[ecs.EntityId]string{named: "a"}, found)
	assert.Equal(t, 1, missing)
}

func TestQueryIterStopsEarly(t *testing.T) {
	storage := newTestStorage()
	for range 10 {
		mustSpawn(t, storage, Position{})
	}
	query := ecs.MustQuery(storage, ecs.Write[Position]())

	n := 0
	for range query.Iter() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)

	// borrows were released by the early break
	_, err := storage.Spawn(Position{})
	assert.NoError(t, err)
}

func TestQueryBorrowConflicts(t *testing.T) {
	storage := newTestStorage()
	mustSpawn(t, storage, Position{}, Velocity{})

	reader := ecs.MustQuery(storage, ecs.Read[Position]())
	writer := ecs.MustQuery(storage, ecs.Write[Position]())
	otherWriter := ecs.MustQuery(storage, ecs.Write[Position](), ecs.Read[Velocity]())
	velReader := ecs.MustQuery(storage, ecs.Read[Velocity]())

	for range reader.Iter() {
		err := writer.ForEach(func(ecs.Row) error { return nil })
		assert.ErrorIs(t, err, ecs.ErrMutableAccessWhilstView)

		var qe *ecs.QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, "Position", qe.Component.Name())

		assert.NoError(t, velReader.ForEach(func(ecs.Row) error { return nil }))
	}

	for range writer.Iter() {
		err := otherWriter.ForEach(func(ecs.Row) error { return nil })
		assert.ErrorIs(t, err, ecs.ErrMultipleMutableAccess)

		err = reader.ForEach(func(ecs.Row) error { return nil })
		assert.ErrorIs(t, err, ecs.ErrMutableAccessWhilstView)

		assert.Panics(t, func() {
			for range reader.Iter() {
			}
		})
	}
}

func TestQueryForEachReturnsError(t *testing.T) {
	storage := newTestStorage()
	for range 5 {
		mustSpawn(t, storage, Position{})
	}
	query := ecs.MustQuery(storage, ecs.Read[Position]())

	boom := errors.New("boom")
	calls := 0
	err := query.ForEach(func(ecs.Row) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestQueryChangeTracking(t *testing.T) {
	storage := newTestStorage()
	a := mustSpawn(t, storage, Position{}, Velocity{})
	b := mustSpawn(t, storage, Position{}, Velocity{})

	changed := ecs.MustQuery(storage, ecs.Changed[Position](), ecs.Read[Position]())
	added := ecs.MustQuery(storage, ecs.Added[Position]())
	pos := ecs.Write[Position]()
	writer := ecs.MustQuery(storage, pos)

	collect := func(q *ecs.Query) []ecs.EntityId {
		var out []ecs.EntityId
		require.NoError(t, q.ForEach(func(r ecs.Row) error {
			out = append(out, r.Entity())
			return nil
		}))
		return out
	}

	assert.ElementsMatch(t, []ecs.EntityId{a, b}, collect(changed), "fresh rows count as changed")
	assert.ElementsMatch(t, []ecs.EntityId{a, b}, collect(added))
	assert.Empty(t, collect(changed))
	assert.Empty(t, collect(added))

	for row := range writer.Iter() {
		if row.Entity() == b {
			pos.Get(row).X = 5
		} else {
			_ = pos.Peek(row)
		}
	}
	assert.Equal(t, []ecs.EntityId{b}, collect(changed))
	assert.Empty(t, collect(added))

	require.NoError(t, ecs.Set(storage, a, Position{X: 1}))
	assert.Equal(t, []ecs.EntityId{a}, collect(changed))

	// migration keeps ticks, a new entity is added
	_, err := storage.Insert(a, Health{})
	require.NoError(t, err)
	c := mustSpawn(t, storage, Position{})
	assert.Equal(t, []ecs.EntityId{c}, collect(added))

	changed.Reset()
	assert.Len(t, collect(changed), 3)
}

func TestQueryPassesAreRestartable(t *testing.T) {
	storage := newTestStorage()
	for i := range 75 {
		if i%3 == 0 {
			mustSpawn(t, storage, Position{X: float32(i)}, Velocity{})
		} else {
			mustSpawn(t, storage, Position{X: float32(i)})
		}
	}

	collect := func(q *ecs.Query, pos *ecs.ReadTerm[Position]) ([]ecs.EntityId, []Position) {
		var ids []ecs.EntityId
		var values []Position
		for row := range q.Iter() {
			ids = append(ids, row.Entity())
			values = append(values, pos.Get(row))
		}
		return ids, values
	}

	pos := ecs.Read[Position]()
	query := ecs.MustQuery(storage, pos)
	firstIDs, firstValues := collect(query, pos)
	require.Len(t, firstIDs, 75)
	require.Len(t, query.MatchingArchetypes(), 2)

	secondIDs, secondValues := collect(query, pos)
	assert.Equal(t, firstIDs, secondIDs)
	assert.Equal(t, firstValues, secondValues)

	// a query rebuilt from the same terms sees the same rows in the same order
	again := ecs.Read[Position]()
	rebuiltIDs, rebuiltValues := collect(ecs.MustQuery(storage, again), again)
	assert.Equal(t, firstIDs, rebuiltIDs)
	assert.Equal(t, firstValues, rebuiltValues)
}

func TestQueryBaselineHandoff(t *testing.T) {
	storage := newTestStorage()
	mustSpawn(t, storage, Position{})
	b := mustSpawn(t, storage, Position{})

	first := ecs.MustQuery(storage, ecs.Changed[Position]())
	assert.Zero(t, first.Baseline())
	assert.Equal(t, 2, countRows(t, first))
	assert.NotZero(t, first.Baseline())

	require.NoError(t, ecs.Set(storage, b, Position{X: 1}))

	second := ecs.MustQuery(storage, ecs.Changed[Position]())
	second.SetBaseline(first.Baseline())
	var seen []ecs.EntityId
	require.NoError(t, second.ForEach(func(r ecs.Row) error {
		seen = append(seen, r.Entity())
		return nil
	}))
	assert.Equal(t, []ecs.EntityId{b}, seen)

	second.SetBaseline(0)
	assert.Equal(t, 2, countRows(t, second), "a zero baseline sees every row")
}

func countRows(t *testing.T, q *ecs.Query) int {
	t.Helper()
	n := 0
	require.NoError(t, q.ForEach(func(ecs.Row) error {
		n++
		return nil
	}))
	return n
}

func TestQueryParForEach(t *testing.T) {
	storage := newTestStorage()
	const n = 5000
	for i := range n {
		if i%3 == 0 {
			mustSpawn(t, storage, Position{X: float32(i)}, Velocity{DX: 1})
		} else {
			mustSpawn(t, storage, Position{X: float32(i)}, Velocity{DX: 1}, Health{})
		}
	}

	pos := ecs.Write[Position]()
	vel := ecs.Read[Velocity]()
	query := ecs.MustQuery(storage, pos, vel)

	var visited atomic.Int64
	err := query.ParForEach(4, func(row ecs.Row) error {
		pos.Get(row).X += vel.Get(row).DX
		visited.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(n), visited.Load())

	assert.Equal(t, n, query.Count())

	first := storage.Archetypes()[1].Entities()[0]
	p, _ := ecs.Get[Position](storage, first)
	assert.Equal(t, float32(1), p.X)
}

func TestQueryParForEachError(t *testing.T) {
	storage := newTestStorage()
	for range 2000 {
		mustSpawn(t, storage, Position{})
	}
	query := ecs.MustQuery(storage, ecs.Read[Position]())

	boom := errors.New("boom")
	err := query.ParForEach(2, func(ecs.Row) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = storage.Spawn(Position{})
	assert.NoError(t, err, "borrows released after a failed parallel pass")
}
