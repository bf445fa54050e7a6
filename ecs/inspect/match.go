package inspect

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/plus3/archecs/ecs"
)

// ComponentTypes returns the names of every registered component type, sorted.
func (in *Inspector) ComponentTypes() []string {
	registry := in.storage.Registry()
	names := make([]string, 0, registry.Len())
	for offset := range registry.Len() {
		names = append(names, registry.Name(offset))
	}
	slices.Sort(names)
	return names
}

// MatchResult lists the archetypes holding every selected component type.
type MatchResult struct {
	Archetypes []ArchetypeInfo
	Entities   int
}

// Match finds the archetypes containing all of the named component types. Names
// are the registry display names. Unknown names fail.
func (in *Inspector) Match(names ...string) (MatchResult, error) {
	registry := in.storage.Registry()
	byName := make(map[string]reflect.Type, registry.Len())
	for offset := range registry.Len() {
		byName[registry.Name(offset)] = registry.TypeAt(offset)
	}

	var want ecs.Mask
	for _, name := range names {
		t, ok := byName[name]
		if !ok {
			return MatchResult{}, fmt.Errorf("%w: %q", ecs.ErrUnknownComponent, name)
		}
		bit, err := registry.MaskOfType(t)
		if err != nil {
			return MatchResult{}, err
		}
		want |= bit
	}

	var result MatchResult
	for _, archetype := range in.storage.Archetypes() {
		if !archetype.Mask().Contains(want) {
			continue
		}
		types := registry.Describe(archetype.Mask())
		result.Archetypes = append(result.Archetypes, ArchetypeInfo{
			ID:             archetype.ID(),
			ComponentTypes: types,
			EntityCount:    archetype.Len(),
			ComponentCount: len(types),
		})
		result.Entities += archetype.Len()
	}
	return result, nil
}
