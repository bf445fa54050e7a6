package inspect

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/plus3/archecs/ecs"
)

type ArchetypeInfo struct {
	ID             ecs.ArchetypeId
	ComponentTypes []string
	EntityCount    int
	ComponentCount int
}

// ArchetypeColumn selects the sort key of the archetype table.
type ArchetypeColumn int

const (
	ByArchetypeID ArchetypeColumn = iota
	ByComponents
	ByComponentCount
	ByEntityCount
)

// barWidth is the width of the entity count bar at the largest archetype.
const barWidth = 20

// Archetypes lists every archetype, including empty ones, sorted by column.
// Ties keep archetype id order.
func (in *Inspector) Archetypes(column ArchetypeColumn, ascending bool) []ArchetypeInfo {
	registry := in.storage.Registry()
	archetypes := in.storage.Archetypes()

	infos := make([]ArchetypeInfo, 0, len(archetypes))
	for _, archetype := range archetypes {
		names := registry.Describe(archetype.Mask())
		infos = append(infos, ArchetypeInfo{
			ID:             archetype.ID(),
			ComponentTypes: names,
			EntityCount:    archetype.Len(),
			ComponentCount: len(names),
		})
	}

	slices.SortStableFunc(infos, func(a, b ArchetypeInfo) int {
		var c int
		switch column {
		case ByComponents:
			c = strings.Compare(strings.Join(a.ComponentTypes, ","), strings.Join(b.ComponentTypes, ","))
		case ByComponentCount:
			c = a.ComponentCount - b.ComponentCount
		case ByEntityCount:
			c = a.EntityCount - b.EntityCount
		default:
			c = int(a.ID) - int(b.ID)
		}
		if !ascending {
			c = -c
		}
		return c
	})
	return infos
}

// WriteArchetypes renders the archetype table with a bar per row scaled to the
// largest archetype.
func (in *Inspector) WriteArchetypes(w io.Writer, column ArchetypeColumn, ascending bool) error {
	infos := in.Archetypes(column, ascending)

	maxEntityCount := 0
	for _, arch := range infos {
		maxEntityCount = max(maxEntityCount, arch.EntityCount)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHETYPE\tCOMPONENTS\tCOUNT\tENTITIES\t")
	for _, arch := range infos {
		bar := ""
		if maxEntityCount > 0 {
			bar = strings.Repeat("#", arch.EntityCount*barWidth/maxEntityCount)
		}
		components := strings.Join(arch.ComponentTypes, ", ")
		if components == "" {
			components = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", arch.ID, components, arch.ComponentCount, arch.EntityCount, bar)
	}
	return tw.Flush()
}
