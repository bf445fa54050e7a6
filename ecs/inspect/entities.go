package inspect

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/plus3/archecs/ecs"
)

type EntityInfo struct {
	ID             ecs.EntityId
	ArchetypeID    ecs.ArchetypeId
	ComponentTypes []string
	ComponentCount int
}

// EntityFilter narrows the entity browser.
type EntityFilter struct {
	// Text matches, case-insensitively, the entity id, the archetype id or any
	// component name.
	Text string
	// Archetype, when set, keeps only entities of that archetype.
	Archetype *ecs.ArchetypeId
}

func (f EntityFilter) match(e EntityInfo) bool {
	if f.Archetype != nil && e.ArchetypeID != *f.Archetype {
		return false
	}
	if f.Text == "" {
		return true
	}
	needle := strings.ToLower(f.Text)
	return strings.Contains(e.ID.String(), needle) ||
		strings.Contains(strconv.FormatUint(uint64(e.ArchetypeID), 10), needle) ||
		strings.Contains(strings.ToLower(strings.Join(e.ComponentTypes, " ")), needle)
}

// Page is one page of the entity browser.
type Page struct {
	Entities []EntityInfo
	// Number is zero-based.
	Number int
	Pages  int
	Total  int
}

// Entities lists live entities matching filter, ordered by index, and returns
// the requested page. Out of range pages are clamped.
func (in *Inspector) Entities(filter EntityFilter, page, perPage int) Page {
	registry := in.storage.Registry()

	var all []EntityInfo
	for _, archetype := range in.storage.Archetypes() {
		names := registry.Describe(archetype.Mask())
		for _, id := range archetype.Entities() {
			info := EntityInfo{
				ID:             id,
				ArchetypeID:    archetype.ID(),
				ComponentTypes: names,
				ComponentCount: len(names),
			}
			if filter.match(info) {
				all = append(all, info)
			}
		}
	}
	slices.SortFunc(all, func(a, b EntityInfo) int {
		return int(a.ID.Index()) - int(b.ID.Index())
	})

	if perPage <= 0 {
		perPage = max(len(all), 1)
	}
	pages := max((len(all)+perPage-1)/perPage, 1)
	page = min(max(page, 0), pages-1)

	start := min(page*perPage, len(all))
	end := min(start+perPage, len(all))
	return Page{
		Entities: all[start:end],
		Number:   page,
		Pages:    pages,
		Total:    len(all),
	}
}

// WriteEntities renders one page of the entity browser.
func (in *Inspector) WriteEntities(w io.Writer, filter EntityFilter, page, perPage int) error {
	p := in.Entities(filter, page, perPage)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tARCHETYPE\tCOUNT\tCOMPONENTS")
	for _, e := range p.Entities {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", e.ID, e.ArchetypeID, e.ComponentCount, strings.Join(e.ComponentTypes, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if p.Pages > 1 {
		_, err := fmt.Fprintf(w, "Page %d / %d (%d entities)\n", p.Number+1, p.Pages, p.Total)
		return err
	}
	_, err := fmt.Fprintf(w, "Total: %d entities\n", p.Total)
	return err
}
