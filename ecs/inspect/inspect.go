// Package inspect renders the contents of an ecs.Storage as plain text: an
// archetype table, a filterable entity browser, per-entity component dumps and
// a component-type matcher. It can also edit a single component field in place.
//
// An Inspector reads storage directly. Do not use it while a query pass or a
// scheduler step is running.
package inspect

import (
	"github.com/plus3/archecs/ecs"
)

// Inspector renders views over one storage.
type Inspector struct {
	storage *ecs.Storage
	fields  *fieldCache
}

func New(storage *ecs.Storage) *Inspector {
	return &Inspector{
		storage: storage,
		fields:  newFieldCache(),
	}
}
