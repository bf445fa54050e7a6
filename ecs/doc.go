// Package ecs is an archetype-based entity component system.
//
// Entities are generational handles. Each distinct set of component types is an
// archetype that stores its components in dense columns, one per type, and entities
// move between archetypes as components are attached and detached.
//
// Queries are built from terms (Read, Write, Optional, With, Without, Changed, Added)
// and validated when they are constructed. While a query pass is live its component
// columns are borrowed: conflicting passes fail, and structural changes to the storage
// return ErrStorageBorrowed until the pass ends.
//
// The Scheduler orders systems by before/after hints and groups systems whose
// component access does not conflict into stages that run in parallel. Structural
// changes requested by systems go through Commands and are applied between stages.
package ecs
