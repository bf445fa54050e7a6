package ecs

import "reflect"

// System represents a behavior that operates on entities with specific components.
// User-defined systems implement this interface and can hold *Query and *Singleton
// fields for their data, as well as custom state that persists between frames.
//
// Returning an error stops the frame after the current stage.
type System interface {
	Execute(frame *UpdateFrame) error
}

// SystemFunc adapts a plain function to the System interface.
type SystemFunc func(frame *UpdateFrame) error

func (f SystemFunc) Execute(frame *UpdateFrame) error {
	return f(frame)
}

// Access is the set of component bits a system or query reads and writes.
type Access struct {
	Reads  Mask
	Writes Mask
}

// Union combines two access sets.
func (a Access) Union(other Access) Access {
	return Access{
		Reads:  a.Reads | other.Reads,
		Writes: a.Writes | other.Writes,
	}
}

// ConflictsWith reports whether a and other cannot run at the same time: one writes
// something the other reads or writes.
func (a Access) ConflictsWith(other Access) bool {
	return a.Writes.Intersects(other.Reads|other.Writes) || other.Writes.Intersects(a.Reads)
}

// IsZero reports whether the access set is empty.
func (a Access) IsZero() bool {
	return a.Reads == 0 && a.Writes == 0
}

// accessor is implemented by system fields that contribute to the system's access set.
type accessor interface {
	Access() Access
}

type systemConfig struct {
	before []string
	after  []string
	access Access
}

// SystemOption configures a system registration.
type SystemOption func(*systemConfig)

// Before orders the system ahead of the named systems.
func Before(names ...string) SystemOption {
	return func(c *systemConfig) {
		c.before = append(c.before, names...)
	}
}

// After orders the system behind the named systems.
func After(names ...string) SystemOption {
	return func(c *systemConfig) {
		c.after = append(c.after, names...)
	}
}

// WithAccess declares access the system performs outside of its fields,
// for example through Get and GetMut on the storage.
func WithAccess(access Access) SystemOption {
	return func(c *systemConfig) {
		c.access = c.access.Union(access)
	}
}

// WithQueries adds the access of queries the system does not hold as exported fields.
func WithQueries(queries ...*Query) SystemOption {
	return func(c *systemConfig) {
		for _, q := range queries {
			c.access = c.access.Union(q.Access())
		}
	}
}

// discoverAccess folds the access of every exported accessor field of a system struct.
func discoverAccess(system System) Access {
	var access Access
	if a, ok := system.(accessor); ok {
		access = access.Union(a.Access())
	}

	systemValue := reflect.ValueOf(system)
	if systemValue.Kind() == reflect.Ptr {
		if systemValue.IsNil() {
			return access
		}
		systemValue = systemValue.Elem()
	}
	if systemValue.Kind() != reflect.Struct {
		return access
	}

	systemType := systemValue.Type()
	for i := 0; i < systemValue.NumField(); i++ {
		if !systemType.Field(i).IsExported() {
			continue
		}
		field := systemValue.Field(i)
		if field.Kind() == reflect.Ptr && field.IsNil() {
			continue
		}
		if a, ok := field.Interface().(accessor); ok {
			access = access.Union(a.Access())
		}
	}
	return access
}

func systemName(system System) string {
	systemType := reflect.TypeOf(system)
	if systemType.Kind() == reflect.Ptr {
		systemType = systemType.Elem()
	}
	return systemType.Name()
}
