package inspect

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/plus3/archecs/ecs"
)

var (
	// ErrUnknownField is returned by SetField when a path segment does not
	// name an exported field.
	ErrUnknownField = errors.New("unknown field")
	// ErrReadOnlyField is returned by SetField for fields it cannot parse into,
	// such as slices and maps, and for fields reached through a pointer.
	ErrReadOnlyField = errors.New("field cannot be edited")
)

// WriteEntity dumps every component of an entity with its exported fields.
// Nested structs are indented, slices and maps show their length.
func (in *Inspector) WriteEntity(w io.Writer, id ecs.EntityId) error {
	linkings, ok := in.storage.Resolve(id)
	if !ok {
		return fmt.Errorf("%w: %s", ecs.ErrStaleHandle, id)
	}
	archetype := in.storage.Archetype(linkings.Archetype)

	var b strings.Builder
	fmt.Fprintf(&b, "Entity %s (archetype %d)\n", id, linkings.Archetype)
	for _, compType := range archetype.Types() {
		component := in.storage.GetComponent(id, compType)
		if component == nil {
			continue
		}
		val := reflect.ValueOf(component).Elem()
		if compType.Kind() != reflect.Struct {
			fmt.Fprintf(&b, "  %s: %v\n", compType.Name(), val.Interface())
			continue
		}
		fmt.Fprintf(&b, "  %s\n", compType.Name())
		in.writeFields(&b, val, 2)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (in *Inspector) writeFields(b *strings.Builder, val reflect.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, field := range in.fields.get(val.Type()) {
		fieldVal := val.Field(field.Index)
		if field.Pointer {
			if fieldVal.IsNil() {
				fmt.Fprintf(b, "%s%s: nil\n", indent, field.Name)
				continue
			}
			fieldVal = fieldVal.Elem()
		}

		switch field.Kind {
		case reflect.Struct:
			fmt.Fprintf(b, "%s%s\n", indent, field.Name)
			in.writeFields(b, fieldVal, depth+1)
		case reflect.Slice, reflect.Array:
			fmt.Fprintf(b, "%s%s: [%d items]\n", indent, field.Name, fieldVal.Len())
		case reflect.Map:
			fmt.Fprintf(b, "%s%s: map[%d items]\n", indent, field.Name, fieldVal.Len())
		default:
			fmt.Fprintf(b, "%s%s: %v\n", indent, field.Name, fieldVal.Interface())
		}
	}
}

// SetField parses value into one field of an entity's component and writes the
// component back, which marks it changed. path names the field, with dots for
// nested structs ("Pos.X"). An empty path sets a non-struct component itself.
// Fields behind pointers are read-only.
func (in *Inspector) SetField(id ecs.EntityId, compType reflect.Type, path, value string) error {
	component := in.storage.GetComponent(id, compType)
	if component == nil {
		if !in.storage.IsAlive(id) {
			return fmt.Errorf("%w: %s", ecs.ErrStaleHandle, id)
		}
		return fmt.Errorf("%w: %s on %s", ecs.ErrMissingComponent, compType, id)
	}

	// edit a copy so a parse error leaves the component untouched
	updated := reflect.New(compType).Elem()
	updated.Set(reflect.ValueOf(component).Elem())

	target := updated
	if path != "" {
		for _, name := range strings.Split(path, ".") {
			// the pointee is shared with the stored component
			if target.Kind() == reflect.Ptr {
				return fmt.Errorf("%w: %s is behind a pointer", ErrReadOnlyField, name)
			}
			if target.Kind() != reflect.Struct {
				return fmt.Errorf("%w: %s in %s", ErrUnknownField, name, compType)
			}
			field, ok := in.fields.lookup(target.Type(), name)
			if !ok {
				return fmt.Errorf("%w: %s in %s", ErrUnknownField, name, compType)
			}
			target = target.Field(field.Index)
		}
	}

	if err := setValue(target, value); err != nil {
		label := compType.Name()
		if path != "" {
			label += "." + path
		}
		return fmt.Errorf("%s: %w", label, err)
	}
	_, err := in.storage.Insert(id, updated.Interface())
	return err
}

func setValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return ErrReadOnlyField
	}

	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(v)
	case reflect.String:
		field.SetString(value)
	default:
		return fmt.Errorf("%w: %s", ErrReadOnlyField, field.Kind())
	}
	return nil
}
