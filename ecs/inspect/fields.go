package inspect

import (
	"reflect"
	"sync"
)

// FieldInfo describes one exported field of a component struct. For pointer
// fields Type and Kind describe the pointee.
type FieldInfo struct {
	Name    string
	Index   int
	Type    reflect.Type
	Kind    reflect.Kind
	Pointer bool
}

// fieldCache remembers the exported fields of component types. Non-struct
// types have no fields.
type fieldCache struct {
	mu     sync.RWMutex
	fields map[reflect.Type][]FieldInfo
}

func newFieldCache() *fieldCache {
	return &fieldCache{fields: make(map[reflect.Type][]FieldInfo)}
}

func (fc *fieldCache) get(t reflect.Type) []FieldInfo {
	fc.mu.RLock()
	cached, ok := fc.fields[t]
	fc.mu.RUnlock()
	if ok {
		return cached
	}

	fields := describeFields(t)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if cached, ok := fc.fields[t]; ok {
		return cached
	}
	fc.fields[t] = fields
	return fields
}

func describeFields(t reflect.Type) []FieldInfo {
	if t.Kind() != reflect.Struct {
		return nil
	}
	var fields []FieldInfo
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		info := FieldInfo{Name: sf.Name, Index: i, Type: sf.Type}
		if sf.Type.Kind() == reflect.Ptr {
			info.Pointer = true
			info.Type = sf.Type.Elem()
		}
		info.Kind = info.Type.Kind()
		fields = append(fields, info)
	}
	return fields
}

func (fc *fieldCache) lookup(t reflect.Type, name string) (FieldInfo, bool) {
	for _, f := range fc.get(t) {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}
