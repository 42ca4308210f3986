package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	deriveMu    sync.Mutex
	deriveCache = map[reflect.Type]*NamedType{}

	schemerType = reflect.TypeOf((*Schemer)(nil)).Elem()
)

// Of derives the schema of v's dynamic type. See OfType.
func Of(v any) (*NamedType, error) {
	return OfType(reflect.TypeOf(v))
}

// OfType derives the schema tree for a Go type. Structs map to named-field
// struct nodes in declared order, pointers to options, slices to sequences,
// arrays to fixed tuples of their element. Types implementing Schemer are
// taken verbatim. Derivation is cached per type.
func OfType(t reflect.Type) (*NamedType, error) {
	if t == nil {
		return nil, fmt.Errorf("schema: nil type")
	}
	deriveMu.Lock()
	defer deriveMu.Unlock()
	return ofType(t, map[reflect.Type]bool{})
}

func ofType(t reflect.Type, seen map[reflect.Type]bool) (*NamedType, error) {
	if nt, ok := deriveCache[t]; ok {
		return nt, nil
	}
	if seen[t] {
		return nil, fmt.Errorf("schema: recursive type %s", t)
	}
	seen[t] = true
	defer delete(seen, t)

	if t.Implements(schemerType) {
		nt := reflect.New(t).Elem().Interface().(Schemer).PostcardSchema()
		deriveCache[t] = nt
		return nt, nil
	}
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(schemerType) {
		nt := reflect.New(t).Interface().(Schemer).PostcardSchema()
		deriveCache[t] = nt
		return nt, nil
	}

	nt, err := ofKind(t, seen)
	if err != nil {
		return nil, err
	}
	deriveCache[t] = nt
	return nt, nil
}

func ofKind(t reflect.Type, seen map[reflect.Type]bool) (*NamedType, error) {
	switch t.Kind() {
	case reflect.Bool:
		return named(t, Bool), nil
	case reflect.Int8:
		return named(t, I8), nil
	case reflect.Uint8:
		return named(t, U8), nil
	case reflect.Int16:
		return named(t, I16), nil
	case reflect.Int32:
		return named(t, I32), nil
	case reflect.Int64, reflect.Int:
		return named(t, I64), nil
	case reflect.Uint16:
		return named(t, U16), nil
	case reflect.Uint32:
		return named(t, U32), nil
	case reflect.Uint64, reflect.Uint:
		return named(t, U64), nil
	case reflect.Float32:
		return named(t, F32), nil
	case reflect.Float64:
		return named(t, F64), nil
	case reflect.String:
		return named(t, String), nil
	case reflect.Pointer:
		elem, err := ofType(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return Option(elem), nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return named(t, Bytes), nil
		}
		elem, err := ofType(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return Seq(elem), nil
	case reflect.Array:
		elem, err := ofType(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		elems := make([]*NamedType, t.Len())
		for i := range elems {
			elems[i] = elem
		}
		return &NamedType{Name: typeName(t), Ty: &Ty{Kind: KindTuple, Elems: elems}}, nil
	case reflect.Map:
		key, err := ofType(t.Key(), seen)
		if err != nil {
			return nil, err
		}
		val, err := ofType(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return Map(key, val), nil
	case reflect.Struct:
		return ofStruct(t, seen)
	default:
		return nil, fmt.Errorf("schema: unsupported type %s", t)
	}
}

func ofStruct(t reflect.Type, seen map[reflect.Type]bool) (*NamedType, error) {
	if t.NumField() == 0 {
		return &NamedType{Name: typeName(t), Ty: &Ty{Kind: KindUnitStruct}}, nil
	}
	fields := make([]NamedValue, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, skip := fieldName(f)
		if skip {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("schema: unexported field %s.%s", t, f.Name)
		}
		ft, err := ofType(f.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s.%s: %w", t, f.Name, err)
		}
		fields = append(fields, NamedValue{Name: name, Ty: ft})
	}
	if len(fields) == 0 {
		return &NamedType{Name: typeName(t), Ty: &Ty{Kind: KindUnitStruct}}, nil
	}
	return &NamedType{Name: typeName(t), Ty: &Ty{Kind: KindStruct, Fields: fields}}, nil
}

// named reuses a primitive node, keeping the declared type name when the Go
// type is a named alias of the primitive.
func named(t reflect.Type, base *NamedType) *NamedType {
	if t.Name() == "" || strings.EqualFold(t.Name(), t.Kind().String()) {
		return base
	}
	return &NamedType{Name: t.Name(), Ty: base.Ty}
}

func typeName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// fieldName resolves the wire name of a struct field from its `postcard`
// tag, falling back to the Go field name. A "-" tag skips the field.
func fieldName(f reflect.StructField) (name string, skip bool) {
	tag, ok := f.Tag.Lookup("postcard")
	if !ok {
		return f.Name, false
	}
	tag, _, _ = strings.Cut(tag, ",")
	switch tag {
	case "-":
		return "", true
	case "":
		return f.Name, false
	default:
		return tag, false
	}
}
