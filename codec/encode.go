package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
)

var marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()

// Marshal returns the wire encoding of v.
func Marshal(v any) ([]byte, error) {
	return AppendTo(nil, v)
}

// AppendTo appends the wire encoding of v to buf.
func AppendTo(buf []byte, v any) ([]byte, error) {
	return appendValue(buf, reflect.ValueOf(v))
}

// MarshalInto serialises v into the fixed-capacity buffer buf and returns
// the number of bytes written. It fails with ErrBufferFull when the encoded
// form would exceed cap(buf); nothing beyond the capacity is retained.
func MarshalInto(buf []byte, v any) (int, error) {
	out, err := appendValue(buf[:0], reflect.ValueOf(v))
	if err != nil {
		return 0, err
	}
	if len(out) > cap(buf) {
		return 0, ErrBufferFull
	}
	return len(out), nil
}

// AppendUvarint appends the LEB128 encoding of u.
func AppendUvarint(buf []byte, u uint64) []byte {
	for u >= 0x80 {
		buf = append(buf, byte(u)|0x80)
		u >>= 7
	}
	return append(buf, byte(u))
}

// AppendVarint appends the zigzag LEB128 encoding of i.
func AppendVarint(buf []byte, i int64) []byte {
	return AppendUvarint(buf, uint64(i)<<1^uint64(i>>63))
}

func appendValue(buf []byte, v reflect.Value) ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: untyped nil", ErrUnsupported)
	}
	if m, ok := asMarshaler(v); ok {
		return m.MarshalPostcard(buf)
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case reflect.Int8:
		return append(buf, byte(v.Int())), nil
	case reflect.Uint8:
		return append(buf, byte(v.Uint())), nil
	case reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return AppendVarint(buf, v.Int()), nil
	case reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return AppendUvarint(buf, v.Uint()), nil
	case reflect.Float32:
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v.Float()))), nil
	case reflect.Float64:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Float())), nil
	case reflect.String:
		buf = AppendUvarint(buf, uint64(v.Len()))
		return append(buf, v.String()...), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf = AppendUvarint(buf, uint64(v.Len()))
			return append(buf, v.Bytes()...), nil
		}
		buf = AppendUvarint(buf, uint64(v.Len()))
		return appendElems(buf, v)
	case reflect.Array:
		return appendElems(buf, v)
	case reflect.Pointer:
		if v.IsNil() {
			return append(buf, 0), nil
		}
		return appendValue(append(buf, 1), v.Elem())
	case reflect.Map:
		return appendMap(buf, v)
	case reflect.Struct:
		return appendStruct(buf, v)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, v.Type())
	}
}

func appendElems(buf []byte, v reflect.Value) ([]byte, error) {
	var err error
	for i := 0; i < v.Len(); i++ {
		if buf, err = appendValue(buf, v.Index(i)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendStruct(buf []byte, v reflect.Value) ([]byte, error) {
	t := v.Type()
	var err error
	for i := 0; i < t.NumField(); i++ {
		if skipField(t.Field(i)) {
			continue
		}
		if buf, err = appendValue(buf, v.Field(i)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// appendMap encodes maps with keys in sorted order so that equal maps
// produce equal bytes. Only string and integer keys are supported.
func appendMap(buf []byte, v reflect.Value) ([]byte, error) {
	keys := v.MapKeys()
	switch v.Type().Key().Kind() {
	case reflect.String:
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Int() < keys[j].Int() })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Uint() < keys[j].Uint() })
	default:
		return nil, fmt.Errorf("%w: map key %s", ErrUnsupported, v.Type().Key())
	}

	buf = AppendUvarint(buf, uint64(len(keys)))
	var err error
	for _, k := range keys {
		if buf, err = appendValue(buf, k); err != nil {
			return nil, err
		}
		if buf, err = appendValue(buf, v.MapIndex(k)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func asMarshaler(v reflect.Value) (Marshaler, bool) {
	if v.Type().Implements(marshalerType) {
		return v.Interface().(Marshaler), true
	}
	if reflect.PointerTo(v.Type()).Implements(marshalerType) {
		if v.CanAddr() {
			return v.Addr().Interface().(Marshaler), true
		}
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return p.Interface().(Marshaler), true
	}
	return nil, false
}

func skipField(f reflect.StructField) bool {
	if tag, ok := f.Tag.Lookup("postcard"); ok && tag == "-" {
		return true
	}
	return !f.IsExported()
}
