package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

var unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()

// Unmarshal decodes data into the value pointed to by v, requiring that the
// whole input is consumed.
func Unmarshal(data []byte, v any) error {
	rest, err := UnmarshalPartial(data, v)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return ErrTrailingBytes
	}
	return nil
}

// UnmarshalPartial decodes one value from the front of data and returns the
// unconsumed remainder.
func UnmarshalPartial(data []byte, v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, fmt.Errorf("%w: target must be a non-nil pointer", ErrUnsupported)
	}
	return decodeValue(data, rv.Elem())
}

// Uvarint reads a LEB128 unsigned integer from the front of data.
func Uvarint(data []byte) (uint64, []byte, error) {
	var (
		u     uint64
		shift uint
	)
	for i, b := range data {
		if i == 10 {
			return 0, nil, ErrBadVarint
		}
		u |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return u, data[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, ErrShortInput
}

// Varint reads a zigzag LEB128 signed integer from the front of data.
func Varint(data []byte) (int64, []byte, error) {
	u, rest, err := Uvarint(data)
	if err != nil {
		return 0, nil, err
	}
	return int64(u>>1) ^ -int64(u&1), rest, nil
}

func decodeValue(data []byte, v reflect.Value) ([]byte, error) {
	if u, ok := asUnmarshaler(v); ok {
		return u.UnmarshalPostcard(data)
	}

	switch v.Kind() {
	case reflect.Bool:
		if len(data) < 1 {
			return nil, ErrShortInput
		}
		switch data[0] {
		case 0:
			v.SetBool(false)
		case 1:
			v.SetBool(true)
		default:
			return nil, ErrBadBool
		}
		return data[1:], nil
	case reflect.Int8:
		if len(data) < 1 {
			return nil, ErrShortInput
		}
		v.SetInt(int64(int8(data[0])))
		return data[1:], nil
	case reflect.Uint8:
		if len(data) < 1 {
			return nil, ErrShortInput
		}
		v.SetUint(uint64(data[0]))
		return data[1:], nil
	case reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		i, rest, err := Varint(data)
		if err != nil {
			return nil, err
		}
		if v.OverflowInt(i) {
			return nil, ErrBadVarint
		}
		v.SetInt(i)
		return rest, nil
	case reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		u, rest, err := Uvarint(data)
		if err != nil {
			return nil, err
		}
		if v.OverflowUint(u) {
			return nil, ErrBadVarint
		}
		v.SetUint(u)
		return rest, nil
	case reflect.Float32:
		if len(data) < 4 {
			return nil, ErrShortInput
		}
		v.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(data))))
		return data[4:], nil
	case reflect.Float64:
		if len(data) < 8 {
			return nil, ErrShortInput
		}
		v.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(data)))
		return data[8:], nil
	case reflect.String:
		b, rest, err := decodeBytes(data)
		if err != nil {
			return nil, err
		}
		v.SetString(string(b))
		return rest, nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, rest, err := decodeBytes(data)
			if err != nil {
				return nil, err
			}
			out := make([]byte, len(b))
			copy(out, b)
			v.SetBytes(out)
			return rest, nil
		}
		n, rest, err := decodeCount(data)
		if err != nil {
			return nil, err
		}
		s := reflect.MakeSlice(v.Type(), 0, min(n, len(rest)+1))
		for i := 0; i < n; i++ {
			elem := reflect.New(v.Type().Elem()).Elem()
			if rest, err = decodeValue(rest, elem); err != nil {
				return nil, err
			}
			s = reflect.Append(s, elem)
		}
		v.Set(s)
		return rest, nil
	case reflect.Array:
		var err error
		for i := 0; i < v.Len(); i++ {
			if data, err = decodeValue(data, v.Index(i)); err != nil {
				return nil, err
			}
		}
		return data, nil
	case reflect.Pointer:
		if len(data) < 1 {
			return nil, ErrShortInput
		}
		switch data[0] {
		case 0:
			v.SetZero()
			return data[1:], nil
		case 1:
			elem := reflect.New(v.Type().Elem())
			rest, err := decodeValue(data[1:], elem.Elem())
			if err != nil {
				return nil, err
			}
			v.Set(elem)
			return rest, nil
		default:
			return nil, ErrBadOption
		}
	case reflect.Map:
		n, rest, err := decodeCount(data)
		if err != nil {
			return nil, err
		}
		m := reflect.MakeMapWithSize(v.Type(), min(n, len(rest)+1))
		for i := 0; i < n; i++ {
			key := reflect.New(v.Type().Key()).Elem()
			if rest, err = decodeValue(rest, key); err != nil {
				return nil, err
			}
			val := reflect.New(v.Type().Elem()).Elem()
			if rest, err = decodeValue(rest, val); err != nil {
				return nil, err
			}
			m.SetMapIndex(key, val)
		}
		v.Set(m)
		return rest, nil
	case reflect.Struct:
		t := v.Type()
		var err error
		for i := 0; i < t.NumField(); i++ {
			if skipField(t.Field(i)) {
				continue
			}
			if data, err = decodeValue(data, v.Field(i)); err != nil {
				return nil, err
			}
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, v.Type())
	}
}

func decodeBytes(data []byte) ([]byte, []byte, error) {
	n, rest, err := decodeCount(data)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) < n {
		return nil, nil, ErrShortInput
	}
	return rest[:n], rest[n:], nil
}

// decodeCount reads an element count. Allocation at the call sites is
// bounded by the bytes actually available, so a corrupt length cannot force
// a huge up-front allocation.
func decodeCount(data []byte) (int, []byte, error) {
	u, rest, err := Uvarint(data)
	if err != nil {
		return 0, nil, err
	}
	if u > uint64(len(data))*8 {
		return 0, nil, ErrShortInput
	}
	return int(u), rest, nil
}

func asUnmarshaler(v reflect.Value) (Unmarshaler, bool) {
	if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(unmarshalerType) {
		return v.Addr().Interface().(Unmarshaler), true
	}
	return nil, false
}
