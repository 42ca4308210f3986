package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

type telemetry struct {
	Seq    uint32
	Name   string
	Flags  []bool
	Boost  *uint16
	Offset int32
	Raw    []byte
	hidden int `postcard:"-"`
}

func roundTrip(t *testing.T, in, out any) {
	t.Helper()
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestRoundTripStruct(t *testing.T) {
	boost := uint16(770)
	in := telemetry{
		Seq:    90000,
		Name:   "axis-a",
		Flags:  []bool{true, false, true},
		Boost:  &boost,
		Offset: -12345,
		Raw:    []byte{0, 1, 2, 255},
	}
	var out telemetry
	roundTrip(t, in, &out)
	if out.Seq != in.Seq || out.Name != in.Name || out.Offset != in.Offset {
		t.Fatalf("scalar mismatch: %+v", out)
	}
	if len(out.Flags) != 3 || !out.Flags[0] || out.Flags[1] {
		t.Fatalf("flags mismatch: %v", out.Flags)
	}
	if out.Boost == nil || *out.Boost != 770 {
		t.Fatalf("option mismatch: %v", out.Boost)
	}
	if !bytes.Equal(out.Raw, in.Raw) {
		t.Fatalf("bytes mismatch: %x", out.Raw)
	}
}

func TestNilOptionRoundTrip(t *testing.T) {
	in := telemetry{Name: "bare"}
	var out telemetry
	roundTrip(t, in, &out)
	if out.Boost != nil {
		t.Fatalf("expected nil option, got %v", *out.Boost)
	}
}

func TestVarintEncodingEdges(t *testing.T) {
	cases := []struct {
		value uint64
		want  []byte
	}{
		{0, []byte{0x00}},
		{42, []byte{0x2a}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tc := range cases {
		got := AppendUvarint(nil, tc.value)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("uvarint(%d) = %x, want %x", tc.value, got, tc.want)
		}
	}
}

func TestZigzagEdges(t *testing.T) {
	for _, v := range []int64{0, -1, 1, -64, 63, math.MinInt64, math.MaxInt64} {
		data := AppendVarint(nil, v)
		got, rest, err := Varint(data)
		if err != nil || len(rest) != 0 {
			t.Fatalf("varint(%d): err=%v rest=%d", v, err, len(rest))
		}
		if got != v {
			t.Fatalf("varint(%d) round-tripped to %d", v, got)
		}
	}
	// -1 zigzags to 1, so a negative one-byte value stays one byte.
	if data := AppendVarint(nil, -1); !bytes.Equal(data, []byte{0x01}) {
		t.Fatalf("zigzag(-1) = %x", data)
	}
}

func TestMapDeterminism(t *testing.T) {
	in := map[string]uint32{"b": 2, "a": 1, "c": 3}
	first, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding not deterministic")
		}
	}
	var out map[string]uint32
	if err := Unmarshal(first, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 3 || out["b"] != 2 {
		t.Fatalf("map mismatch: %v", out)
	}
}

func TestFixedArrayHasNoCount(t *testing.T) {
	data, err := Marshal([4]uint8{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Fatalf("array encoding %x, want bare elements", data)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	var v uint8
	if err := Unmarshal([]byte{1, 2}, &v); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestUnmarshalRejectsBadBool(t *testing.T) {
	var v bool
	if err := Unmarshal([]byte{2}, &v); !errors.Is(err, ErrBadBool) {
		t.Fatalf("expected ErrBadBool, got %v", err)
	}
}

func TestUnmarshalShortInput(t *testing.T) {
	var v telemetry
	if err := Unmarshal([]byte{0x80}, &v); err == nil {
		t.Fatal("expected short input error")
	}
}

func TestUnmarshalHostileCount(t *testing.T) {
	// A 1 GiB element count in a 5-byte payload must fail fast, not
	// allocate.
	data := AppendUvarint(nil, 1<<30)
	var v []uint32
	if err := Unmarshal(data, &v); err == nil {
		t.Fatal("expected count validation error")
	}
}

func TestMarshalInto(t *testing.T) {
	buf := make([]byte, 0, 8)
	n, err := MarshalInto(buf, uint32(300))
	if err != nil {
		t.Fatalf("marshal into: %v", err)
	}
	if n != 2 || !bytes.Equal(buf[:n], []byte{0xac, 0x02}) {
		t.Fatalf("wrote %d bytes: %x", n, buf[:n])
	}
}

func TestMarshalIntoOverflow(t *testing.T) {
	buf := make([]byte, 0, 4)
	if _, err := MarshalInto(buf, "this string does not fit"); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

// flag is a two-variant enum exercising the Marshaler extension point.
type flag struct {
	On    bool
	Level uint8
}

func (f *flag) MarshalPostcard(buf []byte) ([]byte, error) {
	if !f.On {
		return AppendUvarint(buf, 0), nil
	}
	buf = AppendUvarint(buf, 1)
	return append(buf, f.Level), nil
}

func (f *flag) UnmarshalPostcard(data []byte) ([]byte, error) {
	disc, rest, err := Uvarint(data)
	if err != nil {
		return nil, err
	}
	switch disc {
	case 0:
		*f = flag{}
		return rest, nil
	case 1:
		if len(rest) < 1 {
			return nil, ErrShortInput
		}
		*f = flag{On: true, Level: rest[0]}
		return rest[1:], nil
	default:
		return nil, ErrBadVarint
	}
}

func TestCustomMarshalerRoundTrip(t *testing.T) {
	in := flag{On: true, Level: 7}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 7}) {
		t.Fatalf("enum encoding %x", data)
	}
	var out flag
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("enum mismatch: %+v", out)
	}
}

func TestCustomMarshalerInsideStruct(t *testing.T) {
	type wrapper struct {
		Tag  uint8
		Flag flag
	}
	in := wrapper{Tag: 9, Flag: flag{On: true, Level: 3}}
	var out wrapper
	roundTrip(t, in, &out)
	if out != in {
		t.Fatalf("wrapper mismatch: %+v", out)
	}
}
