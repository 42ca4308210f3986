package wire

import (
	"reflect"
	"testing"

	"github.com/danmuck/framelink/wire/schema"
)

// refFnv1a is an independent FNV-1a fold used to pin the key algorithm.
func refFnv1a(state uint64, data []byte) uint64 {
	for _, b := range data {
		state ^= uint64(b)
		state *= 0x00000100000001b3
	}
	return state
}

func TestKeyMatchesReferenceFold(t *testing.T) {
	// key("ping", u32) folds the path bytes, the primitive name, the
	// varint discriminant, then the width discriminant.
	state := refFnv1a(0xcbf29ce484222325, []byte("ping"))
	state = refFnv1a(state, []byte("u32"))
	state = refFnv1a(state, []byte{3})
	state = refFnv1a(state, []byte{5})

	var want Key
	for i := range want {
		want[i] = byte(state >> (8 * i))
	}

	got, err := KeyForType("ping", reflect.TypeFor[uint32]())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if got != want {
		t.Fatalf("key mismatch: got %s want %s", got, want)
	}
}

func TestKeyIsPure(t *testing.T) {
	type Sample struct {
		A uint32
		B string
	}
	k1, err := KeyForType("sensor/sample", reflect.TypeFor[Sample]())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := KeyForType("sensor/sample", reflect.TypeFor[Sample]())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("key not pure: %s vs %s", k1, k2)
	}
}

func TestKeySensitivity(t *testing.T) {
	type A struct{ V uint32 }
	type B struct{ V uint64 }

	base, _ := KeyForType("path", reflect.TypeFor[A]())
	otherPath, _ := KeyForType("path2", reflect.TypeFor[A]())
	otherType, _ := KeyForType("path", reflect.TypeFor[B]())

	if base == otherPath {
		t.Fatal("path change did not change key")
	}
	if base == otherType {
		t.Fatal("schema change did not change key")
	}
}

func TestEndpointKeysDistinct(t *testing.T) {
	ep := NewEndpoint[uint32, string]("convert", "demo/convert")
	if ep.ReqKey == ep.RespKey {
		t.Fatal("request and response keys collide for distinct schemas")
	}
}

func TestEndpointSamePayloadSameKeyAcrossDirections(t *testing.T) {
	// Same path and same schema on both sides of an exchange produce the
	// same key; distinctness comes from the schemas alone.
	ep := NewEndpoint[uint32, uint32]("echo", "demo/echo")
	if ep.ReqKey != ep.RespKey {
		t.Fatal("identical schemas at one path must share a key")
	}
}

func TestKeyForSchemaFieldNamesMatter(t *testing.T) {
	a := &schema.NamedType{Name: "S", Ty: &schema.Ty{Kind: schema.KindStruct, Fields: []schema.NamedValue{
		{Name: "x", Ty: schema.U32},
	}}}
	b := &schema.NamedType{Name: "S", Ty: &schema.Ty{Kind: schema.KindStruct, Fields: []schema.NamedValue{
		{Name: "y", Ty: schema.U32},
	}}}
	if KeyForSchema("p", a) == KeyForSchema("p", b) {
		t.Fatal("field rename did not change key")
	}
}

func TestTopicDirectionsShareKeyOnlyByScheme(t *testing.T) {
	in := NewTopic[uint8]("cmd", "demo/chan", ToServer)
	out := NewTopic[uint16]("evt", "demo/chan", ToClient)
	if in.Key == out.Key {
		t.Fatal("distinct message schemas on one path must not collide")
	}
}
