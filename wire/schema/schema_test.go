package schema

import (
	"reflect"
	"testing"
)

type sample struct {
	ID      uint32
	Label   string `postcard:"label"`
	Ignored int    `postcard:"-"`
	Ratio   float64
}

func TestOfTypeStructFields(t *testing.T) {
	nt, err := OfType(reflect.TypeFor[sample]())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if nt.Name != "sample" || nt.Ty.Kind != KindStruct {
		t.Fatalf("unexpected root: %+v", nt)
	}
	want := []struct {
		name string
		kind Kind
	}{
		{"ID", KindVarint},
		{"label", KindString},
		{"Ratio", KindF64},
	}
	if len(nt.Ty.Fields) != len(want) {
		t.Fatalf("field count %d, want %d", len(nt.Ty.Fields), len(want))
	}
	for i, w := range want {
		f := nt.Ty.Fields[i]
		if f.Name != w.name || f.Ty.Ty.Kind != w.kind {
			t.Fatalf("field %d: %s/%d, want %s/%d", i, f.Name, f.Ty.Ty.Kind, w.name, w.kind)
		}
	}
}

func TestOfTypeCompounds(t *testing.T) {
	cases := []struct {
		typ  reflect.Type
		kind Kind
	}{
		{reflect.TypeFor[*uint8](), KindOption},
		{reflect.TypeFor[[]uint32](), KindSeq},
		{reflect.TypeFor[[]byte](), KindByteArray},
		{reflect.TypeFor[[4]uint16](), KindTuple},
		{reflect.TypeFor[map[string]uint32](), KindMap},
		{reflect.TypeFor[struct{}](), KindUnitStruct},
	}
	for _, tc := range cases {
		nt, err := OfType(tc.typ)
		if err != nil {
			t.Fatalf("%s: %v", tc.typ, err)
		}
		if nt.Ty.Kind != tc.kind {
			t.Fatalf("%s: kind %d, want %d", tc.typ, nt.Ty.Kind, tc.kind)
		}
	}
}

func TestOfTypeArrayElemCount(t *testing.T) {
	nt, err := OfType(reflect.TypeFor[[3]uint32]())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(nt.Ty.Elems) != 3 {
		t.Fatalf("tuple arity %d, want 3", len(nt.Ty.Elems))
	}
}

func TestOfTypeRejectsRecursion(t *testing.T) {
	type node struct {
		Next *node
	}
	if _, err := OfType(reflect.TypeFor[node]()); err == nil {
		t.Fatal("expected recursion error")
	}
}

func TestOfTypeRejectsUnsupported(t *testing.T) {
	if _, err := OfType(reflect.TypeFor[chan int]()); err == nil {
		t.Fatal("expected unsupported type error")
	}
}

type customSchema struct{}

func (customSchema) PostcardSchema() *NamedType {
	return &NamedType{Name: "Custom", Ty: &Ty{Kind: KindUnitStruct}}
}

func TestSchemerOverride(t *testing.T) {
	nt, err := OfType(reflect.TypeFor[customSchema]())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if nt.Name != "Custom" {
		t.Fatalf("override ignored: %+v", nt)
	}
}

func TestNamedAliasKeepsName(t *testing.T) {
	type Celsius float64
	nt, err := OfType(reflect.TypeFor[Celsius]())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if nt.Name != "Celsius" || nt.Ty.Kind != KindF64 {
		t.Fatalf("alias mishandled: %+v", nt)
	}
}
