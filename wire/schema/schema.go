package schema

// Kind discriminates the shape of a type node. The numeric values are part
// of the key-derivation contract: they are folded into the FNV-1a hash and
// must never be renumbered.
type Kind uint8

const (
	KindBool           Kind = 0
	KindI8             Kind = 1
	KindU8             Kind = 2
	KindVarint         Kind = 3
	KindF32            Kind = 4
	KindF64            Kind = 5
	KindChar           Kind = 6
	KindString         Kind = 7
	KindByteArray      Kind = 8
	KindOption         Kind = 9
	KindUnit           Kind = 10
	KindUnitStruct     Kind = 11
	KindUnitVariant    Kind = 12
	KindNewtypeStruct  Kind = 13
	KindNewtypeVariant Kind = 14
	KindSeq            Kind = 15
	KindTuple          Kind = 16
	KindTupleStruct    Kind = 17
	KindTupleVariant   Kind = 18
	KindMap            Kind = 19
	KindStruct         Kind = 20
	KindStructVariant  Kind = 21
	KindEnum           Kind = 22
)

// Varint discriminates the width class of a varint-encoded integer. The
// numeric values follow KindVarint in the hash fold and are likewise fixed.
type Varint uint8

const (
	VarintI16   Varint = 0
	VarintI32   Varint = 1
	VarintI64   Varint = 2
	VarintI128  Varint = 3
	VarintU16   Varint = 4
	VarintU32   Varint = 5
	VarintU64   Varint = 6
	VarintU128  Varint = 7
	VarintUsize Varint = 8
	VarintIsize Varint = 9
)

// NamedType is a type together with its declared name.
type NamedType struct {
	Name string
	Ty   *Ty
}

// NamedValue is one named struct field.
type NamedValue struct {
	Name string
	Ty   *NamedType
}

// NamedVariant is one named enum variant and its payload shape.
type NamedVariant struct {
	Name string
	Ty   *Ty
}

// Ty is one node of a type tree. Which auxiliary fields are meaningful
// depends on Kind:
//
//	Varint                          → Varint
//	Option, NewtypeStruct,
//	NewtypeVariant, Seq             → Elem
//	Tuple, TupleStruct, TupleVariant → Elems
//	Map                             → Key, Val
//	Struct, StructVariant           → Fields
//	Enum                            → Variants
type Ty struct {
	Kind     Kind
	Varint   Varint
	Elem     *NamedType
	Elems    []*NamedType
	Key      *NamedType
	Val      *NamedType
	Fields   []NamedValue
	Variants []NamedVariant
}

// Schemer lets a type declare its own schema instead of the reflected one.
// Enum-shaped types must implement it: Go reflection cannot see variants.
type Schemer interface {
	PostcardSchema() *NamedType
}

// Primitive leaf nodes, shared by the deriver and hand-written schemas.
var (
	TyBool   = &Ty{Kind: KindBool}
	TyI8     = &Ty{Kind: KindI8}
	TyU8     = &Ty{Kind: KindU8}
	TyI16    = &Ty{Kind: KindVarint, Varint: VarintI16}
	TyI32    = &Ty{Kind: KindVarint, Varint: VarintI32}
	TyI64    = &Ty{Kind: KindVarint, Varint: VarintI64}
	TyU16    = &Ty{Kind: KindVarint, Varint: VarintU16}
	TyU32    = &Ty{Kind: KindVarint, Varint: VarintU32}
	TyU64    = &Ty{Kind: KindVarint, Varint: VarintU64}
	TyF32    = &Ty{Kind: KindF32}
	TyF64    = &Ty{Kind: KindF64}
	TyString = &Ty{Kind: KindString}
	TyBytes  = &Ty{Kind: KindByteArray}
	TyUnit   = &Ty{Kind: KindUnit}
)

// Named primitives with their canonical wire names. Both peers must agree
// on these names for keys to line up.
var (
	Bool   = &NamedType{Name: "bool", Ty: TyBool}
	I8     = &NamedType{Name: "i8", Ty: TyI8}
	U8     = &NamedType{Name: "u8", Ty: TyU8}
	I16    = &NamedType{Name: "i16", Ty: TyI16}
	I32    = &NamedType{Name: "i32", Ty: TyI32}
	I64    = &NamedType{Name: "i64", Ty: TyI64}
	U16    = &NamedType{Name: "u16", Ty: TyU16}
	U32    = &NamedType{Name: "u32", Ty: TyU32}
	U64    = &NamedType{Name: "u64", Ty: TyU64}
	F32    = &NamedType{Name: "f32", Ty: TyF32}
	F64    = &NamedType{Name: "f64", Ty: TyF64}
	String = &NamedType{Name: "str", Ty: TyString}
	Bytes  = &NamedType{Name: "[u8]", Ty: TyBytes}
	Unit   = &NamedType{Name: "()", Ty: TyUnit}
)

// Option wraps elem in an option node named "Option".
func Option(elem *NamedType) *NamedType {
	return &NamedType{Name: "Option", Ty: &Ty{Kind: KindOption, Elem: elem}}
}

// Seq wraps elem in a variable-length sequence node named "Vec".
func Seq(elem *NamedType) *NamedType {
	return &NamedType{Name: "Vec", Ty: &Ty{Kind: KindSeq, Elem: elem}}
}

// Map builds a map node named "Map".
func Map(key, val *NamedType) *NamedType {
	return &NamedType{Name: "Map", Ty: &Ty{Kind: KindMap, Key: key, Val: val}}
}
