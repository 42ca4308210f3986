package wire

import (
	"fmt"
	"reflect"

	"github.com/danmuck/framelink/wire/schema"
)

// FNV-1a 64-bit parameters.
// source: https://en.wikipedia.org/wiki/Fowler%E2%80%93Noll%E2%80%93Vo_hash_function
const (
	fnvBasis uint64 = 0xcbf29ce484222325
	fnvPrime uint64 = 0x00000100000001b3
)

// Key identifies one (path, payload schema) pair on the wire. Both peers
// derive it independently; any difference in path or schema produces a
// different key.
type Key [8]byte

func (k Key) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x%02x%02x%02x%02x",
		k[0], k[1], k[2], k[3], k[4], k[5], k[6], k[7])
}

// KeyForSchema derives the key for path and an explicit schema tree.
func KeyForSchema(path string, nt *schema.NamedType) Key {
	state := hashUpdate(fnvBasis, []byte(path))
	state = hashNamedType(state, nt)

	var k Key
	for i := range k {
		k[i] = byte(state >> (8 * i))
	}
	return k
}

// KeyForType derives the key for path and the schema of a Go type.
func KeyForType(path string, t reflect.Type) (Key, error) {
	nt, err := schema.OfType(t)
	if err != nil {
		return Key{}, err
	}
	return KeyForSchema(path, nt), nil
}

func hashUpdate(state uint64, data []byte) uint64 {
	for _, b := range data {
		state ^= uint64(b)
		state *= fnvPrime
	}
	return state
}

func hashByte(state uint64, b byte) uint64 {
	state ^= uint64(b)
	return state * fnvPrime
}

// The canonical schema fold. Discriminant bytes come from schema.Kind and
// schema.Varint; traversal order is name-then-shape, declared source order
// for fields and variants. Changing anything here breaks every derived key.

func hashNamedType(state uint64, nt *schema.NamedType) uint64 {
	state = hashUpdate(state, []byte(nt.Name))
	return hashTy(state, nt.Ty)
}

func hashNamedValue(state uint64, nv schema.NamedValue) uint64 {
	state = hashUpdate(state, []byte(nv.Name))
	return hashNamedType(state, nv.Ty)
}

func hashNamedVariant(state uint64, nv schema.NamedVariant) uint64 {
	state = hashUpdate(state, []byte(nv.Name))
	return hashTy(state, nv.Ty)
}

func hashTy(state uint64, ty *schema.Ty) uint64 {
	state = hashByte(state, byte(ty.Kind))
	switch ty.Kind {
	case schema.KindVarint:
		state = hashByte(state, byte(ty.Varint))
	case schema.KindOption, schema.KindNewtypeStruct, schema.KindNewtypeVariant, schema.KindSeq:
		state = hashNamedType(state, ty.Elem)
	case schema.KindTuple, schema.KindTupleStruct, schema.KindTupleVariant:
		for _, elem := range ty.Elems {
			state = hashNamedType(state, elem)
		}
	case schema.KindMap:
		state = hashNamedType(state, ty.Key)
		state = hashNamedType(state, ty.Val)
	case schema.KindStruct, schema.KindStructVariant:
		for _, f := range ty.Fields {
			state = hashNamedValue(state, f)
		}
	case schema.KindEnum:
		for _, v := range ty.Variants {
			state = hashNamedVariant(state, v)
		}
	}
	return state
}
