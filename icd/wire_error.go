package icd

import (
	"fmt"

	"github.com/danmuck/framelink/codec"
	"github.com/danmuck/framelink/wire"
	"github.com/danmuck/framelink/wire/schema"
)

// WireErrorKind discriminates WireError variants. The numeric values are
// the wire discriminants; renumbering breaks deployed peers.
type WireErrorKind uint8

const (
	// KindFrameTooLong: the reply exceeded the sender's outbound buffer.
	KindFrameTooLong WireErrorKind = iota
	// KindFrameTooShort: the inbound frame was below the minimum size.
	KindFrameTooShort
	// KindDeserFailed: payload deserialisation failed.
	KindDeserFailed
	// KindSerFailed: serialisation of an outbound message failed.
	KindSerFailed
	// KindUnknownKey: no handler is registered for the request key.
	KindUnknownKey
	// KindFailedToSpawn: the handler's task pool was exhausted.
	KindFailedToSpawn
	// KindHandlerFailed: the handler ran and returned an error.
	KindHandlerFailed
)

func (k WireErrorKind) String() string {
	switch k {
	case KindFrameTooLong:
		return "frame_too_long"
	case KindFrameTooShort:
		return "frame_too_short"
	case KindDeserFailed:
		return "deser_failed"
	case KindSerFailed:
		return "ser_failed"
	case KindUnknownKey:
		return "unknown_key"
	case KindFailedToSpawn:
		return "failed_to_spawn"
	case KindHandlerFailed:
		return "handler_failed"
	default:
		return "unknown"
	}
}

// FrameTooLong carries the offending and maximum lengths.
type FrameTooLong struct {
	Len uint32
	Max uint32
}

// FrameTooShort carries the offending length.
type FrameTooShort struct {
	Len uint32
}

// WireError is the standard error payload sent on the error key. It is an
// enum on the wire: a varint discriminant followed by the variant payload.
type WireError struct {
	Kind     WireErrorKind
	TooLong  FrameTooLong  // KindFrameTooLong
	TooShort FrameTooShort // KindFrameTooShort
	Message  string        // KindHandlerFailed
}

func (e *WireError) Error() string {
	switch e.Kind {
	case KindFrameTooLong:
		return fmt.Sprintf("icd: frame too long: %d > %d", e.TooLong.Len, e.TooLong.Max)
	case KindFrameTooShort:
		return fmt.Sprintf("icd: frame too short: %d", e.TooShort.Len)
	case KindDeserFailed:
		return "icd: deserialization failed"
	case KindSerFailed:
		return "icd: serialization failed"
	case KindUnknownKey:
		return "icd: unknown key"
	case KindFailedToSpawn:
		return "icd: failed to spawn handler"
	case KindHandlerFailed:
		return "icd: handler failed: " + e.Message
	default:
		return fmt.Sprintf("icd: unknown wire error %d", e.Kind)
	}
}

func (e *WireError) MarshalPostcard(buf []byte) ([]byte, error) {
	buf = codec.AppendUvarint(buf, uint64(e.Kind))
	switch e.Kind {
	case KindFrameTooLong:
		buf = codec.AppendUvarint(buf, uint64(e.TooLong.Len))
		buf = codec.AppendUvarint(buf, uint64(e.TooLong.Max))
	case KindFrameTooShort:
		buf = codec.AppendUvarint(buf, uint64(e.TooShort.Len))
	case KindHandlerFailed:
		buf = codec.AppendUvarint(buf, uint64(len(e.Message)))
		buf = append(buf, e.Message...)
	}
	return buf, nil
}

func (e *WireError) UnmarshalPostcard(data []byte) ([]byte, error) {
	disc, rest, err := codec.Uvarint(data)
	if err != nil {
		return nil, err
	}
	*e = WireError{Kind: WireErrorKind(disc)}
	switch e.Kind {
	case KindFrameTooLong:
		var tl FrameTooLong
		if rest, err = codec.UnmarshalPartial(rest, &tl); err != nil {
			return nil, err
		}
		e.TooLong = tl
	case KindFrameTooShort:
		var ts FrameTooShort
		if rest, err = codec.UnmarshalPartial(rest, &ts); err != nil {
			return nil, err
		}
		e.TooShort = ts
	case KindHandlerFailed:
		if rest, err = codec.UnmarshalPartial(rest, &e.Message); err != nil {
			return nil, err
		}
	case KindDeserFailed, KindSerFailed, KindUnknownKey, KindFailedToSpawn:
	default:
		return nil, fmt.Errorf("icd: unknown wire error discriminant %d", disc)
	}
	return rest, nil
}

func (*WireError) PostcardSchema() *schema.NamedType {
	return wireErrorSchema
}

var wireErrorSchema = &schema.NamedType{
	Name: "WireError",
	Ty: &schema.Ty{
		Kind: schema.KindEnum,
		Variants: []schema.NamedVariant{
			{Name: "FrameTooLong", Ty: &schema.Ty{Kind: schema.KindStructVariant, Fields: []schema.NamedValue{
				{Name: "Len", Ty: schema.U32},
				{Name: "Max", Ty: schema.U32},
			}}},
			{Name: "FrameTooShort", Ty: &schema.Ty{Kind: schema.KindStructVariant, Fields: []schema.NamedValue{
				{Name: "Len", Ty: schema.U32},
			}}},
			{Name: "DeserFailed", Ty: &schema.Ty{Kind: schema.KindUnitVariant}},
			{Name: "SerFailed", Ty: &schema.Ty{Kind: schema.KindUnitVariant}},
			{Name: "UnknownKey", Ty: &schema.Ty{Kind: schema.KindUnitVariant}},
			{Name: "FailedToSpawn", Ty: &schema.Ty{Kind: schema.KindUnitVariant}},
			{Name: "HandlerFailed", Ty: &schema.Ty{Kind: schema.KindStructVariant, Fields: []schema.NamedValue{
				{Name: "Message", Ty: schema.String},
			}}},
		},
	},
}

// ErrorKey derives the wire error key for path using the WireError schema.
func ErrorKey(path string) wire.Key {
	return wire.KeyForSchema(path, wireErrorSchema)
}
