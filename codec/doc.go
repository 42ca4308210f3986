// Package codec owns the postcard payload wire format.
//
// Ownership boundary:
// - compact binary encode/decode of Go values (reflection driven)
// - Marshaler/Unmarshaler extension points for enum-shaped types
// - fixed-capacity serialisation for the device outbound buffer
//
// The format carries no field names or type tags: both peers must agree on
// the payload type, which the wire key guarantees.
package codec
