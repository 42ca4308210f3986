// Package wire owns the framing contract shared by both peers.
//
// Ownership boundary:
// - key derivation (path + payload schema → 8-byte key)
// - wire header encode/decode
// - endpoint and topic descriptors
package wire
