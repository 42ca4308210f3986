// Package cobs owns the byte-stuffed stream framing used on links without
// native frame boundaries (serial lines, TCP).
//
// Each frame is COBS-encoded and terminated with a single 0x00 byte.
// Readers split the byte stream on terminators and decode what lies
// between; a zero-length decoded frame is a protocol error.
package cobs

import "errors"

var (
	ErrBadFrame   = errors.New("cobs: malformed frame")
	ErrEmptyFrame = errors.New("cobs: empty frame")
)

// Encode appends the COBS encoding of src to dst. The output contains no
// zero bytes; the frame terminator is the caller's concern.
func Encode(dst, src []byte) []byte {
	codeIdx := len(dst)
	dst = append(dst, 0)
	code := byte(1)

	for _, b := range src {
		if b == 0 {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
			continue
		}
		dst = append(dst, b)
		code++
		if code == 0xff {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
		}
	}
	dst[codeIdx] = code
	return dst
}

// Decode appends the decoded form of one COBS block (terminator already
// stripped) to dst.
func Decode(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, ErrEmptyFrame
	}
	for len(src) > 0 {
		code := src[0]
		if code == 0 || int(code) > len(src) {
			return nil, ErrBadFrame
		}
		dst = append(dst, src[1:code]...)
		src = src[code:]
		if code < 0xff && len(src) > 0 {
			dst = append(dst, 0)
		}
	}
	return dst, nil
}
