package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	key := Key{1, 2, 3, 4, 5, 6, 7, 8}
	for _, seq := range []uint32{0, 1, 127, 128, 300, 16383, 16384, 1 << 21, 0xffffffff} {
		buf := AppendHeader(nil, Header{Key: key, Seq: seq})
		hdr, rest, err := DecodeHeader(buf)
		if err != nil {
			t.Fatalf("seq=%d decode: %v", seq, err)
		}
		if hdr.Key != key || hdr.Seq != seq {
			t.Fatalf("seq=%d round trip mismatch: %+v", seq, hdr)
		}
		if len(rest) != 0 {
			t.Fatalf("seq=%d unexpected rest: %d bytes", seq, len(rest))
		}
	}
}

func TestHeaderSeqVarintWidths(t *testing.T) {
	cases := []struct {
		seq   uint32
		width int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{0xffffffff, 5},
	}
	for _, tc := range cases {
		buf := AppendHeader(nil, Header{Seq: tc.seq})
		if got := len(buf) - KeyLen; got != tc.width {
			t.Fatalf("seq=%d: varint width %d, want %d", tc.seq, got, tc.width)
		}
	}
}

func TestDecodeHeaderPreservesPayload(t *testing.T) {
	buf := AppendHeader(nil, Header{Key: Key{0xaa}, Seq: 9})
	buf = append(buf, 0xde, 0xad, 0xbe, 0xef)
	_, rest, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(rest, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("payload mismatch: %x", rest)
	}
}

func TestDecodeHeaderShortInput(t *testing.T) {
	for n := 0; n < MinHeaderLen; n++ {
		_, _, err := DecodeHeader(make([]byte, n))
		if !errors.Is(err, ErrShortHeader) {
			t.Fatalf("len=%d: expected ErrShortHeader, got %v", n, err)
		}
	}
}

func TestDecodeHeaderIncompleteVarint(t *testing.T) {
	frame := append(make([]byte, KeyLen), 0x80)
	_, _, err := DecodeHeader(frame)
	if !errors.Is(err, ErrSeqIncomplete) {
		t.Fatalf("expected ErrSeqIncomplete, got %v", err)
	}
}

func TestDecodeHeaderOverlongVarint(t *testing.T) {
	frame := append(make([]byte, KeyLen), 0x80, 0x80, 0x80, 0x80, 0x80, 0x01)
	_, _, err := DecodeHeader(frame)
	if !errors.Is(err, ErrSeqOverlong) {
		t.Fatalf("expected ErrSeqOverlong, got %v", err)
	}
}
