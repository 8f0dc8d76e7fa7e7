// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package goflate

import (
	"bytes"
	"strings"
	"testing"
)

// TestInflateInvalidBlockHeader mirrors hwzip's
// test_inflate_invalid_block_header: a reserved BTYPE (11) must be
// rejected outright.
func TestInflateInvalidBlockHeader(t *testing.T) {
	src := []byte{0x6} // bfinal: 0, btype: 11
	dst := make([]byte, 10)
	_, _, res := Inflate(src, dst)
	if res != ResultInvalidStream {
		t.Fatalf("res = %v, want ResultInvalidStream", res)
	}
}

// TestInflateUncompressed mirrors hwzip's test_inflate_uncompressed.
func TestInflateUncompressed(t *testing.T) {
	bad := []byte{
		0x01,       // bfinal: 1, btype: 00
		0x05, 0x00, // len: 5
		0x12, 0x34, // nlen: garbage (does not match ^len)
	}
	good := []byte{
		0x01,       // bfinal: 1, btype: 00
		0x05, 0x00, // len: 5
		0xfa, 0xff, // nlen
		'H', 'e', 'l', 'l', 'o',
	}

	dst := make([]byte, 10)
	cases := []struct {
		name string
		src  []byte
		dst  []byte
		want Result
	}{
		{"too short for block header", bad[:0], dst, ResultInsufficientInput},
		{"too short for len (1)", bad[:1], dst, ResultInsufficientInput},
		{"too short for len (2)", bad[:2], dst, ResultInsufficientInput},
		{"too short for nlen (3)", bad[:3], dst, ResultInsufficientInput},
		{"too short for nlen (4)", bad[:4], dst, ResultInsufficientInput},
		{"nlen/len mismatch", bad[:5], dst, ResultInvalidStream},
		// Only 4 of the 5 declared payload bytes are actually present,
		// so this must report the truncation rather than the 4-byte dst
		// being too small, matching hwzip's inflate_test.c distinction
		// between HWINF_ERR and HWINF_FULL.
		{"not enough input", good[:9], dst[:4], ResultInsufficientInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, res := Inflate(c.src, c.dst)
			if res != c.want {
				t.Fatalf("res = %v, want %v", res, c.want)
			}
		})
	}

	t.Run("not enough room to output", func(t *testing.T) {
		_, dstUsed, res := Inflate(good, dst[:4])
		if res != ResultOutputFull {
			t.Fatalf("res = %v, want ResultOutputFull", res)
		}
		// The 5-byte stored payload does not fit, so none of it is written.
		if dstUsed != 0 {
			t.Fatalf("dstUsed = %d, want 0", dstUsed)
		}
	})

	t.Run("success", func(t *testing.T) {
		srcUsed, dstUsed, res := Inflate(good, dst[:5])
		if res != ResultOK {
			t.Fatalf("res = %v, want ResultOK", res)
		}
		if srcUsed != 10 {
			t.Fatalf("srcUsed = %d, want 10", srcUsed)
		}
		if dstUsed != 5 {
			t.Fatalf("dstUsed = %d, want 5", dstUsed)
		}
		if !bytes.Equal(dst[:5], []byte("Hello")) {
			t.Fatalf("dst = %q, want %q", dst[:5], "Hello")
		}
	})
}

// TestInflateTwoCitiesIntro mirrors hwzip's test_inflate_twocities_intro:
// a real dynamic-block-heavy deflate stream, including its "every
// truncation must fail" check.
func TestInflateTwoCitiesIntro(t *testing.T) {
	deflated := []byte{
		0x74, 0xeb, 0xcd, 0x0d, 0x80, 0x20, 0x0c, 0x47, 0x71, 0xdc, 0x9d, 0xa2, 0x03, 0xb8, 0x88, 0x63,
		0xf0, 0xf1, 0x47, 0x9a, 0x00, 0x35, 0xb4, 0x86, 0xf5, 0x0d, 0x27, 0x63, 0x82, 0xe7, 0xdf, 0x7b,
		0x87, 0xd1, 0x70, 0x4a, 0x96, 0x41, 0x1e, 0x6a, 0x24, 0x89, 0x8c, 0x2b, 0x74, 0xdf, 0xf8, 0x95,
		0x21, 0xfd, 0x8f, 0xdc, 0x89, 0x09, 0x83, 0x35, 0x4a, 0x5d, 0x49, 0x12, 0x29, 0xac, 0xb9, 0x41,
		0xbf, 0x23, 0x2e, 0x09, 0x79, 0x06, 0x1e, 0x85, 0x91, 0xd6, 0xc6, 0x2d, 0x74, 0xc4, 0xfb, 0xa1,
		0x7b, 0x0f, 0x52, 0x20, 0x84, 0x61, 0x28, 0x0c, 0x63, 0xdf, 0x53, 0xf4, 0x00, 0x1e, 0xc3, 0xa5,
		0x97, 0x88, 0xf4, 0xd9, 0x04, 0xa5, 0x2d, 0x49, 0x54, 0xbc, 0xfd, 0x90, 0xa5, 0x0c, 0xae, 0xbf,
		0x3f, 0x84, 0x77, 0x88, 0x3f, 0xaf, 0xc0, 0x40, 0xd6, 0x5b, 0x14, 0x8b, 0x54, 0xf6, 0x0f, 0x9b,
		0x49, 0xf7, 0xbf, 0xbf, 0x36, 0x54, 0x5a, 0x0d, 0xe6, 0x3e, 0xf0, 0x9e, 0x29, 0xcd, 0xa1, 0x41,
		0x05, 0x36, 0x48, 0x74, 0x4a, 0xe9, 0x46, 0x66, 0x2a, 0x19, 0x17, 0xf4, 0x71, 0x8e, 0xcb, 0x15,
		0x5b, 0x57, 0xe4, 0xf3, 0xc7, 0xe7, 0x1e, 0x9d, 0x50, 0x08, 0xc3, 0x50, 0x18, 0xc6, 0x2a, 0x19,
		0xa0, 0xdd, 0xc3, 0x35, 0x82, 0x3d, 0x6a, 0xb0, 0x34, 0x92, 0x16, 0x8b, 0xdb, 0x1b, 0xeb, 0x7d,
		0xbc, 0xf8, 0x16, 0xf8, 0xc2, 0xe1, 0xaf, 0x81, 0x7e, 0x58, 0xf4, 0x9f, 0x74, 0xf8, 0xcd, 0x39,
		0xd3, 0xaa, 0x0f, 0x26, 0x31, 0xcc, 0x8d, 0x9a, 0xd2, 0x04, 0x3e, 0x51, 0xbe, 0x7e, 0xbc, 0xc5,
		0x27, 0x3d, 0xa5, 0xf3, 0x15, 0x63, 0x94, 0x42, 0x75, 0x53, 0x6b, 0x61, 0xc8, 0x01, 0x13, 0x4d,
		0x23, 0xba, 0x2a, 0x2d, 0x6c, 0x94, 0x65, 0xc7, 0x4b, 0x86, 0x9b, 0x25, 0x3e, 0xba, 0x01, 0x10,
		0x84, 0x81, 0x28, 0x80, 0x55, 0x1c, 0xc0, 0xa5, 0xaa, 0x36, 0xa6, 0x09, 0xa8, 0xa1, 0x85, 0xf9,
		0x7d, 0x45, 0xbf, 0x80, 0xe4, 0xd1, 0xbb, 0xde, 0xb9, 0x5e, 0xf1, 0x23, 0x89, 0x4b, 0x00, 0xd5,
		0x59, 0x84, 0x85, 0xe3, 0xd4, 0xdc, 0xb2, 0x66, 0xe9, 0xc1, 0x44, 0x0b, 0x1e, 0x84, 0xec, 0xe6,
		0xa1, 0xc7, 0x42, 0x6a, 0x09, 0x6d, 0x9a, 0x5e, 0x70, 0xa2, 0x36, 0x94, 0x29, 0x2c, 0x85, 0x3f,
		0x24, 0x39, 0xf3, 0xae, 0xc3, 0xca, 0xca, 0xaf, 0x2f, 0xce, 0x8e, 0x58, 0x91, 0x00, 0x25, 0xb5,
		0xb3, 0xe9, 0xd4, 0xda, 0xef, 0xfa, 0x48, 0x7b, 0x3b, 0xe2, 0x63, 0x12, 0x00, 0x00, 0x20, 0x04,
		0x80, 0x70, 0x36, 0x8c, 0xbd, 0x04, 0x71, 0xff, 0xf6, 0x0f, 0x66, 0x38, 0xcf, 0xa1, 0x39, 0x11,
		0x0f,
	}
	expectedText := strings.Join([]string{
		"It was the best of times,\n",
		"it was the worst of times,\n",
		"it was the age of wisdom,\n",
		"it was the age of foolishness,\n",
		"it was the epoch of belief,\n",
		"it was the epoch of incredulity,\n",
		"it was the season of Light,\n",
		"it was the season of Darkness,\n",
		"it was the spring of hope,\n",
		"it was the winter of despair,\n",
		"\n",
		"we had everything before us, we had nothing before us, " +
			"we were all going direct to Heaven, we were all going direct the other way" +
			"---in short, the period was so far like the present period, " +
			"that some of its noisiest authorities insisted on its being received, " +
			"for good or for evil, in the superlative degree of comparison only.\n",
	}, "")
	// The reference fixture's expected buffer is a C string literal, whose
	// sizeof includes the trailing NUL; that NUL is itself part of the
	// compressed stream's output, not a C-ism to strip.
	expected := append([]byte(expectedText), 0)

	dst := make([]byte, 1000)
	srcUsed, dstUsed, res := Inflate(deflated, dst)
	if res != ResultOK {
		t.Fatalf("res = %v, want ResultOK", res)
	}
	if dstUsed != len(expected) {
		t.Fatalf("dstUsed = %d, want %d", dstUsed, len(expected))
	}
	if srcUsed != len(deflated) {
		t.Fatalf("srcUsed = %d, want %d", srcUsed, len(deflated))
	}
	if !bytes.Equal(dst[:dstUsed], expected) {
		t.Fatalf("decoded content mismatch")
	}

	for i := 0; i < len(deflated); i++ {
		_, _, res := Inflate(deflated[:i], dst)
		if res == ResultOK {
			t.Fatalf("truncated to %d bytes: got ResultOK, want an error", i)
		}
	}
}

func TestInflateReservedBlockTypeMidStream(t *testing.T) {
	// A valid stored empty final-less block followed by a reserved btype.
	src := []byte{
		0x00,       // bfinal: 0, btype: 00
		0x00, 0x00, // len: 0
		0xff, 0xff, // nlen
		0x07,       // bfinal: 1, btype: 11 (reserved)
	}
	dst := make([]byte, 10)
	_, _, res := Inflate(src, dst)
	if res != ResultInvalidStream {
		t.Fatalf("res = %v, want ResultInvalidStream", res)
	}
}
