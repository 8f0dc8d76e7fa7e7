// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package goflate

import (
	"bytes"
	"testing"
)

// deflateRoundtrip compresses src, decompresses the result, and checks
// that the output matches. It mirrors hwzip's deflate_test.c
// deflate_roundtrip helper, including its "any too-small destination
// buffer must fail" check for small inputs.
func deflateRoundtrip(t *testing.T, src []byte) []byte {
	t.Helper()
	dst := make([]byte, MaxCompressedSize(len(src)))
	n, ok := Deflate(src, dst)
	if !ok {
		t.Fatalf("Deflate failed for %d-byte input", len(src))
	}
	compressed := dst[:n]

	decompressed := make([]byte, len(src))
	srcUsed, dstUsed, res := Inflate(compressed, decompressed)
	if res != ResultOK {
		t.Fatalf("Inflate result = %v, want ResultOK", res)
	}
	if srcUsed != len(compressed) {
		t.Errorf("srcUsed = %d, want %d", srcUsed, len(compressed))
	}
	if dstUsed != len(src) {
		t.Errorf("dstUsed = %d, want %d", dstUsed, len(src))
	}
	if !bytes.Equal(decompressed, src) {
		t.Errorf("round trip mismatch for %d-byte input", len(src))
	}

	if len(src) < 1000 {
		for i := 0; i < len(compressed); i++ {
			small := make([]byte, i)
			if _, ok := Deflate(src, small); ok {
				t.Errorf("Deflate into a %d-byte buffer unexpectedly succeeded (needs %d)", i, len(compressed))
			}
		}
	}
	return compressed
}

// blockType extracts BTYPE from the first byte of a deflate stream whose
// first block begins at a byte boundary, mirroring hwzip's
// check_deflate_string's (comp[0]&7)>>1.
func blockType(comp []byte) int {
	return int(comp[0]&7) >> 1
}

func TestDeflateEmpty(t *testing.T) {
	comp := deflateRoundtrip(t, nil)
	if got := blockType(comp); got != btypeStatic {
		t.Errorf("block type = %d, want static (%d)", got, btypeStatic)
	}
}

func TestDeflateSingleByte(t *testing.T) {
	comp := deflateRoundtrip(t, []byte("a"))
	if got := blockType(comp); got != btypeStatic {
		t.Errorf("block type = %d, want static (%d)", got, btypeStatic)
	}
}

func TestDeflateRepeatedSubstring(t *testing.T) {
	deflateRoundtrip(t, []byte("hellohello"))
}

func TestDeflateSmallAlphabetNoRepeat(t *testing.T) {
	deflateRoundtrip(t, []byte("abcdefghijklmnopqrstuvwxyz"+"zyxwvutsrqponmlkjihgfedcba"))
}

func TestDeflateUniformNoRepeat(t *testing.T) {
	buf := make([]byte, 256)
	for i := 0; i < 255; i++ {
		buf[i] = byte(i + 1)
	}
	buf[255] = 0
	comp := deflateRoundtrip(t, buf)
	if got := blockType(comp); got != btypeStored {
		t.Errorf("block type = %d, want stored (%d)", got, btypeStored)
	}
}

// nextTestRand is a small xorshift32 generator used only to produce
// reproducible pseudo-random test data, independent of math/rand's
// version-specific sequence.
func nextTestRand(r uint32) uint32 {
	r ^= r << 13
	r ^= r >> 17
	r ^= r << 5
	return r
}

func TestDeflateMultiBlock(t *testing.T) {
	const size = 3 * blockSize // forces multiple blocks
	src := make([]byte, size)
	r := uint32(1)
	for i := range src {
		r = nextTestRand(r)
		if i%37 < 20 {
			// Keep enough local repetition for LZ77 to have something
			// to chew on, rather than pure noise throughout.
			src[i] = byte(i % 17)
		} else {
			src[i] = byte(r >> 24)
		}
	}
	deflateRoundtrip(t, src)
}

func TestDeflateAllLiteralRuns(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 5, 258, 259, 1000} {
		src := bytes.Repeat([]byte{'x'}, n)
		deflateRoundtrip(t, src)
	}
}

func TestDeflateLongRun(t *testing.T) {
	// A run long enough to require multiple length-258 matches chained
	// together.
	src := bytes.Repeat([]byte{'z'}, 1000)
	deflateRoundtrip(t, src)
}

func TestMaxCompressedSizeCoversWorstCase(t *testing.T) {
	for _, n := range []int{0, 1, 100, blockSize, blockSize + 1, 3 * blockSize} {
		src := make([]byte, n)
		r := uint32(12345)
		for i := range src {
			r = nextTestRand(r)
			src[i] = byte(r >> 24)
		}
		dst := make([]byte, MaxCompressedSize(n))
		if _, ok := Deflate(src, dst); !ok {
			t.Errorf("Deflate failed for incompressible %d-byte input sized by MaxCompressedSize", n)
		}
	}
}
