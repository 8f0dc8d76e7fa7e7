// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package flatetables holds the static tables defined by RFC 1951: the
// fixed (static) Huffman code lengths, the length/distance base+extra-bit
// tables, the code-length alphabet transmission order, and a bit-reverse
// lookup table used to turn canonical (MSB-first) Huffman codes into the
// LSB-first bit patterns DEFLATE actually emits.
//
// Layout mirrors the reference hwzip tables.h: a reverse8 table, the two
// fixed-length tables, a base+extra-bits table per alphabet, and the
// inverse (length/distance -> symbol) lookup tables used by the encoder.
package flatetables

// Reverse8 maps a byte to its bit-reversed value.
var Reverse8 [256]byte

func init() {
	for i := 0; i < 256; i++ {
		var r byte
		v := byte(i)
		for b := 0; b < 8; b++ {
			r = (r << 1) | (v & 1)
			v >>= 1
		}
		Reverse8[i] = r
	}
}

// FixedLitLenLengths are the code lengths used by a static Huffman block
// for the 288-symbol literal/length alphabet (RFC 1951 3.2.6).
var FixedLitLenLengths = func() []uint8 {
	l := make([]uint8, 288)
	for i := 0; i <= 143; i++ {
		l[i] = 8
	}
	for i := 144; i <= 255; i++ {
		l[i] = 9
	}
	for i := 256; i <= 279; i++ {
		l[i] = 7
	}
	for i := 280; i <= 287; i++ {
		l[i] = 8
	}
	return l
}()

// FixedDistLengths are the code lengths used by a static Huffman block for
// the 32-symbol distance alphabet: all 5 bits.
var FixedDistLengths = func() []uint8 {
	l := make([]uint8, 32)
	for i := range l {
		l[i] = 5
	}
	return l
}()

// CodeLengthOrder is the order in which code-length-alphabet code lengths
// are transmitted in a dynamic block header (RFC 1951 3.2.7).
var CodeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// LenBaseAndExtra holds, for litlen symbol (257+i), the base match length
// and number of extra bits to read following the symbol.
type LenBaseAndExtra struct {
	Base  int
	Extra uint
}

// LengthTable covers litlen symbols 257..285 (index 0..28).
var LengthTable = [29]LenBaseAndExtra{
	{3, 0}, {4, 0}, {5, 0}, {6, 0}, {7, 0}, {8, 0}, {9, 0}, {10, 0},
	{11, 1}, {13, 1}, {15, 1}, {17, 1},
	{19, 2}, {23, 2}, {27, 2}, {31, 2},
	{35, 3}, {43, 3}, {51, 3}, {59, 3},
	{67, 4}, {83, 4}, {99, 4}, {115, 4},
	{131, 5}, {163, 5}, {195, 5}, {227, 5},
	{258, 0},
}

// DistBaseAndExtra holds, for dist symbol i, the base distance and number
// of extra bits to read following the symbol.
type DistBaseAndExtra struct {
	Base  int
	Extra uint
}

// DistTable covers dist symbols 0..29.
var DistTable = [30]DistBaseAndExtra{
	{1, 0}, {2, 0}, {3, 0}, {4, 0},
	{5, 1}, {7, 1},
	{9, 2}, {13, 2},
	{17, 3}, {25, 3},
	{33, 4}, {49, 4},
	{65, 5}, {97, 5},
	{129, 6}, {193, 6},
	{257, 7}, {385, 7},
	{513, 8}, {769, 8},
	{1025, 9}, {1537, 9},
	{2049, 10}, {3073, 10},
	{4097, 11}, {6145, 11},
	{8193, 12}, {12289, 12},
	{16385, 13}, {24577, 13},
}

// Len2Symbol maps a match length (3..258) to its litlen symbol (257..285).
var Len2Symbol [259]int

// Distance2Symbol maps a match distance (1..32768) to its dist symbol
// (0..29).
var Distance2Symbol [32769]int

func init() {
	for sym, e := range LengthTable {
		for l := e.Base; l < e.Base+(1<<e.Extra); l++ {
			Len2Symbol[l] = 257 + sym
		}
	}
	for sym, e := range DistTable {
		for d := e.Base; d < e.Base+(1<<e.Extra); d++ {
			Distance2Symbol[d] = sym
		}
	}
}
