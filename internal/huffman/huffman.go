// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package huffman builds and navigates canonical, length-limited Huffman
// codes for DEFLATE's three alphabets (literal/length, distance, and
// code-length). Canonical code assignment mirrors the sort-by-(length,
// symbol) construction in the teacher's internal/bzip2 tree builder, but
// produces a flat canonical table rather than a binary tree, and a
// two-level (9-bit primary + overflow) decode table rather than a
// bit-by-bit tree walk, per the decode strategy DEFLATE needs.
package huffman

import (
	"errors"
	"sort"

	"github.com/cosnicolaou/goflate/internal/flatetables"
)

// StructuralError is returned when a set of code lengths cannot form a
// valid Huffman code (the Kraft inequality is violated). Named and shaped
// after internal/bzip2/huffman.go's StructuralError in the teacher.
type StructuralError string

func (e StructuralError) Error() string { return "huffman: " + string(e) }

var errTooManySymbols = errors.New("huffman: too many symbols")

const maxCodeLen = 15

// buildCanonicalCodes assigns canonical codes to each symbol given its
// code length (0 meaning "unused"), per RFC 1951 3.2.2, then bit-reverses
// each code using the static Reverse8 table so the result is the literal
// bit pattern DEFLATE emits/consumes LSB-first.
func buildCanonicalCodes(lengths []uint8) (reversed []uint16, maxLen int, err error) {
	if len(lengths) > 1<<16 {
		return nil, 0, errTooManySymbols
	}
	for _, l := range lengths {
		if int(l) > maxCodeLen {
			return nil, 0, StructuralError("code length exceeds 15 bits")
		}
		if int(l) > maxLen {
			maxLen = int(l)
		}
	}
	if maxLen == 0 {
		return make([]uint16, len(lengths)), 0, nil
	}

	var blCount [maxCodeLen + 1]int
	for _, l := range lengths {
		blCount[l]++
	}

	// Kraft inequality: sum of 2^(maxLen-len) over all symbols must not
	// exceed 2^maxLen.
	sum := 0
	limit := 1 << uint(maxLen)
	for l := 1; l <= maxLen; l++ {
		sum += blCount[l] * (1 << uint(maxLen-l))
		if sum > limit {
			return nil, 0, StructuralError("oversubscribed code lengths")
		}
	}

	var nextCode [maxCodeLen + 2]int
	code := 0
	for bits := 1; bits <= maxLen; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}

	codes := make([]uint16, len(lengths))
	reversed = make([]uint16, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		c := uint16(nextCode[l])
		nextCode[l]++
		codes[sym] = c
		reversed[sym] = reverseBits(c, l)
	}
	return reversed, maxLen, nil
}

// reverseBits reverses the low `length` bits of code (length <= 15),
// using the byte-reverse table rather than a per-bit loop.
func reverseBits(code uint16, length uint8) uint16 {
	lo := flatetables.Reverse8[byte(code)]
	hi := flatetables.Reverse8[byte(code>>8)]
	full := uint16(lo)<<8 | uint16(hi)
	return full >> (16 - uint16(length))
}

// Encoder emits symbols of one alphabet as their canonical, bit-reversed
// codes.
type Encoder struct {
	codes []uint16
	lens  []uint8
}

// NewEncoder builds an Encoder from per-symbol code lengths (0 = unused).
func NewEncoder(lengths []uint8) (*Encoder, error) {
	codes, _, err := buildCanonicalCodes(lengths)
	if err != nil {
		return nil, err
	}
	lens := make([]uint8, len(lengths))
	copy(lens, lengths)
	return &Encoder{codes: codes, lens: lens}, nil
}

// Length returns the code length, in bits, assigned to symbol, or 0 if
// the symbol is unused.
func (e *Encoder) Length(symbol int) uint8 {
	return e.lens[symbol]
}

type bitWriter interface {
	WriteBits(value uint32, n uint) bool
}

// Encode writes symbol's code to w. ok is false if symbol is unused or
// the writer ran out of room.
func (e *Encoder) Encode(w bitWriter, symbol int) bool {
	l := e.lens[symbol]
	if l == 0 {
		return false
	}
	return w.WriteBits(uint32(e.codes[symbol]), uint(l))
}

// primary/secondary decode table entry kinds.
type entryKind uint8

const (
	entryInvalid entryKind = iota
	entrySymbol
	entryLink
)

type primaryEntry struct {
	kind   entryKind
	value  int // symbol (entrySymbol) or secondary table index (entryLink)
	length uint8
}

type secondaryEntry struct {
	valid  bool
	value  int
	length uint8
}

const primaryBits = 9

// Decoder is a two-level canonical Huffman decode table: a 9-bit primary
// table resolves codes of length <= 9 directly; longer codes link into a
// secondary table indexed by the remaining bits, per spec.
type Decoder struct {
	primary   [1 << primaryBits]primaryEntry
	secondary [][]secondaryEntry
	maxLen    int
}

// NewDecoder builds a Decoder from per-symbol code lengths (0 = unused).
func NewDecoder(lengths []uint8) (*Decoder, error) {
	codes, maxLen, err := buildCanonicalCodes(lengths)
	if err != nil {
		return nil, err
	}
	d := &Decoder{maxLen: maxLen}
	if maxLen == 0 {
		return d, nil
	}

	linkIndexOf := make(map[int]int)
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		length := uint(l)
		rc := int(codes[sym])
		if length <= primaryBits {
			fillCount := 1 << (primaryBits - length)
			for hi := 0; hi < fillCount; hi++ {
				idx := rc | (hi << length)
				d.primary[idx] = primaryEntry{kind: entrySymbol, value: sym, length: l}
			}
			continue
		}
		prefix := rc & ((1 << primaryBits) - 1)
		linkIdx, ok := linkIndexOf[prefix]
		if !ok {
			linkIdx = len(d.secondary)
			d.secondary = append(d.secondary, make([]secondaryEntry, 1<<uint(maxLen-primaryBits)))
			linkIndexOf[prefix] = linkIdx
			d.primary[prefix] = primaryEntry{kind: entryLink, value: linkIdx}
		}
		extra := length - primaryBits
		secBase := rc >> primaryBits
		fillCount := 1 << (uint(maxLen) - length)
		for hi := 0; hi < fillCount; hi++ {
			idx := secBase | (hi << extra)
			d.secondary[linkIdx][idx] = secondaryEntry{valid: true, value: sym, length: l}
		}
	}
	return d, nil
}

type bitPeeker interface {
	PeekBits(n uint) (uint32, bool)
	Advance(n uint)
}

// peekUpTo returns up to n bits (fewer if the stream is near EOF) and how
// many of the returned bits are real (the rest are implicitly zero).
func peekUpTo(r bitPeeker, n uint) (v uint32, avail uint) {
	for avail = n; avail > 0; avail-- {
		if pv, ok := r.PeekBits(avail); ok {
			return pv, avail
		}
	}
	return 0, 0
}

// DecodeResult reports why Decode could not return a symbol.
type DecodeResult int

const (
	// DecodeOK means a symbol was decoded successfully.
	DecodeOK DecodeResult = iota
	// DecodeInsufficientInput means the stream ended before a full code
	// could be read.
	DecodeInsufficientInput
	// DecodeInvalidStream means the bits read do not form a valid code
	// in this table.
	DecodeInvalidStream
)

// Decode reads one symbol from r.
func (d *Decoder) Decode(r bitPeeker) (symbol int, res DecodeResult) {
	if d.maxLen == 0 {
		return 0, DecodeInvalidStream
	}
	v, avail := peekUpTo(r, uint(d.maxLen))
	if avail == 0 {
		return 0, DecodeInsufficientInput
	}
	primIdx := v & ((1 << primaryBits) - 1)
	pe := d.primary[primIdx]
	switch pe.kind {
	case entrySymbol:
		length := uint(pe.length)
		if length > avail {
			return 0, DecodeInsufficientInput
		}
		r.Advance(length)
		return pe.value, DecodeOK
	case entryLink:
		if avail < primaryBits {
			return 0, DecodeInsufficientInput
		}
		secIdx := int(v >> primaryBits)
		se := d.secondary[pe.value][secIdx]
		if !se.valid {
			if avail >= uint(d.maxLen) {
				return 0, DecodeInvalidStream
			}
			return 0, DecodeInsufficientInput
		}
		length := uint(se.length)
		if length > avail {
			return 0, DecodeInsufficientInput
		}
		r.Advance(length)
		return se.value, DecodeOK
	default:
		if avail >= primaryBits {
			return 0, DecodeInvalidStream
		}
		return 0, DecodeInsufficientInput
	}
}

// symFreq pairs a symbol index with its frequency, used while building a
// length-limited code.
type symFreq struct {
	sym, freq int
}

// huffmanDepths computes the unbounded Huffman tree leaf depths for the
// given (symbol, frequency) pairs by repeatedly merging the two least
// frequent active nodes, in the usual textbook fashion. The alphabets
// DEFLATE uses are small (<=288 symbols) so a simple O(n^2 log n)
// selection is plenty fast and easier to verify than a heap.
func huffmanDepths(present []symFreq) []int {
	n := len(present)
	freq := make([]int, n, n*2)
	for i, p := range present {
		freq[i] = p.freq
	}
	parent := make(map[int]int, n*2)
	active := make([]int, n)
	for i := range active {
		active[i] = i
	}
	for len(active) > 1 {
		sort.Slice(active, func(i, j int) bool {
			if freq[active[i]] != freq[active[j]] {
				return freq[active[i]] < freq[active[j]]
			}
			return active[i] < active[j]
		})
		a, b := active[0], active[1]
		newIdx := len(freq)
		freq = append(freq, freq[a]+freq[b])
		parent[a] = newIdx
		parent[b] = newIdx
		active = append([]int{newIdx}, active[2:]...)
	}
	root := active[0]
	depth := make([]int, n)
	for i := 0; i < n; i++ {
		d, cur := 0, i
		for cur != root {
			cur = parent[cur]
			d++
		}
		depth[i] = d
	}
	return depth
}

// BuildLengths computes a valid canonical code length assignment (each
// length in [0, maxLen]) from symbol frequencies, preferring shorter
// codes for higher-frequency symbols. If the natural Huffman tree would
// exceed maxLen, lengths are redistributed using the standard
// clamp-and-rebalance technique (as in zlib's gen_bitlen): depths beyond
// the limit are clamped, and the resulting over-subscription is resolved
// one unit of 2^-maxLen at a time by taking a code at the longest length
// below maxLen that is in use, lengthening it by one bit, and moving one
// maxLen code up beside it as its sibling.
func BuildLengths(freq []int, maxLen int) []uint8 {
	n := len(freq)
	lengths := make([]uint8, n)

	var present []symFreq
	for i, f := range freq {
		if f > 0 {
			present = append(present, symFreq{i, f})
		}
	}
	m := len(present)
	if m == 0 {
		return lengths
	}
	if m == 1 {
		lengths[present[0].sym] = 1
		return lengths
	}

	depth := huffmanDepths(present)

	bl := make([]int, maxLen+2)
	for _, d := range depth {
		if d > maxLen {
			d = maxLen
		}
		bl[d]++
	}
	// overflow is the Kraft sum's excess over 2^maxLen; each rebalancing
	// step below lowers it by exactly one.
	overflow := -(1 << uint(maxLen))
	for l := 1; l <= maxLen; l++ {
		overflow += bl[l] << uint(maxLen-l)
	}
	for overflow > 0 {
		bits := maxLen - 1
		for bits > 0 && bl[bits] == 0 {
			bits--
		}
		if bits == 0 {
			break
		}
		bl[bits]--
		bl[bits+1] += 2
		bl[maxLen]--
		overflow--
	}
	if bl[maxLen] < 0 {
		bl[maxLen] = 0
	}

	sorted := append([]symFreq(nil), present...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].freq > sorted[j].freq })

	idx := 0
	for l := 1; l <= maxLen && idx < len(sorted); l++ {
		for c := 0; c < bl[l] && idx < len(sorted); c++ {
			lengths[sorted[idx].sym] = uint8(l)
			idx++
		}
	}
	// Any symbols left unassigned due to the defensive break above get
	// the max length; this only happens for pathological frequency
	// inputs that cannot occur from real token statistics.
	for ; idx < len(sorted); idx++ {
		lengths[sorted[idx].sym] = uint8(maxLen)
	}
	return lengths
}
