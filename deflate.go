// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package goflate

import (
	"github.com/cosnicolaou/goflate/internal/bitio"
	"github.com/cosnicolaou/goflate/internal/flatetables"
	"github.com/cosnicolaou/goflate/internal/huffman"
	"github.com/cosnicolaou/goflate/internal/lz77"
)

// blockSize is both the LZ77 window size and the target size of a single
// DEFLATE block. Using the window size as the block boundary keeps block
// segmentation trivial (every block can reference all of its own bytes)
// at the cost of occasionally missing a match that would have crossed a
// boundary; hwzip makes the same trade-off.
const blockSize = lz77.WindowSize

const (
	btypeStored  = 0
	btypeStatic  = 1
	btypeDynamic = 2
)

// MaxCompressedSize returns a safe upper bound, in bytes, on what Deflate
// can produce for an input of length srcLen. Callers size dst from this
// before calling Deflate.
func MaxCompressedSize(srcLen int) int {
	if srcLen == 0 {
		return 8
	}
	numBlocks := (srcLen + blockSize - 1) / blockSize
	// Worst case, every block falls back to stored: a 5-byte header
	// (3-bit block header rounded up, plus 4 bytes of len/nlen) per
	// block, plus a few bytes of slack for the final byte alignment.
	return srcLen + numBlocks*5 + 16
}

type token struct {
	isMatch  bool
	literal  byte
	length   int
	distance int
}

// Deflate compresses src into dst, returning the number of bytes written.
// ok is false if dst was too small; callers should size dst using
// MaxCompressedSize.
func Deflate(src, dst []byte) (written int, ok bool) {
	w := bitio.NewWriter(dst)
	if len(src) == 0 {
		return deflateEmpty(w)
	}

	m := lz77.NewMatcher(src)
	for start := 0; start < len(src); start += blockSize {
		end := start + blockSize
		if end > len(src) {
			end = len(src)
		}
		final := end == len(src)
		tokens := tokenizeRange(m, src, start, end)
		if !encodeBlock(w, src[start:end], tokens, final) {
			return 0, false
		}
	}
	n, ok := w.Flush()
	return n, ok
}

func deflateEmpty(w *bitio.Writer) (int, bool) {
	// A single static block holding only the end-of-block symbol, whose
	// fixed code is seven zero bits.
	if !writeBlockHeader(w, true, btypeStatic) || !w.WriteBits(0, 7) {
		return 0, false
	}
	return w.Flush()
}

func writeBlockHeader(w *bitio.Writer, final bool, btype uint32) bool {
	var bfinal uint32
	if final {
		bfinal = 1
	}
	return w.WriteBits(bfinal|(btype<<1), 3)
}

// tokenizeRange runs LZ77 matching with one-position lazy lookahead over
// window[start:end], inserting every covered position into m so matches
// in later blocks can reference this one.
func tokenizeRange(m *lz77.Matcher, window []byte, start, end int) []token {
	var tokens []token
	pos := start
	var pending token
	hasPending := false

	for pos < end {
		var length, distance int
		if hasPending {
			length, distance = pending.length, pending.distance
			hasPending = false
		} else {
			length, distance = m.InsertAndFind(pos, end)
		}

		if length < lz77.MinMatch {
			tokens = append(tokens, token{literal: window[pos]})
			pos++
			continue
		}

		insertFrom := 1
		if pos+1 < end {
			l2, d2 := m.InsertAndFind(pos+1, end)
			insertFrom = 2
			if l2 > length {
				tokens = append(tokens, token{literal: window[pos]})
				pos++
				pending = token{isMatch: true, length: l2, distance: d2}
				hasPending = true
				continue
			}
		}

		tokens = append(tokens, token{isMatch: true, length: length, distance: distance})
		for i := insertFrom; i < length; i++ {
			m.Insert(pos + i)
		}
		pos += length
	}
	return tokens
}

func tokenFrequencies(tokens []token) (litFreq [288]int, distFreq [30]int) {
	litFreq[256] = 1
	for _, t := range tokens {
		if !t.isMatch {
			litFreq[t.literal]++
			continue
		}
		litFreq[flatetables.Len2Symbol[t.length]]++
		distFreq[flatetables.Distance2Symbol[t.distance]]++
	}
	return
}

func bitCost(tokens []token, litLens, distLens []uint8) int {
	cost := int(litLens[256])
	for _, t := range tokens {
		if !t.isMatch {
			cost += int(litLens[t.literal])
			continue
		}
		sym := flatetables.Len2Symbol[t.length]
		cost += int(litLens[sym]) + int(flatetables.LengthTable[sym-257].Extra)
		dsym := flatetables.Distance2Symbol[t.distance]
		cost += int(distLens[dsym]) + int(flatetables.DistTable[dsym].Extra)
	}
	return cost
}

func ensureAtLeastOneDistanceCode(lens []uint8) []uint8 {
	for _, l := range lens {
		if l != 0 {
			return lens
		}
	}
	out := make([]uint8, len(lens))
	copy(out, lens)
	out[0] = 1
	return out
}

func trimLengths(lens []uint8, minCount int) []uint8 {
	n := len(lens)
	for n > minCount && lens[n-1] == 0 {
		n--
	}
	return lens[:n]
}

// dynamicPlan holds everything needed to both cost and, if chosen, emit a
// dynamic Huffman block, so the work of building the code-length table is
// never done twice.
type dynamicPlan struct {
	litLens, distLens       []uint8
	hlit, hdist, hclenCount int
	orderedClLens           []uint8
	clLens                  []uint8
	clSymbols               []int
	clExtraVal              []uint16
	clExtraBits             []uint8
	cost                    int
}

func buildDynamicPlan(tokens []token) *dynamicPlan {
	litFreq, distFreq := tokenFrequencies(tokens)
	litLens := huffman.BuildLengths(litFreq[:], 15)
	distLens := ensureAtLeastOneDistanceCode(huffman.BuildLengths(distFreq[:], 15))

	litTrim := trimLengths(litLens, 257)
	distTrim := trimLengths(distLens, 1)

	combined := make([]uint8, 0, len(litTrim)+len(distTrim))
	combined = append(combined, litTrim...)
	combined = append(combined, distTrim...)

	clSymbols, clExtraVal, clExtraBits := rleCodeLengths(combined)

	var clFreq [19]int
	for _, s := range clSymbols {
		clFreq[s]++
	}
	clLens := huffman.BuildLengths(clFreq[:], 7)

	ordered := make([]uint8, 19)
	for i, sym := range flatetables.CodeLengthOrder {
		ordered[i] = clLens[sym]
	}
	hclenCount := 19
	for hclenCount > 4 && ordered[hclenCount-1] == 0 {
		hclenCount--
	}

	headerBits := 14 + hclenCount*3
	for i, sym := range clSymbols {
		headerBits += int(clLens[sym]) + int(clExtraBits[i])
	}

	p := &dynamicPlan{
		litLens:     litLens,
		distLens:    distLens,
		hlit:        len(litTrim) - 257,
		hdist:       len(distTrim) - 1,
		hclenCount:  hclenCount,
		orderedClLens: ordered,
		clLens:      clLens,
		clSymbols:   clSymbols,
		clExtraVal:  clExtraVal,
		clExtraBits: clExtraBits,
	}
	p.cost = headerBits + bitCost(tokens, litLens, distLens)
	return p
}

// rleCodeLengths run-length encodes a sequence of Huffman code lengths
// using DEFLATE's code-length alphabet (RFC 1951 3.2.7): literal values
// 0-15, "repeat previous 3-6 times" (16), "repeat zero 3-10 times" (17),
// and "repeat zero 11-138 times" (18).
func rleCodeLengths(seq []uint8) (symbols []int, extraVal []uint16, extraBits []uint8) {
	i := 0
	for i < len(seq) {
		v := seq[i]
		run := 1
		for i+run < len(seq) && seq[i+run] == v {
			run++
		}
		if v == 0 {
			remaining := run
			for remaining > 0 {
				switch {
				case remaining >= 11:
					c := remaining
					if c > 138 {
						c = 138
					}
					symbols = append(symbols, 18)
					extraVal = append(extraVal, uint16(c-11))
					extraBits = append(extraBits, 7)
					remaining -= c
				case remaining >= 3:
					c := remaining
					if c > 10 {
						c = 10
					}
					symbols = append(symbols, 17)
					extraVal = append(extraVal, uint16(c-3))
					extraBits = append(extraBits, 3)
					remaining -= c
				default:
					symbols = append(symbols, 0)
					extraVal = append(extraVal, 0)
					extraBits = append(extraBits, 0)
					remaining--
				}
			}
			i += run
			continue
		}

		symbols = append(symbols, int(v))
		extraVal = append(extraVal, 0)
		extraBits = append(extraBits, 0)
		remaining := run - 1
		for remaining > 0 {
			if remaining < 3 {
				symbols = append(symbols, int(v))
				extraVal = append(extraVal, 0)
				extraBits = append(extraBits, 0)
				remaining--
				continue
			}
			c := remaining
			if c > 6 {
				c = 6
			}
			symbols = append(symbols, 16)
			extraVal = append(extraVal, uint16(c-3))
			extraBits = append(extraBits, 2)
			remaining -= c
		}
		i += run
	}
	return symbols, extraVal, extraBits
}

func encodeBlock(w *bitio.Writer, blockBytes []byte, tokens []token, final bool) bool {
	costStored := 3 + 7 + 32 + len(blockBytes)*8
	costStatic := 3 + bitCost(tokens, flatetables.FixedLitLenLengths, flatetables.FixedDistLengths)
	plan := buildDynamicPlan(tokens)
	costDynamic := 3 + plan.cost

	// Ties prefer static over dynamic over stored: start from static and
	// only move to a less-preferred type on a strictly lower cost, so an
	// exact-cost tie never displaces a more-preferred type.
	best := costStatic
	sel := btypeStatic
	if costDynamic < best {
		best = costDynamic
		sel = btypeDynamic
	}
	if costStored < best {
		sel = btypeStored
	}

	switch sel {
	case btypeStored:
		return emitStoredBlock(w, blockBytes, final)
	case btypeStatic:
		return emitHuffmanBlock(w, tokens, final, btypeStatic, flatetables.FixedLitLenLengths, flatetables.FixedDistLengths, nil)
	default:
		return emitHuffmanBlock(w, tokens, final, btypeDynamic, plan.litLens, plan.distLens, plan)
	}
}

func emitStoredBlock(w *bitio.Writer, blockBytes []byte, final bool) bool {
	if !writeBlockHeader(w, final, btypeStored) {
		return false
	}
	if !w.AlignToByte() {
		return false
	}
	n := len(blockBytes)
	if !w.WriteBits(uint32(uint16(n)), 16) || !w.WriteBits(uint32(uint16(^uint16(n))), 16) {
		return false
	}
	return w.WriteBytes(blockBytes)
}

func emitHuffmanBlock(w *bitio.Writer, tokens []token, final bool, btype uint32, litLens, distLens []uint8, plan *dynamicPlan) bool {
	if !writeBlockHeader(w, final, btype) {
		return false
	}
	if plan != nil {
		if !writeDynamicHeader(w, plan) {
			return false
		}
	}
	litEnc, err := huffman.NewEncoder(litLens)
	if err != nil {
		return false
	}
	distEnc, err := huffman.NewEncoder(distLens)
	if err != nil {
		return false
	}
	for _, t := range tokens {
		if !t.isMatch {
			if !litEnc.Encode(w, int(t.literal)) {
				return false
			}
			continue
		}
		sym := flatetables.Len2Symbol[t.length]
		if !litEnc.Encode(w, sym) {
			return false
		}
		e := flatetables.LengthTable[sym-257]
		if e.Extra > 0 && !w.WriteBits(uint32(t.length-e.Base), e.Extra) {
			return false
		}
		dsym := flatetables.Distance2Symbol[t.distance]
		if !distEnc.Encode(w, dsym) {
			return false
		}
		de := flatetables.DistTable[dsym]
		if de.Extra > 0 && !w.WriteBits(uint32(t.distance-de.Base), de.Extra) {
			return false
		}
	}
	return litEnc.Encode(w, 256)
}

func writeDynamicHeader(w *bitio.Writer, p *dynamicPlan) bool {
	if !w.WriteBits(uint32(p.hlit), 5) || !w.WriteBits(uint32(p.hdist), 5) || !w.WriteBits(uint32(p.hclenCount-4), 4) {
		return false
	}
	for i := 0; i < p.hclenCount; i++ {
		if !w.WriteBits(uint32(p.orderedClLens[i]), 3) {
			return false
		}
	}
	clEnc, err := huffman.NewEncoder(p.clLens)
	if err != nil {
		return false
	}
	for i, sym := range p.clSymbols {
		if !clEnc.Encode(w, sym) {
			return false
		}
		if p.clExtraBits[i] > 0 && !w.WriteBits(uint32(p.clExtraVal[i]), uint(p.clExtraBits[i])) {
			return false
		}
	}
	return true
}
