// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package lz77 implements the sliding-window match finder DEFLATE's
// compressor uses: a hash-chain index over 3-byte prefixes, walked
// nearest-candidate-first up to a bounded chain depth. No example repo
// in the retrieval pack implements LZ77; the hash-chain design here
// follows the algorithm RFC 1951 assumes compressors use, sized the way
// the teacher sizes its own per-block workspace (one flat, reusable
// table allocated once per input rather than per call).
package lz77

const (
	// MinMatch is the shortest back-reference DEFLATE can encode.
	MinMatch = 3
	// MaxMatch is the longest back-reference a single length/distance
	// pair can encode.
	MaxMatch = 258
	// WindowSize is DEFLATE's sliding window: a match's distance can
	// never exceed this.
	WindowSize = 32768

	// DefaultMaxChainLength bounds how many candidates InsertAndFind
	// walks per call before giving up on a longer match. Larger values
	// find better matches at a higher CPU cost; this default matches
	// the "good enough, fast enough" compromise commonly used by
	// general-purpose DEFLATE encoders at a medium compression level.
	DefaultMaxChainLength = 128

	hashBits = 15
	hashSize = 1 << hashBits
)

// Matcher finds back-reference candidates within window using a
// hash-chain index over every 3-byte prefix inserted so far.
type Matcher struct {
	window   []byte
	head     []int32 // hash -> most recently inserted position, or -1
	prev     []int32 // position -> previous position sharing its hash
	maxChain int
}

// NewMatcher returns a Matcher over window. The window is the full
// buffer positions will be inserted into and matched against; the
// matcher does not copy it.
func NewMatcher(window []byte) *Matcher {
	head := make([]int32, hashSize)
	for i := range head {
		head[i] = -1
	}
	return &Matcher{
		window:   window,
		head:     head,
		prev:     make([]int32, len(window)),
		maxChain: DefaultMaxChainLength,
	}
}

// SetMaxChainLength overrides DefaultMaxChainLength.
func (m *Matcher) SetMaxChainLength(n int) {
	m.maxChain = n
}

func hash3(b []byte) uint32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return (v * 2654435761) >> (32 - hashBits)
}

// Insert records pos in the hash-chain index without searching for a
// match. Used to index positions the encoder decided not to (or could
// not) call InsertAndFind on, e.g. the interior of an accepted match.
func (m *Matcher) Insert(pos int) {
	if pos+MinMatch > len(m.window) {
		return
	}
	h := hash3(m.window[pos:])
	m.prev[pos] = m.head[h]
	m.head[h] = int32(pos)
}

// InsertAndFind indexes pos and returns the longest match found ending
// before maxPos, scanning nearest candidates first so that ties resolve
// to the smallest distance. length is 0 if no match of at least
// MinMatch bytes exists.
func (m *Matcher) InsertAndFind(pos, maxPos int) (length, distance int) {
	if pos+MinMatch > len(m.window) {
		m.Insert(pos)
		return 0, 0
	}

	limit := maxPos
	if limit > len(m.window) {
		limit = len(m.window)
	}
	maxLen := limit - pos
	if maxLen > MaxMatch {
		maxLen = MaxMatch
	}

	h := hash3(m.window[pos:])
	cand := m.head[h]
	bestLen := 0
	bestDist := 0
	for chain := m.maxChain; cand >= 0 && chain > 0; chain-- {
		d := pos - int(cand)
		if d > WindowSize {
			break
		}
		l := matchLength(m.window, int(cand), pos, maxLen)
		if l > bestLen {
			bestLen = l
			bestDist = d
			if bestLen >= maxLen {
				break
			}
		}
		cand = m.prev[cand]
	}

	m.prev[pos] = m.head[h]
	m.head[h] = int32(pos)

	if bestLen < MinMatch {
		return 0, 0
	}
	return bestLen, bestDist
}

func matchLength(window []byte, a, b, maxLen int) int {
	n := 0
	for n < maxLen && window[a+n] == window[b+n] {
		n++
	}
	return n
}
