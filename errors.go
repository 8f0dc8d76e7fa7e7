// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package goflate

import "errors"

// Result reports the outcome of a buffer-to-buffer Inflate call: ok,
// truncated input, invalid stream, or output too small.
type Result int

const (
	// ResultOK means the stream was fully and validly decoded.
	ResultOK Result = iota
	// ResultInsufficientInput means src ended before a complete stream
	// could be decoded.
	ResultInsufficientInput
	// ResultInvalidStream means src contains bytes that cannot be a
	// valid DEFLATE stream (a bad block type, an oversubscribed Huffman
	// table, a back-reference past the start of output, and so on).
	ResultInvalidStream
	// ResultOutputFull means dst was not large enough to hold the
	// decoded data.
	ResultOutputFull
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultInsufficientInput:
		return "insufficient input"
	case ResultInvalidStream:
		return "invalid stream"
	case ResultOutputFull:
		return "output full"
	default:
		return "unknown result"
	}
}

// Sentinel errors returned by the archive API (Write, Member.Open and the
// Reader constructor), where a Result value would be the wrong shape for
// the call site.
var (
	// ErrInvalidStream is returned when compressed data fails to decode.
	ErrInvalidStream = errors.New("goflate: invalid compressed stream")
	// ErrInsufficientInput is returned when compressed data ends early.
	ErrInsufficientInput = errors.New("goflate: truncated compressed stream")
	// ErrOutputFull is returned when a destination buffer is smaller
	// than the data to be written to it.
	ErrOutputFull = errors.New("goflate: destination buffer too small")
	// ErrInvalidArchive is returned by NewReader when data is not a
	// well-formed ZIP archive.
	ErrInvalidArchive = errors.New("goflate: not a valid zip archive")
)

// StructuralError reports a specific defect found while parsing a ZIP
// archive's directory structures, named and shaped after the teacher's
// internal/bzip2.StructuralError.
type StructuralError string

func (e StructuralError) Error() string { return "goflate: " + string(e) }
