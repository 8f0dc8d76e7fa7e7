// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package goflate

import (
	"github.com/cosnicolaou/goflate/internal/bitio"
	"github.com/cosnicolaou/goflate/internal/flatetables"
	"github.com/cosnicolaou/goflate/internal/huffman"
)

var (
	staticLitDecoder, staticLitDecoderErr   = huffman.NewDecoder(flatetables.FixedLitLenLengths)
	staticDistDecoder, staticDistDecoderErr = huffman.NewDecoder(flatetables.FixedDistLengths)
)

func init() {
	if staticLitDecoderErr != nil || staticDistDecoderErr != nil {
		panic("goflate: fixed Huffman tables are internally inconsistent")
	}
}

// Inflate decompresses a raw DEFLATE stream from src into dst. srcUsed is
// the number of bytes of src consumed (rounding a partially-used trailing
// byte up to 1); dstUsed is the number of bytes written to dst. res
// reports whether decoding completed, and if not, why: a truncated
// stream and an invalid one are always reported as something other than
// ResultOK, never silently accepted as complete.
func Inflate(src, dst []byte) (srcUsed, dstUsed int, res Result) {
	r := bitio.NewReader(src)
	out := 0
	for {
		bfinal, ok := r.ReadBits(1)
		if !ok {
			return r.BytesUsed(), out, ResultInsufficientInput
		}
		btype, ok := r.ReadBits(2)
		if !ok {
			return r.BytesUsed(), out, ResultInsufficientInput
		}

		var n int
		switch btype {
		case 0:
			n, res = inflateStored(r, dst[out:])
		case 1:
			n, res = inflateHuffman(r, dst, out, staticLitDecoder, staticDistDecoder)
		case 2:
			n, res = inflateDynamic(r, dst, out)
		default:
			return r.BytesUsed(), out, ResultInvalidStream
		}
		out += n
		if res != ResultOK {
			return r.BytesUsed(), out, res
		}
		if bfinal == 1 {
			return r.BytesUsed(), out, ResultOK
		}
	}
}

func inflateStored(r *bitio.Reader, dst []byte) (int, Result) {
	r.AlignToByte()
	lenBits, ok := r.ReadBits(16)
	if !ok {
		return 0, ResultInsufficientInput
	}
	nlenBits, ok := r.ReadBits(16)
	if !ok {
		return 0, ResultInsufficientInput
	}
	if uint16(lenBits) != ^uint16(nlenBits) {
		return 0, ResultInvalidStream
	}
	n := int(uint16(lenBits))
	if r.RemainingBytes() < n {
		return 0, ResultInsufficientInput
	}
	if n > len(dst) {
		return 0, ResultOutputFull
	}
	data, ok := r.ReadBytes(n)
	if !ok {
		return 0, ResultInsufficientInput
	}
	copy(dst, data)
	return n, ResultOK
}

// inflateHuffman decodes one Huffman-coded block into dst starting at
// dst[start], so that back-references can reach output produced by
// earlier blocks. It returns the number of bytes this block produced.
func inflateHuffman(r *bitio.Reader, dst []byte, start int, litDec, distDec *huffman.Decoder) (int, Result) {
	out := start
	for {
		sym, dres := litDec.Decode(r)
		switch dres {
		case huffman.DecodeInsufficientInput:
			return out - start, ResultInsufficientInput
		case huffman.DecodeInvalidStream:
			return out - start, ResultInvalidStream
		}

		switch {
		case sym < 256:
			if out >= len(dst) {
				return out - start, ResultOutputFull
			}
			dst[out] = byte(sym)
			out++
		case sym == 256:
			return out - start, ResultOK
		default:
			idx := sym - 257
			if idx < 0 || idx >= len(flatetables.LengthTable) {
				return out - start, ResultInvalidStream
			}
			e := flatetables.LengthTable[idx]
			length := e.Base
			if e.Extra > 0 {
				extra, ok := r.ReadBits(e.Extra)
				if !ok {
					return out - start, ResultInsufficientInput
				}
				length += int(extra)
			}

			dsym, dres := distDec.Decode(r)
			switch dres {
			case huffman.DecodeInsufficientInput:
				return out - start, ResultInsufficientInput
			case huffman.DecodeInvalidStream:
				return out - start, ResultInvalidStream
			}
			if dsym < 0 || dsym >= len(flatetables.DistTable) {
				return out - start, ResultInvalidStream
			}
			de := flatetables.DistTable[dsym]
			distance := de.Base
			if de.Extra > 0 {
				extra, ok := r.ReadBits(de.Extra)
				if !ok {
					return out - start, ResultInsufficientInput
				}
				distance += int(extra)
			}

			if distance > out {
				return out - start, ResultInvalidStream
			}
			if out+length > len(dst) {
				return out - start, ResultOutputFull
			}
			srcPos := out - distance
			for i := 0; i < length; i++ {
				dst[out] = dst[srcPos]
				out++
				srcPos++
			}
		}
	}
}

func inflateDynamic(r *bitio.Reader, dst []byte, start int) (int, Result) {
	hlit, ok := r.ReadBits(5)
	if !ok {
		return 0, ResultInsufficientInput
	}
	hdist, ok := r.ReadBits(5)
	if !ok {
		return 0, ResultInsufficientInput
	}
	hclen, ok := r.ReadBits(4)
	if !ok {
		return 0, ResultInsufficientInput
	}

	numLit := int(hlit) + 257
	numDist := int(hdist) + 1
	hclenCount := int(hclen) + 4

	clLens := make([]uint8, 19)
	for i := 0; i < hclenCount; i++ {
		v, ok := r.ReadBits(3)
		if !ok {
			return 0, ResultInsufficientInput
		}
		clLens[flatetables.CodeLengthOrder[i]] = uint8(v)
	}
	clDec, err := huffman.NewDecoder(clLens)
	if err != nil {
		return 0, ResultInvalidStream
	}

	total := numLit + numDist
	lens := make([]uint8, 0, total)
	for len(lens) < total {
		sym, dres := clDec.Decode(r)
		switch dres {
		case huffman.DecodeInsufficientInput:
			return 0, ResultInsufficientInput
		case huffman.DecodeInvalidStream:
			return 0, ResultInvalidStream
		}

		switch {
		case sym <= 15:
			lens = append(lens, uint8(sym))
		case sym == 16:
			if len(lens) == 0 {
				return 0, ResultInvalidStream
			}
			extra, ok := r.ReadBits(2)
			if !ok {
				return 0, ResultInsufficientInput
			}
			prev := lens[len(lens)-1]
			for c := int(extra) + 3; c > 0; c-- {
				if len(lens) >= total {
					return 0, ResultInvalidStream
				}
				lens = append(lens, prev)
			}
		case sym == 17:
			extra, ok := r.ReadBits(3)
			if !ok {
				return 0, ResultInsufficientInput
			}
			for c := int(extra) + 3; c > 0; c-- {
				if len(lens) >= total {
					return 0, ResultInvalidStream
				}
				lens = append(lens, 0)
			}
		case sym == 18:
			extra, ok := r.ReadBits(7)
			if !ok {
				return 0, ResultInsufficientInput
			}
			for c := int(extra) + 11; c > 0; c-- {
				if len(lens) >= total {
					return 0, ResultInvalidStream
				}
				lens = append(lens, 0)
			}
		default:
			return 0, ResultInvalidStream
		}
	}

	litDec, err := huffman.NewDecoder(lens[:numLit])
	if err != nil {
		return 0, ResultInvalidStream
	}
	distDec, err := huffman.NewDecoder(lens[numLit:])
	if err != nil {
		return 0, ResultInvalidStream
	}
	return inflateHuffman(r, dst, start, litDec, distDec)
}
