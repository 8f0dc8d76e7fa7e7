// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package goflate

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"time"
)

// Method identifies a ZIP member's compression method.
type Method uint16

const (
	// MethodStored means a member's data is stored verbatim.
	MethodStored Method = 0
	// MethodDeflated means a member's data is a raw DEFLATE stream.
	MethodDeflated Method = 8
)

func (m Method) String() string {
	switch m {
	case MethodStored:
		return "stored"
	case MethodDeflated:
		return "deflated"
	default:
		return "unknown"
	}
}

const (
	eocdrSignature    = 0x06054b50
	cfhSignature      = 0x02014b50
	lfhSignature      = 0x04034b50
	eocdrFixedSize    = 22
	cfhFixedSize      = 46
	lfhFixedSize      = 30
	maxEOCDRCommentSz = 0xFFFF
)

func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// Member describes one entry in a ZIP archive's central directory: its
// metadata and where its (still compressed) data lives in the archive.
type Member struct {
	Name             string
	Comment          string
	ModTime          time.Time
	Method           Method
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	IsDir            bool

	data []byte
}

// CompressedData returns the member's raw, still-compressed bytes.
func (m *Member) CompressedData() []byte {
	return m.data
}

// Open returns a reader over the member's decompressed data.
func (m *Member) Open() (io.Reader, error) {
	switch m.Method {
	case MethodStored:
		if uint32(len(m.data)) != m.UncompressedSize {
			return nil, StructuralError("stored member size does not match uncompressed size")
		}
		return bytes.NewReader(m.data), nil
	case MethodDeflated:
		out := make([]byte, m.UncompressedSize)
		_, n, res := Inflate(m.data, out)
		switch res {
		case ResultOK:
		case ResultInsufficientInput:
			return nil, ErrInsufficientInput
		default:
			return nil, ErrInvalidStream
		}
		if uint32(n) != m.UncompressedSize {
			return nil, StructuralError("decompressed size does not match the central directory")
		}
		return bytes.NewReader(out[:n]), nil
	default:
		return nil, StructuralError("unsupported compression method")
	}
}

// Reader gives access to an already-parsed ZIP archive's central
// directory and members.
type Reader struct {
	comment string
	members []*Member
}

// NewReader parses the central directory of the ZIP archive in data.
// Member payloads are not decompressed until Member.Open is called.
func NewReader(data []byte) (*Reader, error) {
	eocdrPos, ok := findEOCDR(data)
	if !ok {
		return nil, ErrInvalidArchive
	}

	numEntries := int(le16(data[eocdrPos+10:]))
	cdSize := int(le32(data[eocdrPos+12:]))
	cdOffset := int(le32(data[eocdrPos+16:]))
	commentLen := int(le16(data[eocdrPos+20:]))
	comment := string(data[eocdrPos+22 : eocdrPos+22+commentLen])

	if cdOffset < 0 || cdSize < 0 || cdOffset+cdSize > eocdrPos {
		return nil, ErrInvalidArchive
	}

	members := make([]*Member, 0, numEntries)
	pos := cdOffset
	for i := 0; i < numEntries; i++ {
		m, next, err := readCentralFileHeader(data, pos)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
		pos = next
	}

	return &Reader{comment: comment, members: members}, nil
}

// findEOCDR backward-scans data for the End Of Central Directory Record,
// requiring that it (plus its comment) end exactly at data's end, as
// mandated by the ZIP format.
func findEOCDR(data []byte) (int, bool) {
	if len(data) < eocdrFixedSize {
		return 0, false
	}
	minStart := 0
	if len(data) > eocdrFixedSize+maxEOCDRCommentSz {
		minStart = len(data) - eocdrFixedSize - maxEOCDRCommentSz
	}
	for p := len(data) - eocdrFixedSize; p >= minStart; p-- {
		if le32(data[p:p+4]) != eocdrSignature {
			continue
		}
		commentLen := int(le16(data[p+20 : p+22]))
		if p+eocdrFixedSize+commentLen == len(data) {
			return p, true
		}
	}
	return 0, false
}

func readCentralFileHeader(data []byte, pos int) (m *Member, next int, err error) {
	if pos < 0 || pos+cfhFixedSize > len(data) {
		return nil, 0, ErrInvalidArchive
	}
	if le32(data[pos:pos+4]) != cfhSignature {
		return nil, 0, ErrInvalidArchive
	}

	method := Method(le16(data[pos+10 : pos+12]))
	modTime := le16(data[pos+12 : pos+14])
	modDate := le16(data[pos+14 : pos+16])
	crc := le32(data[pos+16 : pos+20])
	compSize := le32(data[pos+20 : pos+24])
	uncompSize := le32(data[pos+24 : pos+28])
	nameLen := int(le16(data[pos+28 : pos+30]))
	extraLen := int(le16(data[pos+30 : pos+32]))
	commentLen := int(le16(data[pos+32 : pos+34]))
	lfhOffset := int(le32(data[pos+42 : pos+46]))

	nameStart := pos + cfhFixedSize
	commentStart := nameStart + nameLen + extraLen
	commentEnd := commentStart + commentLen
	if nameStart < 0 || commentEnd > len(data) || commentEnd < nameStart {
		return nil, 0, ErrInvalidArchive
	}
	name := string(data[nameStart : nameStart+nameLen])
	comment := string(data[commentStart:commentEnd])

	if method == MethodStored && compSize != uncompSize {
		return nil, 0, ErrInvalidArchive
	}

	dataStart, dataEnd, lfhMethod, err := localFileHeaderRange(data, lfhOffset, compSize)
	if err != nil {
		return nil, 0, err
	}
	if lfhMethod != method {
		return nil, 0, ErrInvalidArchive
	}

	m = &Member{
		Name:             name,
		Comment:          comment,
		ModTime:          dosTimeToTime(modDate, modTime),
		Method:           method,
		CRC32:            crc,
		CompressedSize:   compSize,
		UncompressedSize: uncompSize,
		IsDir:            strings.HasSuffix(name, "/"),
		data:             data[dataStart:dataEnd],
	}
	return m, commentEnd, nil
}

func localFileHeaderRange(data []byte, lfhOffset int, compSize uint32) (start, end int, method Method, err error) {
	if lfhOffset < 0 || lfhOffset+lfhFixedSize > len(data) {
		return 0, 0, 0, ErrInvalidArchive
	}
	if le32(data[lfhOffset:lfhOffset+4]) != lfhSignature {
		return 0, 0, 0, ErrInvalidArchive
	}
	method = Method(le16(data[lfhOffset+8 : lfhOffset+10]))
	nameLen := int(le16(data[lfhOffset+26 : lfhOffset+28]))
	extraLen := int(le16(data[lfhOffset+28 : lfhOffset+30]))

	start = lfhOffset + lfhFixedSize + nameLen + extraLen
	end = start + int(compSize)
	if start < lfhOffset || end < start || end > len(data) {
		return 0, 0, 0, ErrInvalidArchive
	}
	return start, end, method, nil
}

func dosTimeToTime(date, t uint16) time.Time {
	year := int(date>>9) + 1980
	month := int((date >> 5) & 0xF)
	day := int(date & 0x1F)
	if month < 1 {
		month = 1
	}
	if day < 1 {
		day = 1
	}
	hour := int(t >> 11)
	minute := int((t >> 5) & 0x3F)
	second := int(t&0x1F) * 2
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
}

// Comment returns the archive-level comment.
func (r *Reader) Comment() string { return r.comment }

// NumMembers returns the number of members in the archive.
func (r *Reader) NumMembers() int { return len(r.members) }

// Members returns every member in central-directory order.
func (r *Reader) Members() []*Member { return r.members }
