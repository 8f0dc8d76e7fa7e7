// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package goflate

import (
	"encoding/binary"
	"strings"
	"time"
)

// WriteMember is one entry to be written to a ZIP archive.
type WriteMember struct {
	Name    string
	Data    []byte
	ModTime time.Time
}

// Progress reports the outcome of compressing a single member, sent on
// the channel supplied via WithProgress as Write processes each member
// in turn.
type Progress struct {
	Name             string
	UncompressedSize uint32
	CompressedSize   uint32
}

type writeOpts struct {
	comment  string
	progress chan<- Progress
}

// WriteOption configures Write.
type WriteOption func(*writeOpts)

// WithComment sets the archive-level comment.
func WithComment(c string) WriteOption {
	return func(o *writeOpts) { o.comment = c }
}

// WithProgress requests a Progress value on ch after each member is
// compressed. Write does not close ch.
func WithProgress(ch chan<- Progress) WriteOption {
	return func(o *writeOpts) { o.progress = ch }
}

const (
	// externalAttrsFile mirrors hwzip's writer convention: Unix mode
	// 0100644 in the external attributes' high word.
	externalAttrsFile = 0100644 << 16
	// externalAttrsDir additionally sets the MS-DOS directory bit in
	// the low word, as hwzip does.
	externalAttrsDir = (040755 << 16) | 0x10

	versionMadeBy          = 0x031e
	versionNeededStored    = 0x000a
	versionNeededDeflated  = 0x0014
	zipDOSEpochYear        = 1980
)

// MaxSize returns an upper bound, in bytes, on the size of the archive
// Write would produce for members and comment.
func MaxSize(members []WriteMember, comment string) int {
	total := eocdrFixedSize + len(comment)
	for _, m := range members {
		// Write stores any member DEFLATE does not shrink, so no payload
		// is larger than its raw data.
		total += lfhFixedSize + len(m.Name) + len(m.Data)
		total += cfhFixedSize + len(m.Name)
	}
	return total
}

// Write assembles a ZIP archive from members into dst, returning the
// number of bytes written. Each member is compressed with DEFLATE
// unless that would not shrink it, in which case it is stored. A
// trailing "/" in a member's Name with no data marks it as a
// directory entry.
func Write(dst []byte, members []WriteMember, opts ...WriteOption) (written int, err error) {
	var o writeOpts
	for _, opt := range opts {
		opt(&o)
	}

	type placed struct {
		m          WriteMember
		offset     int
		method     Method
		comp       []byte
		isDir      bool
		crc        uint32
		uncompSize uint32
	}
	placements := make([]placed, 0, len(members))

	pos := 0
	for _, m := range members {
		isDir := strings.HasSuffix(m.Name, "/") && len(m.Data) == 0
		if pos+lfhFixedSize+len(m.Name) > len(dst) {
			return 0, ErrOutputFull
		}
		offset := pos

		var method Method
		var comp []byte
		var crc uint32
		var uncompSize uint32
		if isDir {
			method = MethodStored
		} else {
			h := NewHash()
			h.Write(m.Data)
			crc = h.Sum32()
			uncompSize = uint32(len(m.Data))
			candidate := make([]byte, MaxCompressedSize(len(m.Data)))
			n, ok := Deflate(m.Data, candidate)
			if ok && n < len(m.Data) {
				method = MethodDeflated
				comp = candidate[:n]
			} else {
				method = MethodStored
				comp = m.Data
			}
		}

		if pos+lfhFixedSize+len(m.Name)+len(comp) > len(dst) {
			return 0, ErrOutputFull
		}

		date, t := timeToDOSDate(m.ModTime)
		binary.LittleEndian.PutUint32(dst[pos:], lfhSignature)
		pos += 4
		putLE16(dst, &pos, versionNeeded(method))
		putLE16(dst, &pos, 0)
		putLE16(dst, &pos, uint16(method))
		putLE16(dst, &pos, t)
		putLE16(dst, &pos, date)
		putLE32(dst, &pos, crc)
		putLE32(dst, &pos, uint32(len(comp)))
		putLE32(dst, &pos, uncompSize)
		putLE16(dst, &pos, uint16(len(m.Name)))
		putLE16(dst, &pos, 0)
		pos += copy(dst[pos:], m.Name)
		pos += copy(dst[pos:], comp)

		placements = append(placements, placed{
			m: m, offset: offset, method: method, comp: comp,
			isDir: isDir, crc: crc, uncompSize: uncompSize,
		})

		if o.progress != nil {
			o.progress <- Progress{
				Name:             m.Name,
				UncompressedSize: uncompSize,
				CompressedSize:   uint32(len(comp)),
			}
		}
	}

	cdStart := pos
	for _, p := range placements {
		if pos+cfhFixedSize+len(p.m.Name) > len(dst) {
			return 0, ErrOutputFull
		}
		date, t := timeToDOSDate(p.m.ModTime)
		binary.LittleEndian.PutUint32(dst[pos:], cfhSignature)
		pos += 4
		putLE16(dst, &pos, versionMadeBy)
		putLE16(dst, &pos, versionNeeded(p.method))
		putLE16(dst, &pos, 0)
		putLE16(dst, &pos, uint16(p.method))
		putLE16(dst, &pos, t)
		putLE16(dst, &pos, date)
		putLE32(dst, &pos, p.crc)
		putLE32(dst, &pos, uint32(len(p.comp)))
		putLE32(dst, &pos, p.uncompSize)
		putLE16(dst, &pos, uint16(len(p.m.Name)))
		putLE16(dst, &pos, 0)
		putLE16(dst, &pos, 0)
		putLE16(dst, &pos, 0)
		putLE16(dst, &pos, 0)
		if p.isDir {
			putLE32(dst, &pos, externalAttrsDir)
		} else {
			putLE32(dst, &pos, externalAttrsFile)
		}
		putLE32(dst, &pos, uint32(p.offset))
		pos += copy(dst[pos:], p.m.Name)
	}
	cdSize := pos - cdStart

	if pos+eocdrFixedSize+len(o.comment) > len(dst) {
		return 0, ErrOutputFull
	}
	binary.LittleEndian.PutUint32(dst[pos:], eocdrSignature)
	pos += 4
	putLE16(dst, &pos, 0)
	putLE16(dst, &pos, 0)
	putLE16(dst, &pos, uint16(len(members)))
	putLE16(dst, &pos, uint16(len(members)))
	putLE32(dst, &pos, uint32(cdSize))
	putLE32(dst, &pos, uint32(cdStart))
	putLE16(dst, &pos, uint16(len(o.comment)))
	pos += copy(dst[pos:], o.comment)

	return pos, nil
}

func versionNeeded(m Method) uint16 {
	if m == MethodDeflated {
		return versionNeededDeflated
	}
	return versionNeededStored
}

func putLE16(dst []byte, pos *int, v uint16) {
	binary.LittleEndian.PutUint16(dst[*pos:], v)
	*pos += 2
}

func putLE32(dst []byte, pos *int, v uint32) {
	binary.LittleEndian.PutUint32(dst[*pos:], v)
	*pos += 4
}

func timeToDOSDate(t time.Time) (date, tm uint16) {
	if t.IsZero() {
		t = time.Date(zipDOSEpochYear, time.January, 1, 0, 0, 0, 0, time.Local)
	}
	year := t.Year()
	if year < zipDOSEpochYear {
		year = zipDOSEpochYear
	}
	date = uint16(year-zipDOSEpochYear)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	tm = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, tm
}
