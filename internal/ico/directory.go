// Package ico reads and writes Windows ICO containers.
//
// A container is a 6-byte header, a table of 16-byte directory records and
// the image payloads those records point at. Payloads are either PNG streams
// or legacy device-independent bitmap fragments; the two are told apart by
// content, not by the directory's bit depth.
package ico

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	headerLen = 6
	recordLen = 16

	// singleDataOffset is where the payload of a one-entry container starts.
	singleDataOffset = headerLen + recordLen

	typeIcon = 1

	maxDimension = 256
)

// Entry is one record of the directory table. Width and Height are in
// pixels, 1 to 256.
type Entry struct {
	Width        int
	Height       int
	ColorCount   uint8
	Reserved     uint8
	ColorPlanes  uint16
	BitsPerPixel uint16
	Size         uint32
	Offset       uint32
}

// End is the absolute offset one past the entry's payload.
func (e Entry) End() int64 {
	return int64(e.Offset) + int64(e.Size)
}

func (e Entry) valid() bool {
	return e.Offset != 0 && e.Size != 0
}

func dimFromWire(b byte) int {
	if b == 0 {
		return maxDimension
	}
	return int(b)
}

// dimToWire stores 256 as 0.
func dimToWire(n int) byte {
	if n >= maxDimension {
		return 0
	}
	return byte(n)
}

func parseRecord(b []byte) Entry {
	return Entry{
		Width:        dimFromWire(b[0]),
		Height:       dimFromWire(b[1]),
		ColorCount:   b[2],
		Reserved:     b[3],
		ColorPlanes:  binary.LittleEndian.Uint16(b[4:6]),
		BitsPerPixel: binary.LittleEndian.Uint16(b[6:8]),
		Size:         binary.LittleEndian.Uint32(b[8:12]),
		Offset:       binary.LittleEndian.Uint32(b[12:16]),
	}
}

func (e Entry) putRecord(b []byte) {
	b[0] = dimToWire(e.Width)
	b[1] = dimToWire(e.Height)
	b[2] = e.ColorCount
	b[3] = e.Reserved
	binary.LittleEndian.PutUint16(b[4:6], e.ColorPlanes)
	binary.LittleEndian.PutUint16(b[6:8], e.BitsPerPixel)
	binary.LittleEndian.PutUint32(b[8:12], e.Size)
	binary.LittleEndian.PutUint32(b[12:16], e.Offset)
}

func putHeader(b []byte, count int) {
	binary.LittleEndian.PutUint16(b[0:2], 0)
	binary.LittleEndian.PutUint16(b[2:4], typeIcon)
	binary.LittleEndian.PutUint16(b[4:6], uint16(count))
}

// Directory is the parsed header and the usable records of a container.
type Directory struct {
	Reserved uint16
	Type     uint16
	// Count is the entry count declared by the header.
	Count uint16
	// Entries holds the records with a non-zero offset and size, in table order.
	Entries []Entry
	// Skipped counts records dropped for a zero offset or size.
	Skipped int
	// TableTruncated is set when the stream ends inside the record table.
	TableTruncated bool
	StreamSize     int64
}

// ParseDirectory reads the header and record table starting at absolute
// offset 0 of r. The position of r is restored before returning.
//
// Only a stream shorter than the header is an error; a 16-bit count keeps
// the table end far below 2^31. Malformed records are dropped and a table
// cut short by end of stream keeps the records read in full.
func ParseDirectory(r io.ReadSeeker) (dir *Directory, err error) {
	orig, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("ico: locate stream position: %w", err)
	}
	defer func() {
		if _, serr := r.Seek(orig, io.SeekStart); serr != nil && err == nil {
			dir, err = nil, fmt.Errorf("ico: restore stream position: %w", serr)
		}
	}()

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("ico: measure stream: %w", err)
	}
	if size < headerLen {
		return nil, &FormatError{Reason: fmt.Sprintf("stream is %d bytes, shorter than the %d-byte header", size, headerLen)}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ico: rewind stream: %w", err)
	}

	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &FormatError{Reason: "short header: " + err.Error()}
	}
	dir = &Directory{
		Reserved:   binary.LittleEndian.Uint16(hdr[0:2]),
		Type:       binary.LittleEndian.Uint16(hdr[2:4]),
		Count:      binary.LittleEndian.Uint16(hdr[4:6]),
		StreamSize: size,
	}

	records := int64(dir.Count)
	if avail := (size - headerLen) / recordLen; records > avail {
		records = avail
		dir.TableTruncated = true
	}

	table := make([]byte, records*recordLen)
	if _, err := io.ReadFull(r, table); err != nil {
		return nil, fmt.Errorf("ico: read directory table: %w", err)
	}

	dir.Entries = make([]Entry, 0, records)
	for i := int64(0); i < records; i++ {
		e := parseRecord(table[i*recordLen : (i+1)*recordLen])
		if !e.valid() {
			dir.Skipped++
			continue
		}
		dir.Entries = append(dir.Entries, e)
	}
	return dir, nil
}

// WriteDirectory serializes the header and one record per entry, in order.
func WriteDirectory(w io.Writer, entries []Entry) error {
	if len(entries) > math.MaxUint16 {
		return fmt.Errorf("ico: %d entries exceed the directory limit", len(entries))
	}
	buf := make([]byte, headerLen+recordLen*len(entries))
	putHeader(buf, len(entries))
	for i, e := range entries {
		off := headerLen + i*recordLen
		e.putRecord(buf[off : off+recordLen])
	}
	_, err := w.Write(buf)
	return err
}
