package rsrc

import (
	"io"
	"unicode/utf16"

	"golang.org/x/exp/constraints"
)

// IMAGE_RESOURCE_DIRECTORY structure.
type resourceDirectory struct {
	Characteristics      uint32
	TimeDateStamp        uint32
	MajorVersion         uint16
	MinorVersion         uint16
	NumberOfNamedEntries uint16
	NumberOfIdEntries    uint16
}

// IMAGE_RESOURCE_DIRECTORY_ENTRY structure.
type resourceDirectoryEntry struct {
	NameOrID                uint32
	OffsetToDataOrDirectory uint32
}

// IMAGE_RESOURCE_DATA_ENTRY structure.
type resourceDataEntry struct {
	OffsetToData uint32
	Size         uint32
	CodePage     uint32
	Reserved     uint32
}

var errShort = io.ErrUnexpectedEOF

const (
	directorySize = 16
	entrySize     = 8
	dataEntrySize = 16

	highBit = 0x80000000

	// Payloads are aligned to this boundary in a serialized section.
	dataAlignment = 8
)

func alignUp[V constraints.Integer](v, align V) V {
	return (v + align - 1) &^ (align - 1)
}

// encodeUTF16 converts a string to UTF-16LE bytes without a terminator.
func encodeUTF16(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, len(u)*2)
	for i, r := range u {
		b[i*2] = byte(r)
		b[i*2+1] = byte(r >> 8)
	}
	return b
}

// decodeUTF16 converts UTF-16LE bytes to a string. An odd trailing byte is
// ignored.
func decodeUTF16(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[i*2]) | uint16(b[i*2+1])<<8
	}
	return string(utf16.Decode(u))
}

// readSz reads a NUL-terminated UTF-16LE string starting at off and returns
// it with the offset just past the terminator.
func readSz(b []byte, off int) (string, int, bool) {
	for i := off; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			return decodeUTF16(b[off:i]), i + 2, true
		}
	}
	return "", 0, false
}

// appendSz appends s as NUL-terminated UTF-16LE.
func appendSz(b []byte, s string) []byte {
	b = append(b, encodeUTF16(s)...)
	return append(b, 0, 0)
}

// cursor reads little-endian fields from a byte slice. The first read past
// the end sets err and every later read returns zero values.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.off+n > len(c.b) {
		c.err = errShort
		return false
	}
	return true
}

func (c *cursor) u8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.b[c.off]
	c.off++
	return v
}

func (c *cursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := uint16(c.b[c.off]) | uint16(c.b[c.off+1])<<8
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	lo := c.u16()
	hi := c.u16()
	return uint32(lo) | uint32(hi)<<16
}

func (c *cursor) i16() int16 { return int16(c.u16()) }

func (c *cursor) bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v
}

func (c *cursor) sz() string {
	if c.err != nil {
		return ""
	}
	s, next, ok := readSz(c.b, c.off)
	if !ok {
		c.err = errShort
		return ""
	}
	c.off = next
	return s
}

// align skips padding up to the next multiple of n. Padding may be cut off
// by the end of the buffer.
func (c *cursor) align(n int) {
	if c.err != nil {
		return
	}
	c.off = min(alignUp(c.off, n), len(c.b))
}

func (c *cursor) remaining() int { return len(c.b) - c.off }
