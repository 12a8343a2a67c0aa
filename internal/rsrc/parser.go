package rsrc

import (
	"bytes"
	"encoding/binary"

	"github.com/apex/log"
)

// ParseOption configures Parse.
type ParseOption func(*parser)

// WithParseLogger sets the logger that receives warnings about recoverable
// damage such as truncated directories.
func WithParseLogger(l log.Interface) ParseOption {
	return func(p *parser) { p.log = l }
}

type parser struct {
	buf     []byte
	base    uint32
	visited map[uint32]bool
	tree    *Tree
	log     log.Interface
}

// Parse reads a resource directory tree from the raw bytes of a resource
// section. baseRVA is the RVA the section is mapped at; data entry RVAs are
// translated against it.
//
// Offsets or RVAs outside the section, a directory reached twice and
// duplicate selectors in one directory fail with
// ErrMalformedResourceDirectory. A directory whose header or entry table is
// cut short by the end of the section parses as empty.
func Parse(section []byte, baseRVA uint32, opts ...ParseOption) (*Tree, error) {
	p := &parser{
		buf:     section,
		base:    baseRVA,
		visited: make(map[uint32]bool),
		tree:    NewTree(),
		log:     log.Log,
	}
	for _, opt := range opts {
		opt(p)
	}

	if len(section) == 0 {
		p.log.Warn("empty resource section")
		return p.tree, nil
	}
	if err := p.directory(0, p.tree.Root()); err != nil {
		return nil, err
	}
	return p.tree, nil
}

func (p *parser) inBounds(off, size uint32) bool {
	end := uint64(off) + uint64(size)
	return end <= uint64(len(p.buf))
}

func (p *parser) directory(off uint32, h Handle) error {
	if off >= uint32(len(p.buf)) {
		return malformed("directory offset 0x%x outside section of 0x%x bytes", off, len(p.buf))
	}
	if p.visited[off] {
		return malformed("directory cycle at offset 0x%x", off)
	}
	p.visited[off] = true

	if !p.inBounds(off, directorySize) {
		p.log.WithField("offset", off).Warn("truncated resource directory header")
		return nil
	}
	var dir resourceDirectory
	if err := binary.Read(bytes.NewReader(p.buf[off:off+directorySize]), binary.LittleEndian, &dir); err != nil {
		return malformed("read directory at 0x%x: %v", off, err)
	}
	if err := p.tree.SetHeader(h, DirHeader{
		Characteristics: dir.Characteristics,
		TimeDateStamp:   dir.TimeDateStamp,
		MajorVersion:    dir.MajorVersion,
		MinorVersion:    dir.MinorVersion,
	}); err != nil {
		return err
	}

	count := uint32(dir.NumberOfNamedEntries) + uint32(dir.NumberOfIdEntries)
	if !p.inBounds(off+directorySize, count*entrySize) {
		p.log.WithFields(log.Fields{
			"offset":  off,
			"entries": count,
		}).Warn("truncated resource directory entries")
		return nil
	}

	for i := uint32(0); i < count; i++ {
		entryOff := off + directorySize + i*entrySize
		var e resourceDirectoryEntry
		if err := binary.Read(bytes.NewReader(p.buf[entryOff:entryOff+entrySize]), binary.LittleEndian, &e); err != nil {
			return malformed("read entry at 0x%x: %v", entryOff, err)
		}

		sel := ID(e.NameOrID)
		if e.NameOrID&highBit != 0 {
			name, err := p.name(e.NameOrID &^ highBit)
			if err != nil {
				return err
			}
			sel = Name(name)
		}
		if _, dup := p.tree.Child(h, sel); dup {
			return malformed("duplicate selector %s in directory at 0x%x", sel, off)
		}

		if e.OffsetToDataOrDirectory&highBit != 0 {
			child, err := p.tree.AppendDirectory(h, sel)
			if err != nil {
				return err
			}
			if err := p.directory(e.OffsetToDataOrDirectory&^highBit, child); err != nil {
				return err
			}
			continue
		}

		d, err := p.dataEntry(e.OffsetToDataOrDirectory)
		if err != nil {
			return err
		}
		if _, err := p.tree.AppendData(h, sel, d); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) name(off uint32) (string, error) {
	if !p.inBounds(off, 2) {
		return "", malformed("name offset 0x%x outside section", off)
	}
	n := uint32(binary.LittleEndian.Uint16(p.buf[off:]))
	if !p.inBounds(off+2, n*2) {
		return "", malformed("name at 0x%x with %d units runs past section end", off, n)
	}
	return decodeUTF16(p.buf[off+2 : off+2+n*2]), nil
}

func (p *parser) dataEntry(off uint32) (DataEntry, error) {
	if !p.inBounds(off, dataEntrySize) {
		return DataEntry{}, malformed("data entry offset 0x%x outside section", off)
	}
	var de resourceDataEntry
	if err := binary.Read(bytes.NewReader(p.buf[off:off+dataEntrySize]), binary.LittleEndian, &de); err != nil {
		return DataEntry{}, malformed("read data entry at 0x%x: %v", off, err)
	}
	if de.OffsetToData < p.base || !p.inBounds(de.OffsetToData-p.base, de.Size) {
		return DataEntry{}, malformed("data RVA 0x%x (size 0x%x) outside section [0x%x, 0x%x)",
			de.OffsetToData, de.Size, p.base, uint64(p.base)+uint64(len(p.buf)))
	}
	start := de.OffsetToData - p.base
	return DataEntry{
		Bytes:    p.buf[start : start+de.Size],
		CodePage: de.CodePage,
		Reserved: de.Reserved,
	}, nil
}
