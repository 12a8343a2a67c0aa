package rsrc

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Blob is a serialized resource section.
type Blob struct {
	Bytes []byte

	// BaseRVA is the RVA the blob was laid out for.
	BaseRVA uint32

	// Fixups lists the offsets in Bytes of every data entry RVA field. The
	// section can be moved by adding the RVA delta at each of them.
	Fixups []uint32
}

// Rebase rewrites every data entry RVA so the blob can be mapped at
// newBase instead of BaseRVA.
func (b *Blob) Rebase(newBase uint32) {
	for _, off := range b.Fixups {
		rva := binary.LittleEndian.Uint32(b.Bytes[off:])
		binary.LittleEndian.PutUint32(b.Bytes[off:], rva-b.BaseRVA+newBase)
	}
	b.BaseRVA = newBase
}

// layout holds the offset assigned to every part of the section.
type layout struct {
	dirs      []int32
	leaves    []int32
	dirOff    map[int32]uint32
	leafOff   map[int32]uint32
	names     []string
	nameOff   map[string]uint32
	dataOff   map[int32]uint32
	totalSize uint64
}

// Serialize lays the tree out as a resource section mapped at baseRVA.
//
// Layout: every directory table in depth-first pre-order, then the data
// entries in leaf order, then the deduplicated names, then the payloads,
// each aligned to 8 bytes. Parse(Serialize(t).Bytes, baseRVA) yields a tree
// Equal to t.
func Serialize(t *Tree, baseRVA uint32) (*Blob, error) {
	l, err := t.layout()
	if err != nil {
		return nil, err
	}
	if l.totalSize+uint64(baseRVA) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrLogic, "resource section of 0x%x bytes does not fit at RVA 0x%x", l.totalSize, baseRVA)
	}

	blob := &Blob{
		Bytes:   make([]byte, l.totalSize),
		BaseRVA: baseRVA,
		Fixups:  make([]uint32, 0, len(l.leaves)),
	}
	data := blob.Bytes

	// Directory tables
	for _, idx := range l.dirs {
		n := &t.nodes[idx]
		off := l.dirOff[idx]
		named := 0
		for _, e := range n.entries {
			if e.sel.named {
				named++
			}
		}
		binary.LittleEndian.PutUint32(data[off:], n.header.Characteristics)
		binary.LittleEndian.PutUint32(data[off+4:], n.header.TimeDateStamp)
		binary.LittleEndian.PutUint16(data[off+8:], n.header.MajorVersion)
		binary.LittleEndian.PutUint16(data[off+10:], n.header.MinorVersion)
		binary.LittleEndian.PutUint16(data[off+12:], uint16(named))
		binary.LittleEndian.PutUint16(data[off+14:], uint16(len(n.entries)-named))

		for i, e := range n.entries {
			entryOff := off + directorySize + uint32(i)*entrySize

			nameOrID := e.sel.id
			if e.sel.named {
				nameOrID = l.nameOff[e.sel.name] | highBit
			}
			var target uint32
			if t.nodes[e.node].kind == KindDirectory {
				target = l.dirOff[e.node] | highBit
			} else {
				target = l.leafOff[e.node]
			}
			binary.LittleEndian.PutUint32(data[entryOff:], nameOrID)
			binary.LittleEndian.PutUint32(data[entryOff+4:], target)
		}
	}

	// Data entries
	for _, idx := range l.leaves {
		n := &t.nodes[idx]
		off := l.leafOff[idx]
		binary.LittleEndian.PutUint32(data[off:], baseRVA+l.dataOff[idx]) // OffsetToData
		binary.LittleEndian.PutUint32(data[off+4:], uint32(len(n.data)))  // Size
		binary.LittleEndian.PutUint32(data[off+8:], n.codePage)           // CodePage
		binary.LittleEndian.PutUint32(data[off+12:], n.reserved)          // Reserved
		blob.Fixups = append(blob.Fixups, off)
	}

	// Names
	for _, name := range l.names {
		off := l.nameOff[name]
		u := encodeUTF16(name)
		binary.LittleEndian.PutUint16(data[off:], uint16(len(u)/2))
		copy(data[off+2:], u)
	}

	// Payloads
	for _, idx := range l.leaves {
		copy(data[l.dataOff[idx]:], t.nodes[idx].data)
	}

	return blob, nil
}

func (t *Tree) layout() (*layout, error) {
	l := &layout{
		dirOff:  make(map[int32]uint32),
		leafOff: make(map[int32]uint32),
		nameOff: make(map[string]uint32),
		dataOff: make(map[int32]uint32),
	}

	var offset uint64
	var visit func(idx int32) error
	visit = func(idx int32) error {
		n := &t.nodes[idx]
		if n.kind == KindData {
			l.leaves = append(l.leaves, idx)
			return nil
		}
		named := 0
		for _, e := range n.entries {
			if e.sel.named {
				named++
			}
		}
		if named > math.MaxUint16 || len(n.entries)-named > math.MaxUint16 {
			return errors.Wrapf(ErrLogic, "directory with %d entries cannot be encoded", len(n.entries))
		}
		l.dirs = append(l.dirs, idx)
		l.dirOff[idx] = uint32(offset)
		offset += directorySize + uint64(len(n.entries))*entrySize
		for _, e := range n.entries {
			if e.sel.named {
				if _, ok := l.nameOff[e.sel.name]; !ok {
					l.nameOff[e.sel.name] = 0
					l.names = append(l.names, e.sel.name)
				}
			}
			if err := visit(e.node); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(t.root); err != nil {
		return nil, err
	}

	for _, idx := range l.leaves {
		l.leafOff[idx] = uint32(offset)
		offset += dataEntrySize
	}

	for _, name := range l.names {
		units := len(encodeUTF16(name)) / 2
		if units > math.MaxUint16 {
			return nil, errors.Wrapf(ErrLogic, "resource name of %d characters cannot be encoded", units)
		}
		l.nameOff[name] = uint32(offset)
		offset += 2 + uint64(units)*2
	}

	for _, idx := range l.leaves {
		offset = alignUp(offset, dataAlignment)
		l.dataOff[idx] = uint32(offset)
		offset += uint64(len(t.nodes[idx].data))
	}
	l.totalSize = offset
	if l.totalSize > math.MaxUint32 {
		return nil, errors.Wrapf(ErrLogic, "resource section of 0x%x bytes is too large", l.totalSize)
	}
	return l, nil
}
