package rsrc

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// appendLeaf adds type/name/lang to tr in insertion order, creating the
// intermediate directories.
func appendLeaf(t *testing.T, tr *Tree, rt ResourceType, name Selector, lang LangID, data []byte) Handle {
	t.Helper()
	typeDir, ok := tr.Child(tr.Root(), TypeSelector(rt))
	if !ok {
		var err error
		if typeDir, err = tr.AppendDirectory(tr.Root(), TypeSelector(rt)); err != nil {
			t.Fatalf("AppendDirectory(%s) failed: %v", rt, err)
		}
	}
	nameDir, ok := tr.Child(typeDir, name)
	if !ok {
		var err error
		if nameDir, err = tr.AppendDirectory(typeDir, name); err != nil {
			t.Fatalf("AppendDirectory(%s) failed: %v", name, err)
		}
	}
	h, err := tr.AppendData(nameDir, ID(uint32(lang)), DataEntry{Bytes: data})
	if err != nil {
		t.Fatalf("AppendData failed: %v", err)
	}
	return h
}

// roundTrip serializes tr and parses the result back.
func roundTrip(t *testing.T, tr *Tree, baseRVA uint32) *Tree {
	t.Helper()
	blob, err := Serialize(tr, baseRVA)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	parsed, err := Parse(blob.Bytes, baseRVA)
	if err != nil {
		t.Fatalf("Parse of serialized tree failed: %v", err)
	}
	return parsed
}

// groupIcon builds an RT_GROUP_ICON payload referencing ids.
func groupIcon(ids ...uint16) []byte {
	entries := make([]groupIconEntry, len(ids))
	for i, id := range ids {
		entries[i] = groupIconEntry{Width: 16, Height: 16, Planes: 1, BitCount: 32, BytesInRes: 4, ID: id}
	}
	return encodeGroupIcon(entries)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

// rawSection assembles a section from little-endian words and dwords.
type rawSection struct {
	buf bytes.Buffer
}

func (r *rawSection) dir(named, ids uint16) *rawSection {
	binary.Write(&r.buf, binary.LittleEndian, resourceDirectory{
		NumberOfNamedEntries: named,
		NumberOfIdEntries:    ids,
	})
	return r
}

func (r *rawSection) entry(nameOrID, target uint32) *rawSection {
	binary.Write(&r.buf, binary.LittleEndian, resourceDirectoryEntry{NameOrID: nameOrID, OffsetToDataOrDirectory: target})
	return r
}

func (r *rawSection) data(rva, size uint32) *rawSection {
	binary.Write(&r.buf, binary.LittleEndian, resourceDataEntry{OffsetToData: rva, Size: size})
	return r
}

func (r *rawSection) raw(b ...byte) *rawSection {
	r.buf.Write(b)
	return r
}

func (r *rawSection) bytes() []byte { return r.buf.Bytes() }
