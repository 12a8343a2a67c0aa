package rsrc

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
)

// GRPICONDIR header, shared with the ICONDIR header of .ico files.
type iconDirHeader struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

// GRPICONDIRENTRY structure.
type groupIconEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	ID         uint16
}

// ICONDIRENTRY structure of an .ico file.
type iconFileEntry struct {
	Width       uint8
	Height      uint8
	ColorCount  uint8
	Reserved    uint8
	Planes      uint16
	BitCount    uint16
	BytesInRes  uint32
	ImageOffset uint32
}

const (
	iconDirHeaderSize  = 6
	groupIconEntrySize = 14
	iconFileEntrySize  = 16

	iconTypeIcon = 1

	// Largest image accepted from an .ico file.
	maxIconImageSize = 10 << 20
)

// Icon is one image of a group icon. ID is the RT_ICON id the group entry
// references; it is the identity used by Manager.ChangeIcon.
type Icon struct {
	ID         uint16
	Lang       LangID
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	Pixels     []byte
}

// Size returns the pixel dimensions. A stored 0 means 256.
func (i Icon) Size() (w, h int) {
	w, h = int(i.Width), int(i.Height)
	if w == 0 {
		w = 256
	}
	if h == 0 {
		h = 256
	}
	return w, h
}

// MIME returns the media type of the image data: image/png for PNG
// payloads, image/bmp for device-independent bitmaps.
func (i Icon) MIME() string {
	if kind, err := filetype.Match(i.Pixels); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if isDIB(i.Pixels) {
		return "image/bmp"
	}
	return "application/octet-stream"
}

// isDIB reports whether b starts with a BITMAPINFOHEADER or a later
// version of it.
func isDIB(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	switch binary.LittleEndian.Uint32(b) {
	case 40, 52, 56, 108, 124:
		return true
	}
	return false
}

// IconGroup is a resolved RT_GROUP_ICON leaf.
type IconGroup struct {
	Selector Selector
	Lang     LangID
	Icons    []Icon
}

func decodeGroupIcon(b []byte) ([]groupIconEntry, error) {
	r := bytes.NewReader(b)
	var hdr iconDirHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, malformed("group icon header: %v", err)
	}
	if hdr.Type != iconTypeIcon {
		return nil, malformed("group icon of type %d", hdr.Type)
	}
	if len(b) < iconDirHeaderSize+int(hdr.Count)*groupIconEntrySize {
		return nil, malformed("group icon with %d entries truncated at %d bytes", hdr.Count, len(b))
	}
	entries := make([]groupIconEntry, hdr.Count)
	if err := binary.Read(r, binary.LittleEndian, entries); err != nil {
		return nil, malformed("group icon entries: %v", err)
	}
	return entries, nil
}

func encodeGroupIcon(entries []groupIconEntry) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, iconDirHeader{Type: iconTypeIcon, Count: uint16(len(entries))})
	binary.Write(buf, binary.LittleEndian, entries)
	return buf.Bytes()
}

func (i Icon) groupEntry() groupIconEntry {
	return groupIconEntry{
		Width:      i.Width,
		Height:     i.Height,
		ColorCount: i.ColorCount,
		Reserved:   i.Reserved,
		Planes:     i.Planes,
		BitCount:   i.BitCount,
		BytesInRes: uint32(len(i.Pixels)),
		ID:         i.ID,
	}
}

// LoadICO reads the images of an .ico file. The returned icons have no ID.
func LoadICO(r io.Reader) ([]Icon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read icon file")
	}
	br := bytes.NewReader(data)
	var hdr iconDirHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(ErrMalformedIconFile, "header truncated")
	}
	if hdr.Reserved != 0 || hdr.Type != iconTypeIcon {
		return nil, errors.Wrapf(ErrMalformedIconFile, "not an icon file (type %d)", hdr.Type)
	}
	entries := make([]iconFileEntry, hdr.Count)
	if err := binary.Read(br, binary.LittleEndian, entries); err != nil {
		return nil, errors.Wrapf(ErrMalformedIconFile, "%d entries truncated", hdr.Count)
	}

	icons := make([]Icon, 0, len(entries))
	for i, e := range entries {
		end := uint64(e.ImageOffset) + uint64(e.BytesInRes)
		if e.BytesInRes > maxIconImageSize || end > uint64(len(data)) {
			return nil, errors.Wrapf(ErrMalformedIconFile, "image %d at 0x%x (0x%x bytes) outside file", i, e.ImageOffset, e.BytesInRes)
		}
		icons = append(icons, Icon{
			Width:      e.Width,
			Height:     e.Height,
			ColorCount: e.ColorCount,
			Reserved:   e.Reserved,
			Planes:     e.Planes,
			BitCount:   e.BitCount,
			Pixels:     bytes.Clone(data[e.ImageOffset:end]),
		})
	}
	return icons, nil
}

// SaveICO writes icons as an .ico file.
func SaveICO(w io.Writer, icons []Icon) error {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, iconDirHeader{Type: iconTypeIcon, Count: uint16(len(icons))})
	offset := uint32(iconDirHeaderSize + len(icons)*iconFileEntrySize)
	for _, ic := range icons {
		binary.Write(buf, binary.LittleEndian, iconFileEntry{
			Width:       ic.Width,
			Height:      ic.Height,
			ColorCount:  ic.ColorCount,
			Reserved:    ic.Reserved,
			Planes:      ic.Planes,
			BitCount:    ic.BitCount,
			BytesInRes:  uint32(len(ic.Pixels)),
			ImageOffset: offset,
		})
		offset += uint32(len(ic.Pixels))
	}
	for _, ic := range icons {
		buf.Write(ic.Pixels)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
