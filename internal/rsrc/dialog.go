package rsrc

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Dialog style bits that change the template layout.
const (
	DS_SETFONT   = 0x40
	DS_FIXEDSYS  = 0x08
	DS_SHELLFONT = DS_SETFONT | DS_FIXEDSYS
)

const dialogExSignature = 0xFFFF

// NameOrOrdinal is a sz_Or_Ord field: absent, a 16-bit ordinal or a string.
type NameOrOrdinal struct {
	Name      string
	Ordinal   uint16
	IsOrdinal bool
}

func (n NameOrOrdinal) String() string {
	if n.IsOrdinal {
		return fmt.Sprintf("#%d", n.Ordinal)
	}
	return n.Name
}

// Predefined control class ordinals.
var controlClasses = map[uint16]string{
	0x80: "Button",
	0x81: "Edit",
	0x82: "Static",
	0x83: "ListBox",
	0x84: "ScrollBar",
	0x85: "ComboBox",
}

// Dialog is a decoded DLGTEMPLATE or DLGTEMPLATEEX.
type Dialog struct {
	Selector Selector
	Lang     LangID

	Extended  bool
	Version   uint16
	Signature uint16
	HelpID    uint32
	Style     uint32
	ExStyle   uint32
	X, Y      int16
	CX, CY    int16
	Menu      NameOrOrdinal
	Class     NameOrOrdinal
	Title     string

	// Set when the style has DS_SETFONT.
	PointSize uint16
	Weight    uint16
	Italic    bool
	CharSet   uint8
	Typeface  string

	Items []DialogItem
}

// DialogItem is a decoded DLGITEMTEMPLATE or DLGITEMTEMPLATEEX.
type DialogItem struct {
	HelpID  uint32
	Style   uint32
	ExStyle uint32
	X, Y    int16
	CX, CY  int16
	ID      uint32
	Class   NameOrOrdinal
	Title   NameOrOrdinal
	Extra   []byte
}

// ClassName returns the class name, resolving predefined ordinals.
func (it DialogItem) ClassName() string {
	if it.Class.IsOrdinal {
		if name, ok := controlClasses[it.Class.Ordinal]; ok {
			return name
		}
	}
	return it.Class.String()
}

func (c *cursor) nameOrOrdinal() NameOrOrdinal {
	if !c.need(2) {
		return NameOrOrdinal{}
	}
	switch binary.LittleEndian.Uint16(c.b[c.off:]) {
	case 0x0000:
		c.off += 2
		return NameOrOrdinal{}
	case 0xFFFF:
		c.off += 2
		return NameOrOrdinal{Ordinal: c.u16(), IsOrdinal: true}
	}
	return NameOrOrdinal{Name: c.sz()}
}

// DecodeDialog decodes an RT_DIALOG payload. Exactly the number of
// controls announced by the header is read; bytes after the last control
// are ignored.
func DecodeDialog(b []byte) (*Dialog, error) {
	c := &cursor{b: b}
	d := &Dialog{}

	if len(b) >= 4 && b[0] == 1 && b[1] == 0 && b[2] == 0xFF && b[3] == 0xFF {
		d.Extended = true
		d.Version = c.u16()
		d.Signature = c.u16()
		d.HelpID = c.u32()
		d.ExStyle = c.u32()
		d.Style = c.u32()
	} else {
		d.Style = c.u32()
		d.ExStyle = c.u32()
	}
	count := int(c.u16())
	d.X, d.Y, d.CX, d.CY = c.i16(), c.i16(), c.i16(), c.i16()
	d.Menu = c.nameOrOrdinal()
	d.Class = c.nameOrOrdinal()
	d.Title = c.sz()

	if d.Style&DS_SETFONT != 0 {
		d.PointSize = c.u16()
		if d.Extended {
			d.Weight = c.u16()
			d.Italic = c.u8() != 0
			d.CharSet = c.u8()
		}
		d.Typeface = c.sz()
	}
	if c.err != nil {
		return nil, errors.Wrapf(ErrMalformedDialogTemplate, "header truncated at %d of %d bytes", c.off, len(b))
	}

	for i := 0; i < count; i++ {
		c.align(4)
		var it DialogItem
		if d.Extended {
			it.HelpID = c.u32()
			it.ExStyle = c.u32()
			it.Style = c.u32()
		} else {
			it.Style = c.u32()
			it.ExStyle = c.u32()
		}
		it.X, it.Y, it.CX, it.CY = c.i16(), c.i16(), c.i16(), c.i16()
		if d.Extended {
			it.ID = c.u32()
		} else {
			it.ID = uint32(c.u16())
		}
		it.Class = c.nameOrOrdinal()
		it.Title = c.nameOrOrdinal()
		if extra := int(c.u16()); extra > 0 {
			it.Extra = append([]byte(nil), c.bytes(extra)...)
		}
		if c.err != nil {
			return nil, errors.Wrapf(ErrMalformedDialogTemplate, "control %d of %d truncated", i, count)
		}
		d.Items = append(d.Items, it)
	}
	return d, nil
}
