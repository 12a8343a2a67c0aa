package rsrc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
)

type dlgWriter struct{ bytes.Buffer }

func (w *dlgWriter) put(vs ...any) *dlgWriter {
	for _, v := range vs {
		binary.Write(&w.Buffer, binary.LittleEndian, v)
	}
	return w
}

func (w *dlgWriter) sz(s string) *dlgWriter {
	w.Write(appendSz(nil, s))
	return w
}

func (w *dlgWriter) align() *dlgWriter {
	for w.Len()%4 != 0 {
		w.WriteByte(0)
	}
	return w
}

// classicDialog builds a DLGTEMPLATE with a font, an OK button and a label,
// followed by junk.
func classicDialog() []byte {
	w := &dlgWriter{}
	w.put(uint32(0x80c80000|DS_SETFONT), uint32(0), uint16(2))
	w.put(int16(10), int16(20), int16(200), int16(100))
	w.put(uint16(0)) // no menu
	w.put(uint16(0)) // default class
	w.sz("About")
	w.put(uint16(8)).sz("MS Shell Dlg")

	w.align()
	w.put(uint32(0x50010001), uint32(0))
	w.put(int16(5), int16(5), int16(50), int16(14), uint16(1)) // IDOK
	w.put(uint16(0xffff), uint16(0x80))
	w.sz("OK")
	w.put(uint16(0))

	w.align()
	w.put(uint32(0x50000000), uint32(0))
	w.put(int16(5), int16(25), int16(100), int16(8), uint16(0xffff))
	w.sz("MyLabel")
	w.put(uint16(0xffff), uint16(7))
	w.put(uint16(2), uint16(0xbeef))

	w.Write([]byte("trailing bytes are not controls"))
	return w.Bytes()
}

func extendedDialog() []byte {
	w := &dlgWriter{}
	w.put(uint16(1), uint16(0xffff), uint32(42), uint32(0), uint32(DS_SHELLFONT), uint16(1))
	w.put(int16(0), int16(0), int16(300), int16(200))
	w.put(uint16(0xffff), uint16(101)) // menu by ordinal
	w.put(uint16(0))
	w.sz("Settings")
	w.put(uint16(9), uint16(400), uint8(1), uint8(1)).sz("Segoe UI")

	w.align()
	w.put(uint32(7), uint32(0), uint32(0x50010000))
	w.put(int16(1), int16(2), int16(3), int16(4), uint32(70000))
	w.put(uint16(0xffff), uint16(0x81))
	w.put(uint16(0))
	w.put(uint16(0))
	return w.Bytes()
}

func TestDecodeDialog(t *testing.T) {
	d, err := DecodeDialog(classicDialog())
	if err != nil {
		t.Fatalf("DecodeDialog failed: %v", err)
	}
	if d.Extended {
		t.Error("classic template reported as extended")
	}
	if d.Title != "About" || d.Typeface != "MS Shell Dlg" || d.PointSize != 8 {
		t.Errorf("header = %q %q %d", d.Title, d.Typeface, d.PointSize)
	}
	if d.CX != 200 || d.CY != 100 {
		t.Errorf("size = %dx%d, want 200x100", d.CX, d.CY)
	}
	if len(d.Items) != 2 {
		t.Fatalf("got %d controls, want exactly 2", len(d.Items))
	}
	ok := d.Items[0]
	if ok.ID != 1 || ok.ClassName() != "Button" || ok.Title.String() != "OK" {
		t.Errorf("first control = id %d class %q title %q", ok.ID, ok.ClassName(), ok.Title)
	}
	label := d.Items[1]
	if label.ClassName() != "MyLabel" || !label.Title.IsOrdinal || label.Title.Ordinal != 7 {
		t.Errorf("second control = class %q title %+v", label.ClassName(), label.Title)
	}
	if !bytes.Equal(label.Extra, []byte{0xef, 0xbe}) {
		t.Errorf("creation data = %x, want efbe", label.Extra)
	}
}

func TestDecodeDialogEx(t *testing.T) {
	d, err := DecodeDialog(extendedDialog())
	if err != nil {
		t.Fatalf("DecodeDialog failed: %v", err)
	}
	if !d.Extended || d.HelpID != 42 {
		t.Errorf("Extended = %v, HelpID = %d", d.Extended, d.HelpID)
	}
	if !d.Menu.IsOrdinal || d.Menu.Ordinal != 101 {
		t.Errorf("Menu = %+v, want ordinal 101", d.Menu)
	}
	if d.Weight != 400 || !d.Italic || d.CharSet != 1 || d.Typeface != "Segoe UI" {
		t.Errorf("font = %d %v %d %q", d.Weight, d.Italic, d.CharSet, d.Typeface)
	}
	if len(d.Items) != 1 || d.Items[0].ID != 70000 || d.Items[0].HelpID != 7 || d.Items[0].ClassName() != "Edit" {
		t.Errorf("Items = %+v", d.Items)
	}
}

func TestDecodeDialogTruncated(t *testing.T) {
	full := classicDialog()
	for _, n := range []int{0, 10, 20, 40, 60} {
		if _, err := DecodeDialog(full[:n]); !errors.Is(err, ErrMalformedDialogTemplate) {
			t.Errorf("DecodeDialog(%d bytes) error = %v, want ErrMalformedDialogTemplate", n, err)
		}
	}
}
