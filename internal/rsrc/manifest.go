package rsrc

import (
	"bytes"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// Code page recorded in data entries written by this package.
const (
	CodePageUnicode = 1200
	CodePageUTF8    = 65001
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// ansiDecoders maps the code page of a data entry to the decoder used for
// payloads that are not valid UTF-8.
var ansiDecoders = map[uint32]encoding.Encoding{
	437:  charmap.CodePage437,
	932:  japanese.ShiftJIS,
	936:  simplifiedchinese.GBK,
	949:  korean.EUCKR,
	950:  traditionalchinese.Big5,
	1250: charmap.Windows1250,
	1251: charmap.Windows1251,
	1252: charmap.Windows1252,
}

// DecodeManifest returns the text of an RT_MANIFEST leaf. UTF-8 payloads
// are returned as is, minus a byte order mark. UTF-16 payloads need a BOM.
// Anything else is decoded with the ANSI code page of the entry, Windows-1252
// when the entry does not name a known one.
func DecodeManifest(d DataEntry) (string, error) {
	b := d.Bytes
	switch {
	case bytes.HasPrefix(b, utf8BOM):
		return string(b[len(utf8BOM):]), nil
	case bytes.HasPrefix(b, []byte{0xff, 0xfe}), bytes.HasPrefix(b, []byte{0xfe, 0xff}):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", errors.Wrap(err, "decode UTF-16 manifest")
		}
		return string(out), nil
	case utf8.Valid(b):
		return string(b), nil
	}

	enc, ok := ansiDecoders[d.CodePage]
	if !ok {
		enc = charmap.Windows1252
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrapf(err, "decode manifest with code page %d", d.CodePage)
	}
	return string(out), nil
}

// EncodeManifest returns the leaf written for a manifest: UTF-8 without a
// byte order mark.
func EncodeManifest(s string) DataEntry {
	return DataEntry{Bytes: []byte(s)}
}
