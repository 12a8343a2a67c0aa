package rsrc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
)

const (
	fixedFileInfoSignature = 0xFEEF04BD
	fixedFileInfoSize      = 52

	versionInfoKey    = "VS_VERSION_INFO"
	stringFileInfoKey = "StringFileInfo"
	varFileInfoKey    = "VarFileInfo"
	translationKey    = "Translation"

	verTypeBinary = 0
	verTypeText   = 1
)

// Standard string keys of a version resource.
const (
	VerCompanyName      = "CompanyName"
	VerFileDescription  = "FileDescription"
	VerFileVersion      = "FileVersion"
	VerInternalName     = "InternalName"
	VerLegalCopyright   = "LegalCopyright"
	VerLegalTrademarks  = "LegalTrademarks"
	VerOriginalFilename = "OriginalFilename"
	VerProductName      = "ProductName"
	VerProductVersion   = "ProductVersion"
	VerComments         = "Comments"
	VerPrivateBuild     = "PrivateBuild"
	VerSpecialBuild     = "SpecialBuild"
)

// FixedFileInfo is VS_FIXEDFILEINFO.
type FixedFileInfo struct {
	Signature        uint32
	StrucVersion     uint32
	FileVersionMS    uint32
	FileVersionLS    uint32
	ProductVersionMS uint32
	ProductVersionLS uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateMS       uint32
	FileDateLS       uint32
}

// FileVersion formats the binary file version as a.b.c.d.
func (f FixedFileInfo) FileVersion() string {
	return formatVersion(f.FileVersionMS, f.FileVersionLS)
}

// ProductVersion formats the binary product version as a.b.c.d.
func (f FixedFileInfo) ProductVersion() string {
	return formatVersion(f.ProductVersionMS, f.ProductVersionLS)
}

func formatVersion(ms, ls uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ms>>16, ms&0xffff, ls>>16, ls&0xffff)
}

// StringTable is one StringFileInfo block. Entries maps keys to string
// values in file order.
type StringTable struct {
	Key      string
	LangID   LangID
	CodePage uint16
	Entries  *ordereddict.Dict
}

// Translation is one (language, code page) pair of VarFileInfo.
type Translation struct {
	LangID   LangID
	CodePage uint16
}

// Version is a decoded VS_VERSIONINFO resource.
type Version struct {
	Lang         LangID
	Fixed        *FixedFileInfo
	StringTables []StringTable
	Translations []Translation
}

// Lookup returns the value of key in the string table of the given
// language.
func (v *Version) Lookup(lang LangID, key string) (string, bool) {
	for _, st := range v.StringTables {
		if st.LangID == lang {
			if s, ok := st.Entries.GetString(key); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Get returns the value of key from the first string table that has it.
func (v *Version) Get(key string) (string, bool) {
	for _, st := range v.StringTables {
		if s, ok := st.Entries.GetString(key); ok {
			return s, true
		}
	}
	return "", false
}

// verNode is one node of the VS_VERSIONINFO tree: Length, ValueLength and
// Type words, a NUL-terminated key, then the value and children, each
// starting on a 4-byte boundary.
type verNode struct {
	key      string
	typ      uint16
	value    []byte
	children []verNode
}

func parseVerNode(b []byte) (verNode, error) {
	var n verNode
	if len(b) < 6 {
		return n, errors.Wrapf(ErrMalformedVersionInfo, "node of %d bytes is too short", len(b))
	}
	length := int(binary.LittleEndian.Uint16(b))
	if length < 6 || length > len(b) {
		return n, errors.Wrapf(ErrMalformedVersionInfo, "node length %d outside %d available bytes", length, len(b))
	}
	b = b[:length]
	valueLen := int(binary.LittleEndian.Uint16(b[2:]))
	n.typ = binary.LittleEndian.Uint16(b[4:])

	key, off, ok := readSz(b, 6)
	if !ok {
		return n, errors.Wrap(ErrMalformedVersionInfo, "unterminated node key")
	}
	n.key = key
	off = alignUp(off, 4)

	size := valueLen
	if n.typ == verTypeText {
		// ValueLength counts words. Some compilers count bytes instead, so a
		// string value is cut at the node end rather than rejected.
		size = min(valueLen*2, max(length-off, 0))
	}
	if off+size > length {
		return n, errors.Wrapf(ErrMalformedVersionInfo, "value of %q (%d bytes) runs past node end", key, size)
	}
	n.value = b[off : off+size]
	off = alignUp(off+size, 4)

	for off+6 <= length {
		childLen := int(binary.LittleEndian.Uint16(b[off:]))
		if childLen == 0 {
			break
		}
		if off+childLen > length {
			return n, errors.Wrapf(ErrMalformedVersionInfo, "child of %q at %d runs past node end", key, off)
		}
		child, err := parseVerNode(b[off : off+childLen])
		if err != nil {
			return n, err
		}
		n.children = append(n.children, child)
		off = alignUp(off+childLen, 4)
	}
	return n, nil
}

// textValue decodes a string value, stopping at the first NUL.
func (n verNode) textValue() string {
	s := decodeUTF16(n.value)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

// DecodeVersion decodes an RT_VERSION payload.
func DecodeVersion(b []byte) (*Version, error) {
	root, err := parseVerNode(b)
	if err != nil {
		return nil, err
	}
	if root.key != versionInfoKey {
		return nil, errors.Wrapf(ErrMalformedVersionInfo, "unexpected root key %q", root.key)
	}

	v := &Version{}
	if len(root.value) > 0 {
		if len(root.value) < fixedFileInfoSize {
			return nil, errors.Wrapf(ErrMalformedVersionInfo, "fixed file info of %d bytes", len(root.value))
		}
		var fixed FixedFileInfo
		if err := binary.Read(bytes.NewReader(root.value), binary.LittleEndian, &fixed); err != nil {
			return nil, errors.Wrap(ErrMalformedVersionInfo, err.Error())
		}
		if fixed.Signature != fixedFileInfoSignature {
			return nil, errors.Wrapf(ErrMalformedVersionInfo, "bad fixed file info signature 0x%08x", fixed.Signature)
		}
		v.Fixed = &fixed
	}

	for _, child := range root.children {
		switch child.key {
		case stringFileInfoKey:
			for _, table := range child.children {
				v.StringTables = append(v.StringTables, decodeStringTable(table))
			}
		case varFileInfoKey:
			for _, vv := range child.children {
				if vv.key != translationKey {
					continue
				}
				for i := 0; i+4 <= len(vv.value); i += 4 {
					v.Translations = append(v.Translations, Translation{
						LangID:   LangID(binary.LittleEndian.Uint16(vv.value[i:])),
						CodePage: binary.LittleEndian.Uint16(vv.value[i+2:]),
					})
				}
			}
		}
	}
	return v, nil
}

func decodeStringTable(n verNode) StringTable {
	st := StringTable{Key: n.key, Entries: ordereddict.NewDict()}
	// The key is "llllcccc": language then code page, in hex. A key that
	// does not parse keeps zero values.
	if id, err := strconv.ParseUint(n.key, 16, 32); err == nil && len(n.key) == 8 {
		st.LangID = LangID(id >> 16)
		st.CodePage = uint16(id)
	}
	for _, s := range n.children {
		st.Entries.Set(s.key, s.textValue())
	}
	return st
}
