package rsrc

import "fmt"

// LangID is a Windows language identifier as stored in the third level of
// the resource tree.
type LangID uint16

// Lang is the primary language part of a LangID (low 10 bits).
type Lang uint16

// SubLang is the sub-language part of a LangID (high 6 bits).
type SubLang uint8

// MakeLangID combines a primary language and a sub-language.
func MakeLangID(primary Lang, sub SubLang) LangID {
	return LangID(uint16(sub)<<10 | uint16(primary)&0x3ff)
}

// Primary returns the primary language.
func (id LangID) Primary() Lang { return Lang(id & 0x3ff) }

// Sub returns the sub-language.
func (id LangID) Sub() SubLang { return SubLang(id >> 10) }

func (id LangID) String() string {
	return fmt.Sprintf("0x%04x (%s/%s)", uint16(id), id.Primary(), id.Sub().nameFor(id.Primary()))
}

// Primary languages seen in practice. The full table is much longer; other
// values print as numbers.
const (
	LANG_NEUTRAL    Lang = 0x00
	LANG_ARABIC     Lang = 0x01
	LANG_CHINESE    Lang = 0x04
	LANG_CZECH      Lang = 0x05
	LANG_DANISH     Lang = 0x06
	LANG_GERMAN     Lang = 0x07
	LANG_GREEK      Lang = 0x08
	LANG_ENGLISH    Lang = 0x09
	LANG_SPANISH    Lang = 0x0a
	LANG_FINNISH    Lang = 0x0b
	LANG_FRENCH     Lang = 0x0c
	LANG_HEBREW     Lang = 0x0d
	LANG_HUNGARIAN  Lang = 0x0e
	LANG_ITALIAN    Lang = 0x10
	LANG_JAPANESE   Lang = 0x11
	LANG_KOREAN     Lang = 0x12
	LANG_DUTCH      Lang = 0x13
	LANG_NORWEGIAN  Lang = 0x14
	LANG_POLISH     Lang = 0x15
	LANG_PORTUGUESE Lang = 0x16
	LANG_ROMANIAN   Lang = 0x18
	LANG_RUSSIAN    Lang = 0x19
	LANG_SWEDISH    Lang = 0x1d
	LANG_THAI       Lang = 0x1e
	LANG_TURKISH    Lang = 0x1f
	LANG_UKRAINIAN  Lang = 0x22
	LANG_VIETNAMESE Lang = 0x2a
	LANG_INVARIANT  Lang = 0x7f
)

var langNames = map[Lang]string{
	LANG_NEUTRAL:    "NEUTRAL",
	LANG_ARABIC:     "ARABIC",
	LANG_CHINESE:    "CHINESE",
	LANG_CZECH:      "CZECH",
	LANG_DANISH:     "DANISH",
	LANG_GERMAN:     "GERMAN",
	LANG_GREEK:      "GREEK",
	LANG_ENGLISH:    "ENGLISH",
	LANG_SPANISH:    "SPANISH",
	LANG_FINNISH:    "FINNISH",
	LANG_FRENCH:     "FRENCH",
	LANG_HEBREW:     "HEBREW",
	LANG_HUNGARIAN:  "HUNGARIAN",
	LANG_ITALIAN:    "ITALIAN",
	LANG_JAPANESE:   "JAPANESE",
	LANG_KOREAN:     "KOREAN",
	LANG_DUTCH:      "DUTCH",
	LANG_NORWEGIAN:  "NORWEGIAN",
	LANG_POLISH:     "POLISH",
	LANG_PORTUGUESE: "PORTUGUESE",
	LANG_ROMANIAN:   "ROMANIAN",
	LANG_RUSSIAN:    "RUSSIAN",
	LANG_SWEDISH:    "SWEDISH",
	LANG_THAI:       "THAI",
	LANG_TURKISH:    "TURKISH",
	LANG_UKRAINIAN:  "UKRAINIAN",
	LANG_VIETNAMESE: "VIETNAMESE",
	LANG_INVARIANT:  "INVARIANT",
}

func (l Lang) String() string {
	if name, ok := langNames[l]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint16(l))
}

// Sub-languages shared by every primary language.
const (
	SUBLANG_NEUTRAL     SubLang = 0x00
	SUBLANG_DEFAULT     SubLang = 0x01
	SUBLANG_SYS_DEFAULT SubLang = 0x02
)

// Sub-language names are only meaningful relative to a primary language.
var subLangNames = map[Lang]map[SubLang]string{
	LANG_ENGLISH: {
		0x01: "ENGLISH_US",
		0x02: "ENGLISH_UK",
		0x03: "ENGLISH_AUS",
		0x04: "ENGLISH_CAN",
		0x05: "ENGLISH_NZ",
		0x06: "ENGLISH_EIRE",
	},
	LANG_CHINESE: {
		0x01: "CHINESE_TRADITIONAL",
		0x02: "CHINESE_SIMPLIFIED",
		0x03: "CHINESE_HONGKONG",
		0x04: "CHINESE_SINGAPORE",
	},
	LANG_GERMAN: {
		0x01: "GERMAN",
		0x02: "GERMAN_SWISS",
		0x03: "GERMAN_AUSTRIAN",
	},
	LANG_FRENCH: {
		0x01: "FRENCH",
		0x02: "FRENCH_BELGIAN",
		0x03: "FRENCH_CANADIAN",
		0x04: "FRENCH_SWISS",
	},
	LANG_PORTUGUESE: {
		0x01: "PORTUGUESE_BRAZILIAN",
		0x02: "PORTUGUESE",
	},
}

func (s SubLang) nameFor(primary Lang) string {
	if names, ok := subLangNames[primary]; ok {
		if name, ok := names[s]; ok {
			return name
		}
	}
	switch s {
	case SUBLANG_NEUTRAL:
		return "NEUTRAL"
	case SUBLANG_DEFAULT:
		return "DEFAULT"
	case SUBLANG_SYS_DEFAULT:
		return "SYS_DEFAULT"
	}
	return fmt.Sprintf("0x%02x", uint8(s))
}

func (s SubLang) String() string {
	return s.nameFor(LANG_NEUTRAL)
}
