package rsrc

import (
	"github.com/pkg/errors"
)

// stringsPerBlock is the number of strings in one RT_STRING leaf.
const stringsPerBlock = 16

// StringEntry is one string of an RT_STRING table.
type StringEntry struct {
	ID    uint32
	Lang  LangID
	Value string
}

// DecodeStringBlock decodes the leaf of RT_STRING block id. Block n holds
// string ids (n-1)*16 to (n-1)*16+15; empty slots are skipped.
func DecodeStringBlock(block uint32, lang LangID, b []byte) ([]StringEntry, error) {
	if block == 0 {
		return nil, errors.Wrap(ErrMalformedStringTable, "string block id 0")
	}
	c := &cursor{b: b}
	var out []StringEntry
	for i := uint32(0); i < stringsPerBlock; i++ {
		if c.remaining() == 0 {
			// Trailing empty slots are sometimes omitted.
			break
		}
		n := int(c.u16())
		raw := c.bytes(n * 2)
		if c.err != nil {
			return nil, errors.Wrapf(ErrMalformedStringTable, "block %d string %d truncated", block, i)
		}
		if n == 0 {
			continue
		}
		out = append(out, StringEntry{
			ID:    (block-1)*stringsPerBlock + i,
			Lang:  lang,
			Value: decodeUTF16(raw),
		})
	}
	return out, nil
}
