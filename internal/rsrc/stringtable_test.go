package rsrc

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
)

func stringBlock(values map[int]string) []byte {
	var b []byte
	for i := 0; i < stringsPerBlock; i++ {
		u := encodeUTF16(values[i])
		b = binary.LittleEndian.AppendUint16(b, uint16(len(u)/2))
		b = append(b, u...)
	}
	return b
}

func TestDecodeStringBlock(t *testing.T) {
	b := stringBlock(map[int]string{0: "first", 3: "fourth", 15: "last"})

	entries, err := DecodeStringBlock(2, 0x0409, b)
	if err != nil {
		t.Fatalf("DecodeStringBlock failed: %v", err)
	}
	want := []StringEntry{
		{ID: 16, Lang: 0x0409, Value: "first"},
		{ID: 19, Lang: 0x0409, Value: "fourth"},
		{ID: 31, Lang: 0x0409, Value: "last"},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestDecodeStringBlockMalformed(t *testing.T) {
	b := stringBlock(map[int]string{0: "first"})
	if _, err := DecodeStringBlock(1, 0, b[:6]); !errors.Is(err, ErrMalformedStringTable) {
		t.Errorf("truncated block error = %v, want ErrMalformedStringTable", err)
	}
	if _, err := DecodeStringBlock(0, 0, b); !errors.Is(err, ErrMalformedStringTable) {
		t.Errorf("block 0 error = %v, want ErrMalformedStringTable", err)
	}
	// Omitted trailing slots are fine.
	if entries, err := DecodeStringBlock(1, 0, b[:12]); err != nil || len(entries) != 1 {
		t.Errorf("short block = %v, %v; want one entry", entries, err)
	}
}
