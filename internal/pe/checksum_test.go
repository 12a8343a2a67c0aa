package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestCalculatePEChecksum(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		checksumOffset int64
		want           uint32
	}{
		{
			name:           "two dwords",
			data:           []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00},
			checksumOffset: -1,
			want:           11, // 1 + 2 + filesize(8)
		},
		{
			name: "checksum field skipped",
			data: []byte{
				0x01, 0x00, 0x00, 0x00,
				0xFF, 0xFF, 0xFF, 0xFF,
				0x02, 0x00, 0x00, 0x00,
			},
			checksumOffset: 4,
			want:           15, // 1 + 2 + filesize(12)
		},
		{
			name:           "partial last dword",
			data:           []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00},
			checksumOffset: -1,
			want:           9, // 1 + 2 + filesize(6)
		},
		{
			name:           "high words fold into the low word",
			data:           []byte{0x00, 0x00, 0x01, 0x00},
			checksumOffset: -1,
			want:           5, // 0x00010000 folds to 1, + filesize(4)
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculatePEChecksum(bytes.NewReader(tt.data), int64(len(tt.data)), tt.checksumOffset)
			if err != nil {
				t.Fatalf("CalculatePEChecksum() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculatePEChecksum() = 0x%08X, want 0x%08X", got, tt.want)
			}
		})
	}
}

func TestChecksumCarryHandling(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(data[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(data[8:12], 0x00000001)
	binary.LittleEndian.PutUint32(data[12:16], 0x00000001)

	got, err := CalculatePEChecksum(bytes.NewReader(data), int64(len(data)), -1)
	if err != nil {
		t.Fatalf("CalculatePEChecksum() error = %v", err)
	}
	// 0xFFFFFFFF + 0xFFFFFFFF wraps to 0xFFFFFFFF, the next dword carries
	// out to 1, then 2, plus the file size.
	if got != 18 {
		t.Errorf("CalculatePEChecksum() = 0x%08X, want 0x12", got)
	}
}

func TestVerifyChecksumUnset(t *testing.T) {
	r, _ := openResources(t, buildImage(t, sampleManager(t)))
	cs, err := VerifyChecksum(r.File(), r.RawFile(), r.FileSize())
	if err != nil {
		t.Fatalf("VerifyChecksum failed: %v", err)
	}
	if cs.Stored != 0 || !cs.Valid {
		t.Errorf("checksum = %+v, want unset and valid", cs)
	}
}
