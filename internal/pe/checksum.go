package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
)

// ChecksumInfo contains PE checksum verification results.
type ChecksumInfo struct {
	Stored   uint32
	Computed uint32
	Valid    bool
}

// VerifyChecksum recomputes the image checksum and compares it with the
// stored one. A stored checksum of 0 means the image is not checksummed and
// is reported as valid.
func VerifyChecksum(f *pe.File, r io.ReaderAt, filesize int64) (*ChecksumInfo, error) {
	var stored uint32
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		stored = oh.CheckSum
	case *pe.OptionalHeader64:
		stored = oh.CheckSum
	}

	if stored == 0 {
		return &ChecksumInfo{Valid: true}, nil
	}

	off, err := checksumOffset(r)
	if err != nil {
		return nil, err
	}
	computed, err := CalculatePEChecksum(r, filesize, off)
	if err != nil {
		return nil, fmt.Errorf("计算校验和失败: %w", err)
	}

	return &ChecksumInfo{
		Stored:   stored,
		Computed: computed,
		Valid:    stored == computed,
	}, nil
}

// peHeaderOffset reads e_lfanew from the DOS header.
func peHeaderOffset(r io.ReaderAt) (int64, error) {
	var lfanew [4]byte
	if _, err := r.ReadAt(lfanew[:], 60); err != nil {
		return 0, fmt.Errorf("读取DOS头失败: %w", err)
	}
	return int64(binary.LittleEndian.Uint32(lfanew[:])), nil
}

// checksumOffset is e_lfanew + Signature(4) + COFF(20) + 64. The field sits
// at the same place in PE32 and PE32+.
func checksumOffset(r io.ReaderAt) (int64, error) {
	off, err := peHeaderOffset(r)
	if err != nil {
		return 0, err
	}
	return off + 4 + 20 + 64, nil
}

// CalculatePEChecksum computes the image checksum. The 4 bytes at
// checksumOffset are skipped; pass -1 to include every byte.
func CalculatePEChecksum(r io.ReaderAt, filesize int64, checksumOffset int64) (uint32, error) {
	var sum uint64
	buf := make([]byte, 64*1024)

	for base := int64(0); base < filesize; base += int64(len(buf)) {
		n := int64(len(buf))
		if rest := filesize - base; rest < n {
			n = rest
		}
		chunk := buf[:n]
		if _, err := r.ReadAt(chunk, base); err != nil && err != io.EOF {
			return 0, err
		}

		for i := int64(0); i < n; i += 4 {
			off := base + i
			if off == checksumOffset {
				continue
			}

			// Pad a partial last dword with zeroes.
			var dword [4]byte
			copy(dword[:], chunk[i:])
			sum += uint64(binary.LittleEndian.Uint32(dword[:]))
			if sum > 0xFFFFFFFF {
				sum = (sum & 0xFFFFFFFF) + (sum >> 32)
			}
		}
	}

	sum = (sum & 0xFFFF) + (sum >> 16)
	sum += sum >> 16
	sum &= 0xFFFF

	return uint32(sum + uint64(filesize)), nil
}
