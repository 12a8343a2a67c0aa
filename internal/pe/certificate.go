package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
)

// certificateDirectoryIndex is IMAGE_DIRECTORY_ENTRY_SECURITY. Unlike the
// other data directories its VirtualAddress is a file offset.
const certificateDirectoryIndex = 4

// WIN_CERTIFICATE constants (Windows SDK naming convention).
//
//nolint:revive // ALL_CAPS matches Windows SDK naming
const (
	WIN_CERT_REVISION_2_0          = 0x0200
	WIN_CERT_TYPE_PKCS_SIGNED_DATA = 0x0002
)

// CertificateTable locates the attribute certificate table.
type CertificateTable struct {
	Offset   uint32
	Size     uint32
	Revision uint16
	Type     uint16
}

// readCertificateTable returns the table of f, or nil when the image is
// not signed. Only the first WIN_CERTIFICATE header is read; its content
// is left alone.
func readCertificateTable(f *pe.File, r io.ReaderAt) (*CertificateTable, error) {
	dir := dataDirectory(f, certificateDirectoryIndex)
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}

	hdr := make([]byte, 8)
	if _, err := r.ReadAt(hdr, int64(dir.VirtualAddress)); err != nil {
		return nil, fmt.Errorf("读取证书头失败: %w", err)
	}
	return &CertificateTable{
		Offset:   dir.VirtualAddress,
		Size:     dir.Size,
		Revision: binary.LittleEndian.Uint16(hdr[4:6]),
		Type:     binary.LittleEndian.Uint16(hdr[6:8]),
	}, nil
}

// Authenticode reports whether the table holds a PKCS#7 signature.
func (c *CertificateTable) Authenticode() bool {
	return c.Revision == WIN_CERT_REVISION_2_0 && c.Type == WIN_CERT_TYPE_PKCS_SIGNED_DATA
}

// StripCertificate clears the certificate data directory and truncates the
// table when it ends the file. A new section is placed where the table
// lives, and a rewritten resource directory breaks the signature anyway.
// It reports whether there was a table to remove.
func (p *Patcher) StripCertificate() (bool, error) {
	cert, err := readCertificateTable(p.peFile, p.file)
	if err != nil {
		return false, err
	}
	if cert == nil {
		return false, nil
	}

	if err := p.updateDataDirectory(certificateDirectoryIndex, 0, 0); err != nil {
		return false, err
	}
	if end := int64(cert.Offset) + int64(cert.Size); end >= p.filesize && int64(cert.Offset) < p.filesize {
		if err := p.file.Truncate(int64(cert.Offset)); err != nil {
			return false, fmt.Errorf("截断文件失败: %w", err)
		}
	}
	return true, p.Reload()
}
