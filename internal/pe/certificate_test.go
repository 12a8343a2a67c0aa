package pe

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
)

// appendCertificate appends a WIN_CERTIFICATE to the image at path and
// points the security directory at it. buildImage puts the PE header at 64.
func appendCertificate(t *testing.T, path string) (offset, size uint32) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	offset = uint32(len(data))
	cert := make([]byte, 16)
	binary.LittleEndian.PutUint32(cert[0:4], uint32(len(cert)))
	binary.LittleEndian.PutUint16(cert[4:6], WIN_CERT_REVISION_2_0)
	binary.LittleEndian.PutUint16(cert[6:8], WIN_CERT_TYPE_PKCS_SIGNED_DATA)
	data = append(data, cert...)

	dir := 64 + 4 + 20 + 112 + certificateDirectoryIndex*8
	binary.LittleEndian.PutUint32(data[dir:], offset)
	binary.LittleEndian.PutUint32(data[dir+4:], uint32(len(cert)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return offset, uint32(len(cert))
}

func TestReadCertificateTable(t *testing.T) {
	path := buildImage(t, sampleManager(t))
	r, _ := openResources(t, path)
	if cert, err := readCertificateTable(r.File(), r.RawFile()); err != nil || cert != nil {
		t.Fatalf("unsigned image: cert = %+v, err = %v", cert, err)
	}

	signed := buildImage(t, sampleManager(t))
	offset, size := appendCertificate(t, signed)
	r, _ = openResources(t, signed)
	cert, err := readCertificateTable(r.File(), r.RawFile())
	if err != nil {
		t.Fatalf("readCertificateTable failed: %v", err)
	}
	if cert == nil || cert.Offset != offset || cert.Size != size || !cert.Authenticode() {
		t.Errorf("cert = %+v", cert)
	}

	info, err := NewAnalyzer(r).Analyze()
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !info.Signed {
		t.Error("Analyze did not report the signature")
	}
}

func TestReplaceResourcesStripsCertificate(t *testing.T) {
	path := buildImage(t, sampleManager(t))
	unsigned, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	appendCertificate(t, path)

	p, err := NewPatcher(path)
	if err != nil {
		t.Fatalf("NewPatcher failed: %v", err)
	}
	m, err := p.Resources(rsrc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Resources failed: %v", err)
	}
	if err := m.SetManifest("<a/>"); err != nil {
		t.Fatalf("SetManifest failed: %v", err)
	}
	res, err := p.ReplaceResources(m)
	if err != nil {
		t.Fatalf("ReplaceResources failed: %v", err)
	}
	if !res.CertificateRemoved || !res.InPlace {
		t.Errorf("result = %+v", res)
	}
	if dir := dataDirectory(p.File(), certificateDirectoryIndex); dir.VirtualAddress != 0 || dir.Size != 0 {
		t.Errorf("security directory = %+v, want cleared", dir)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() != unsigned.Size() {
		t.Errorf("file size = %d, want %d after truncation", after.Size(), unsigned.Size())
	}
}
