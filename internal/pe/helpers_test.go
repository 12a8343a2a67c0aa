package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
)

var quiet = &log.Logger{Handler: discard.New(), Level: log.ErrorLevel}

const (
	testFileAlignment    = 0x200
	testSectionAlignment = 0x1000
	testHeadersSize      = 0x400
	testResourceRVA      = 0x1000
)

// buildImage writes a minimal PE32+ image whose only section is .rsrc
// holding the serialized tree of m. The section's virtual size is exactly
// the directory size.
func buildImage(t *testing.T, m *rsrc.Manager) string {
	t.Helper()

	blob, err := m.Serialize(testResourceRVA)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	size := uint32(len(blob.Bytes))
	rawSize := alignUp(size, testFileAlignment)

	var buf bytes.Buffer
	dos := make([]byte, 64)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[60:], 64)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	write := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write failed: %v", err)
		}
	}
	write(pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 240,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE,
	})
	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		ImageBase:           0x140000000,
		SectionAlignment:    testSectionAlignment,
		FileAlignment:       testFileAlignment,
		SizeOfImage:         testResourceRVA + alignUp(size, testSectionAlignment),
		SizeOfHeaders:       testHeadersSize,
		Subsystem:           pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[resourceDirectoryIndex] = pe.DataDirectory{VirtualAddress: testResourceRVA, Size: size}
	write(oh)

	var name [8]uint8
	copy(name[:], ".rsrc")
	write(pe.SectionHeader32{
		Name:             name,
		VirtualSize:      size,
		VirtualAddress:   testResourceRVA,
		SizeOfRawData:    rawSize,
		PointerToRawData: testHeadersSize,
		Characteristics:  ResourceCharacteristics,
	})

	buf.Write(make([]byte, testHeadersSize-buf.Len()))
	buf.Write(blob.Bytes)
	buf.Write(make([]byte, rawSize-size))

	path := filepath.Join(t.TempDir(), "app.exe")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

// sampleManager holds a manifest and one PNG icon.
func sampleManager(t *testing.T) *rsrc.Manager {
	t.Helper()
	m := rsrc.NewManager(rsrc.NewTree(), rsrc.WithLogger(quiet), rsrc.WithDefaultLang(0x0409))
	if err := m.SetManifest(`<assembly xmlns="urn:schemas-microsoft-com:asm.v1" manifestVersion="1.0"/>`); err != nil {
		t.Fatalf("SetManifest failed: %v", err)
	}
	if _, err := m.AddIcon(pngIcon(t, 16)); err != nil {
		t.Fatalf("AddIcon failed: %v", err)
	}
	return m
}

func pngIcon(t *testing.T, size int) rsrc.Icon {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x ^ y), A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return rsrc.Icon{Width: uint8(size), Height: uint8(size), Planes: 1, BitCount: 32, Pixels: buf.Bytes()}
}
