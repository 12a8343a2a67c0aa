// Package pe reads PE images and rewrites their resource section.
package pe

import (
	"debug/pe"
	"fmt"
	"io"
	"os"
)

// resourceDirectoryIndex is IMAGE_DIRECTORY_ENTRY_RESOURCE.
const resourceDirectoryIndex = 2

// Reader wraps debug/pe.File with additional metadata.
type Reader struct {
	file     *pe.File
	raw      *os.File
	filepath string
	filesize int64
}

// ResourceSection is the raw resource directory of an image.
type ResourceSection struct {
	// Name of the section holding the directory.
	Name string

	// RVA and Size as recorded in the data directory.
	RVA  uint32
	Size uint32

	// Offset is the file offset of RVA.
	Offset uint32

	// RawSize is the room available in the file from Offset to the end of
	// the section's raw data.
	RawSize uint32

	// Data holds the section bytes starting at RVA.
	Data []byte
}

// Open opens a PE file for reading.
func Open(filepath string) (*Reader, error) {
	raw, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开PE文件失败: %w", err)
	}

	f, err := pe.NewFile(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("解析PE文件失败: %w", err)
	}

	stat, err := raw.Stat()
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("获取文件信息失败: %w", err)
	}

	return &Reader{
		file:     f,
		raw:      raw,
		filepath: filepath,
		filesize: stat.Size(),
	}, nil
}

// Close closes the underlying PE file.
func (r *Reader) Close() error {
	_ = r.file.Close()
	return r.raw.Close()
}

// File returns the underlying debug/pe.File.
func (r *Reader) File() *pe.File {
	return r.file
}

// RawFile returns the file for direct reads.
func (r *Reader) RawFile() io.ReaderAt {
	return r.raw
}

// FilePath returns the file path.
func (r *Reader) FilePath() string {
	return r.filepath
}

// FileSize returns the file size in bytes.
func (r *Reader) FileSize() int64 {
	return r.filesize
}

// ResourceSection reads the resource directory. It returns nil without an
// error when the image has no resources.
func (r *Reader) ResourceSection() (*ResourceSection, error) {
	return readResourceSection(r.file, r.raw)
}

func readResourceSection(f *pe.File, r io.ReaderAt) (*ResourceSection, error) {
	dir := dataDirectory(f, resourceDirectoryIndex)

	var section *pe.Section
	rva, size := dir.VirtualAddress, dir.Size
	if rva != 0 {
		section = sectionForRVA(f, rva)
		if section == nil {
			return nil, fmt.Errorf("资源目录 RVA 0x%X 不在任何节区内", rva)
		}
	} else {
		// Objects and some stripped images only carry the section.
		section = f.Section(".rsrc")
		if section == nil {
			return nil, nil
		}
		rva, size = section.VirtualAddress, section.VirtualSize
	}

	start := rva - section.VirtualAddress
	if start >= section.Size {
		return nil, fmt.Errorf("资源目录超出节区 %s 的原始数据", section.Name)
	}
	rawSize := section.Size - start

	data := make([]byte, rawSize)
	if _, err := r.ReadAt(data, int64(section.Offset+start)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("读取资源节失败: %w", err)
	}

	return &ResourceSection{
		Name:    section.Name,
		RVA:     rva,
		Size:    size,
		Offset:  section.Offset + start,
		RawSize: rawSize,
		Data:    data,
	}, nil
}

// dataDirectory returns entry i of the optional header's data directory.
func dataDirectory(f *pe.File, i int) pe.DataDirectory {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if int(oh.NumberOfRvaAndSizes) > i {
			return oh.DataDirectory[i]
		}
	case *pe.OptionalHeader64:
		if int(oh.NumberOfRvaAndSizes) > i {
			return oh.DataDirectory[i]
		}
	}
	return pe.DataDirectory{}
}

func sectionForRVA(f *pe.File, rva uint32) *pe.Section {
	for _, s := range f.Sections {
		size := max(s.VirtualSize, s.Size)
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+size {
			return s
		}
	}
	return nil
}

// rvaToOffset converts an RVA to a file offset.
func rvaToOffset(f *pe.File, rva uint32) (uint32, error) {
	s := sectionForRVA(f, rva)
	if s == nil {
		return 0, fmt.Errorf("RVA 0x%X 不在任何节区内", rva)
	}
	return rva - s.VirtualAddress + s.Offset, nil
}
