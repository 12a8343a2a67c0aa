package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
)

// DefaultResourceSectionName names the section injected when a new resource
// directory no longer fits the old one.
const DefaultResourceSectionName = ".rsrc2"

// Patcher handles PE file modifications.
type Patcher struct {
	filepath    string
	file        *os.File
	peFile      *pe.File
	filesize    int64
	sectionName string
}

// ReplaceResult tells where ReplaceResources put the new directory.
type ReplaceResult struct {
	Section  string
	RVA      uint32
	Size     uint32
	InPlace  bool
	Injected bool

	// CertificateRemoved is set when a signature had to be dropped.
	CertificateRemoved bool
}

// NewPatcher creates a new PE patcher for the given file.
func NewPatcher(filepath string) (*Patcher, error) {
	file, err := os.OpenFile(filepath, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}

	peFile, err := pe.NewFile(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("解析PE文件失败: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("获取文件信息失败: %w", err)
	}

	return &Patcher{
		filepath:    filepath,
		file:        file,
		peFile:      peFile,
		filesize:    stat.Size(),
		sectionName: DefaultResourceSectionName,
	}, nil
}

// Close closes the patcher and releases resources.
func (p *Patcher) Close() error {
	if p.peFile != nil {
		_ = p.peFile.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// SetSectionName sets the name used when a new resource section has to be
// injected.
func (p *Patcher) SetSectionName(name string) {
	p.sectionName = name
}

// File returns the underlying PE file structure.
func (p *Patcher) File() *pe.File {
	return p.peFile
}

// Resources parses the current resource directory.
func (p *Patcher) Resources(opts ...rsrc.ManagerOption) (*rsrc.Manager, error) {
	sec, err := readResourceSection(p.peFile, p.file)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return rsrc.NewManager(rsrc.NewTree(), opts...), nil
	}
	m, err := rsrc.Load(sec.Data, sec.RVA, opts...)
	if err != nil {
		return nil, fmt.Errorf("解析资源目录失败: %w", err)
	}
	return m, nil
}

// ReplaceResources serializes the manager's tree and installs it as the
// image's resource directory. The directory is rewritten in place when it
// fits the room of the old one, otherwise it goes to a newly injected
// section and data directory 2 is pointed at it. A certificate table is
// stripped first.
func (p *Patcher) ReplaceResources(m *rsrc.Manager) (*ReplaceResult, error) {
	if p.peFile.OptionalHeader == nil {
		return nil, fmt.Errorf("目标文件没有可选头，无法替换资源")
	}

	stripped, err := p.StripCertificate()
	if err != nil {
		return nil, fmt.Errorf("移除数字签名失败: %w", err)
	}

	result, err := p.replaceResources(m)
	if err != nil {
		return nil, err
	}
	result.CertificateRemoved = stripped
	return result, nil
}

func (p *Patcher) replaceResources(m *rsrc.Manager) (*ReplaceResult, error) {
	sec, err := readResourceSection(p.peFile, p.file)
	if err != nil {
		return nil, err
	}

	if sec != nil {
		blob, err := m.Serialize(sec.RVA)
		if err != nil {
			return nil, fmt.Errorf("序列化资源失败: %w", err)
		}
		if uint32(len(blob.Bytes)) <= p.inPlaceRoom(sec) {
			if err := p.writeInPlace(sec, blob); err != nil {
				return nil, err
			}
			return &ReplaceResult{
				Section: sec.Name,
				RVA:     sec.RVA,
				Size:    uint32(len(blob.Bytes)),
				InPlace: true,
			}, nil
		}
	}

	return p.injectResources(m)
}

// inPlaceRoom is the number of bytes available at the old directory's RVA,
// limited by both the raw data and the mapped size of its section.
func (p *Patcher) inPlaceRoom(sec *ResourceSection) uint32 {
	s := sectionForRVA(p.peFile, sec.RVA)
	start := sec.RVA - s.VirtualAddress
	mapped := s.VirtualSize
	if mapped == 0 {
		mapped = s.Size
	}
	if mapped <= start {
		return 0
	}
	return min(sec.RawSize, mapped-start)
}

func (p *Patcher) writeInPlace(sec *ResourceSection, blob *rsrc.Blob) error {
	// Clear what is left of a larger old directory.
	buf := blob.Bytes
	if sec.Size > uint32(len(buf)) && sec.Size <= sec.RawSize {
		buf = make([]byte, sec.Size)
		copy(buf, blob.Bytes)
	}

	if _, err := p.file.WriteAt(buf, int64(sec.Offset)); err != nil {
		return fmt.Errorf("写入资源数据失败: %w", err)
	}
	if err := p.updateDataDirectory(resourceDirectoryIndex, sec.RVA, uint32(len(blob.Bytes))); err != nil {
		return err
	}
	return p.Reload()
}

func (p *Patcher) injectResources(m *rsrc.Manager) (*ReplaceResult, error) {
	blob, err := m.Serialize(0)
	if err != nil {
		return nil, fmt.Errorf("序列化资源失败: %w", err)
	}

	// The RVA of the new section is only known once it exists, so inject
	// first and write the rebased directory over it.
	if err := p.InjectSection(p.sectionName, blob.Bytes, ResourceCharacteristics); err != nil {
		return nil, err
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}

	section := p.peFile.Sections[len(p.peFile.Sections)-1]
	blob.Rebase(section.VirtualAddress)

	if _, err := p.file.WriteAt(blob.Bytes, int64(section.Offset)); err != nil {
		return nil, fmt.Errorf("写入资源数据失败: %w", err)
	}

	size := uint32(len(blob.Bytes))
	if err := p.updateDataDirectory(resourceDirectoryIndex, section.VirtualAddress, size); err != nil {
		return nil, err
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}

	return &ReplaceResult{
		Section:  section.Name,
		RVA:      section.VirtualAddress,
		Size:     size,
		Injected: true,
	}, nil
}

// updateDataDirectory rewrites entry index of the optional header's data
// directory.
func (p *Patcher) updateDataDirectory(index int, rva, size uint32) error {
	hdr, err := peHeaderOffset(p.file)
	if err != nil {
		return err
	}

	// DataDirectory starts at 96 in PE32 and at 112 in PE32+.
	var dirOffset int64
	switch oh := p.peFile.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if int(oh.NumberOfRvaAndSizes) <= index {
			return fmt.Errorf("数据目录项 %d 不存在", index)
		}
		dirOffset = hdr + 4 + 20 + 96
	case *pe.OptionalHeader64:
		if int(oh.NumberOfRvaAndSizes) <= index {
			return fmt.Errorf("数据目录项 %d 不存在", index)
		}
		dirOffset = hdr + 4 + 20 + 112
	default:
		return fmt.Errorf("无法读取可选头")
	}

	entry := make([]byte, 8)
	binary.LittleEndian.PutUint32(entry[0:4], rva)
	binary.LittleEndian.PutUint32(entry[4:8], size)

	if _, err := p.file.WriteAt(entry, dirOffset+int64(index*8)); err != nil {
		return fmt.Errorf("更新数据目录失败: %w", err)
	}
	return nil
}

// UpdateChecksum recalculates and updates the PE checksum.
func (p *Patcher) UpdateChecksum() error {
	off, err := checksumOffset(p.file)
	if err != nil {
		return err
	}

	newChecksum, err := CalculatePEChecksum(p.file, p.filesize, off)
	if err != nil {
		return fmt.Errorf("计算校验和失败: %w", err)
	}

	checksumBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(checksumBytes, newChecksum)

	if _, err := p.file.WriteAt(checksumBytes, off); err != nil {
		return fmt.Errorf("写入校验和失败: %w", err)
	}

	return nil
}

// Reload re-parses the PE file to reflect changes made to disk.
func (p *Patcher) Reload() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("同步文件失败: %w", err)
	}

	// Close the parsed view but keep the file handle.
	if p.peFile != nil {
		_ = p.peFile.Close()
	}

	peFile, err := pe.NewFile(p.file)
	if err != nil {
		return fmt.Errorf("重新解析PE文件失败: %w", err)
	}
	p.peFile = peFile

	stat, err := p.file.Stat()
	if err != nil {
		return fmt.Errorf("获取文件信息失败: %w", err)
	}
	p.filesize = stat.Size()

	return nil
}

// ReadRVA reads data from a Relative Virtual Address.
func (p *Patcher) ReadRVA(rva, size uint32) ([]byte, error) {
	offset, err := rvaToOffset(p.peFile, rva)
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if _, err := p.file.ReadAt(data, int64(offset)); err != nil {
		return nil, fmt.Errorf("读取RVA 0x%X 失败: %w", rva, err)
	}

	return data, nil
}
