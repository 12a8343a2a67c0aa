package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"
)

// sectionHeaderSize is sizeof(IMAGE_SECTION_HEADER).
const sectionHeaderSize = 40

// SectionInjector handles adding new sections to PE files.
type SectionInjector struct {
	patcher *Patcher
}

// NewSectionInjector creates a new section injector.
func NewSectionInjector(patcher *Patcher) *SectionInjector {
	return &SectionInjector{
		patcher: patcher,
	}
}

// coffHeader locates the COFF header and returns its raw bytes.
func (s *SectionInjector) coffHeader() (int64, []byte, error) {
	hdr, err := peHeaderOffset(s.patcher.file)
	if err != nil {
		return 0, nil, err
	}
	coff := make([]byte, 20)
	if _, err := s.patcher.file.ReadAt(coff, hdr+4); err != nil {
		return 0, nil, fmt.Errorf("读取COFF头失败: %w", err)
	}
	return hdr, coff, nil
}

// InjectSection appends a section holding data after the last section.
func (s *SectionInjector) InjectSection(name string, data []byte, characteristics uint32) error {
	if len(name) > 8 {
		return fmt.Errorf("节区名称过长: %d 字节 (最大8字节)", len(name))
	}
	if len(s.patcher.peFile.Sections) == 0 {
		return fmt.Errorf("文件没有节区，无法追加新节区")
	}

	fileAlignment, sectionAlignment, err := s.getAlignments()
	if err != nil {
		return err
	}

	hdr, coff, err := s.coffHeader()
	if err != nil {
		return err
	}
	numberOfSections := binary.LittleEndian.Uint16(coff[2:4])
	optionalHeaderSize := binary.LittleEndian.Uint16(coff[16:18])

	sectionTableOffset := hdr + 4 + 20 + int64(optionalHeaderSize)
	newSectionHeaderOffset := sectionTableOffset + int64(numberOfSections)*sectionHeaderSize
	if err := s.checkHeaderSpace(newSectionHeaderOffset + sectionHeaderSize); err != nil {
		return err
	}

	last := s.patcher.peFile.Sections[len(s.patcher.peFile.Sections)-1]
	newFileOffset := alignUp(last.Offset+last.Size, fileAlignment)
	newVirtualAddress := alignUp(last.VirtualAddress+max(last.VirtualSize, last.Size), sectionAlignment)
	virtualSize := uint32(len(data))
	rawSize := alignUp(virtualSize, fileAlignment)

	header := make([]byte, sectionHeaderSize)
	copy(header[0:8], name)
	binary.LittleEndian.PutUint32(header[8:12], virtualSize)
	binary.LittleEndian.PutUint32(header[12:16], newVirtualAddress)
	binary.LittleEndian.PutUint32(header[16:20], rawSize)
	binary.LittleEndian.PutUint32(header[20:24], newFileOffset)
	// Relocation and line number fields stay zero.
	binary.LittleEndian.PutUint32(header[36:40], characteristics)

	if _, err := s.patcher.file.WriteAt(header, newSectionHeaderOffset); err != nil {
		return fmt.Errorf("写入节区头失败: %w", err)
	}

	aligned := make([]byte, rawSize)
	copy(aligned, data)
	if _, err := s.patcher.file.WriteAt(aligned, int64(newFileOffset)); err != nil {
		return fmt.Errorf("写入节区数据失败: %w", err)
	}

	binary.LittleEndian.PutUint16(coff[2:4], numberOfSections+1)
	if _, err := s.patcher.file.WriteAt(coff[2:4], hdr+4+2); err != nil {
		return fmt.Errorf("更新节区数量失败: %w", err)
	}

	return s.updateSizeOfImage(hdr, newVirtualAddress+alignUp(virtualSize, sectionAlignment))
}

// getAlignments returns FileAlignment and SectionAlignment from Optional Header.
func (s *SectionInjector) getAlignments() (uint32, uint32, error) {
	switch oh := s.patcher.peFile.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return oh.FileAlignment, oh.SectionAlignment, nil
	case *pe.OptionalHeader64:
		return oh.FileAlignment, oh.SectionAlignment, nil
	}
	return 0, 0, fmt.Errorf("无法读取对齐值")
}

// checkHeaderSpace verifies the section table can grow to end without
// running into the first section's raw data.
func (s *SectionInjector) checkHeaderSpace(end int64) error {
	first := s.patcher.peFile.Sections[0]
	for _, sec := range s.patcher.peFile.Sections {
		if sec.Offset != 0 && sec.Offset < first.Offset {
			first = sec
		}
	}
	if end > int64(first.Offset) {
		return fmt.Errorf("节区头表空间不足，无法添加新节区")
	}
	return nil
}

// updateSizeOfImage updates the SizeOfImage field, at offset 56 of both
// PE32 and PE32+ optional headers.
func (s *SectionInjector) updateSizeOfImage(hdr int64, newSize uint32) error {
	sizeBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBytes, newSize)

	if _, err := s.patcher.file.WriteAt(sizeBytes, hdr+4+20+56); err != nil {
		return fmt.Errorf("更新SizeOfImage失败: %w", err)
	}
	return nil
}

// alignUp rounds value up to a multiple of alignment. An alignment of 0
// leaves value unchanged.
func alignUp[V constraints.Integer](value, alignment V) V {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}

// InjectSection is a convenience method on Patcher.
func (p *Patcher) InjectSection(name string, data []byte, characteristics uint32) error {
	return NewSectionInjector(p).InjectSection(name, data, characteristics)
}

// ResourceCharacteristics marks a read-only initialized data section, the
// flags linkers give .rsrc.
const ResourceCharacteristics = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ
