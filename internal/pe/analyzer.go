package pe

import (
	"debug/pe"
	"fmt"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
	"github.com/apex/log"
	"github.com/h2non/filetype"
)

// Info contains analyzed PE file information.
type Info struct {
	FilePath     string
	FileSize     int64
	Architecture string
	Subsystem    string
	Checksum     *ChecksumInfo
	Signed       bool
	Sections     []SectionInfo
	Resources    *ResourceInfo
}

// SectionInfo contains information about a PE section.
type SectionInfo struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Size            uint32
	Characteristics uint32
	Permissions     string
}

// ResourceInfo summarizes the resource directory.
type ResourceInfo struct {
	Section   string
	RVA       uint32
	Size      uint32
	Types     []string
	Languages []string
	Version   *VersionInfo `json:",omitempty"`
	Manifest  string       `json:",omitempty"`
	Icons     []IconInfo
	Dialogs   []string
	Strings   int
	Leaves    []LeafInfo

	// Warnings lists the typed views that could not be decoded.
	Warnings []string `json:",omitempty"`
}

// VersionInfo is the flattened RT_VERSION resource.
type VersionInfo struct {
	Lang           string
	FileVersion    string
	ProductVersion string

	// Strings merges every string table in file order.
	Strings *ordereddict.Dict
}

// IconInfo describes one icon referenced by a group.
type IconInfo struct {
	Group    string
	ID       uint16
	Lang     string
	Width    int
	Height   int
	BitCount uint16
	Bytes    int
	MIME     string
}

// LeafInfo describes one data leaf of the resource tree.
type LeafInfo struct {
	Path     string
	Size     int
	CodePage uint32
	Entropy  float64
	MIME     string
}

// Analyzer extracts information from PE files.
type Analyzer struct {
	reader *Reader
	log    log.Interface
}

// NewAnalyzer creates a new analyzer for the given reader.
func NewAnalyzer(r *Reader) *Analyzer {
	return &Analyzer{reader: r, log: log.Log}
}

// SetLogger replaces the logger passed to the resource parser.
func (a *Analyzer) SetLogger(l log.Interface) {
	a.log = l
}

// Analyze extracts all information from the PE file.
func (a *Analyzer) Analyze() (*Info, error) {
	f := a.reader.File()

	info := &Info{
		FilePath: a.reader.FilePath(),
		FileSize: a.reader.FileSize(),
	}

	a.extractBasicInfo(f, info)
	a.extractSections(f, info)
	a.verifyChecksum(f, info)
	a.checkCertificate(f, info)

	res, err := a.extractResources()
	if err != nil {
		return nil, err
	}
	info.Resources = res

	return info, nil
}

func (a *Analyzer) extractBasicInfo(f *pe.File, info *Info) {
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		info.Architecture = "x86 (32位)"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		info.Architecture = "x64 (64位)"
	case pe.IMAGE_FILE_MACHINE_ARM:
		info.Architecture = "ARM"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		info.Architecture = "ARM64"
	default:
		info.Architecture = fmt.Sprintf("未知 (0x%X)", f.Machine)
	}

	switch opt := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		info.Subsystem = getSubsystem(opt.Subsystem)
	case *pe.OptionalHeader64:
		info.Subsystem = getSubsystem(opt.Subsystem)
	default:
		info.Subsystem = "无 (目标文件)"
	}
}

func (a *Analyzer) extractSections(f *pe.File, info *Info) {
	for _, section := range f.Sections {
		info.Sections = append(info.Sections, SectionInfo{
			Name:            section.Name,
			VirtualAddress:  section.VirtualAddress,
			VirtualSize:     section.VirtualSize,
			Size:            section.Size,
			Characteristics: section.Characteristics,
			Permissions:     getSectionPermissions(section.Characteristics),
		})
	}
}

func (a *Analyzer) verifyChecksum(f *pe.File, info *Info) {
	if f.OptionalHeader == nil {
		return
	}
	checksum, err := VerifyChecksum(f, a.reader.RawFile(), a.reader.FileSize())
	if err != nil {
		a.log.WithError(err).Warn("checksum not verified")
		return
	}
	info.Checksum = checksum
}

func (a *Analyzer) checkCertificate(f *pe.File, info *Info) {
	if f.OptionalHeader == nil {
		return
	}
	cert, err := readCertificateTable(f, a.reader.RawFile())
	if err != nil {
		a.log.WithError(err).Warn("certificate table unreadable")
		return
	}
	info.Signed = cert != nil && cert.Authenticode()
}

func (a *Analyzer) extractResources() (*ResourceInfo, error) {
	sec, err := a.reader.ResourceSection()
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, nil
	}

	m, err := rsrc.Load(sec.Data, sec.RVA, rsrc.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("解析资源目录失败: %w", err)
	}

	res := &ResourceInfo{
		Section: sec.Name,
		RVA:     sec.RVA,
		Size:    sec.Size,
	}
	for t := range m.TypesAvailable() {
		res.Types = append(res.Types, t.String())
	}
	for l := range m.LangsAvailable() {
		res.Languages = append(res.Languages, l.String())
	}

	if m.HasVersion() {
		if v, err := m.Version(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("版本信息: %v", err))
		} else {
			res.Version = flattenVersion(v)
		}
	}
	if m.HasManifest() {
		if s, err := m.Manifest(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("清单: %v", err))
		} else {
			res.Manifest = s
		}
	}
	if m.HasIcons() {
		if groups, err := m.IconGroups(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("图标: %v", err))
		} else {
			res.Icons = flattenIcons(groups)
		}
	}
	if m.HasDialogs() {
		if dialogs, err := m.Dialogs(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("对话框: %v", err))
		} else {
			for _, d := range dialogs {
				res.Dialogs = append(res.Dialogs, fmt.Sprintf("%s %q (%d 个控件)", d.Selector, d.Title, len(d.Items)))
			}
		}
	}
	if m.HasStringTable() {
		if entries, err := m.StringTable(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("字符串表: %v", err))
		} else {
			res.Strings = len(entries)
		}
	}

	leaves, err := resourceLeaves(m.Tree())
	if err != nil {
		return nil, err
	}
	res.Leaves = leaves

	return res, nil
}

func flattenVersion(v *rsrc.Version) *VersionInfo {
	out := &VersionInfo{Lang: v.Lang.String(), Strings: ordereddict.NewDict()}
	if v.Fixed != nil {
		out.FileVersion = v.Fixed.FileVersion()
		out.ProductVersion = v.Fixed.ProductVersion()
	}
	for _, st := range v.StringTables {
		for _, k := range st.Entries.Keys() {
			if _, seen := out.Strings.Get(k); seen {
				continue
			}
			s, _ := st.Entries.GetString(k)
			out.Strings.Set(k, s)
		}
	}
	return out
}

func flattenIcons(groups []rsrc.IconGroup) []IconInfo {
	var out []IconInfo
	for _, g := range groups {
		for _, icon := range g.Icons {
			w, h := icon.Size()
			out = append(out, IconInfo{
				Group:    g.Selector.String(),
				ID:       icon.ID,
				Lang:     icon.Lang.String(),
				Width:    w,
				Height:   h,
				BitCount: icon.BitCount,
				Bytes:    len(icon.Pixels),
				MIME:     icon.MIME(),
			})
		}
	}
	return out
}

// resourceLeaves lists every data leaf with its size, entropy and sniffed
// media type.
func resourceLeaves(t *rsrc.Tree) ([]LeafInfo, error) {
	var leaves []LeafInfo
	err := t.Walk(t.Root(), func(path []rsrc.Selector, h rsrc.Handle, kind rsrc.Kind) error {
		if kind != rsrc.KindData {
			return nil
		}
		d, err := t.Data(h)
		if err != nil {
			return err
		}
		leaves = append(leaves, LeafInfo{
			Path:     FormatPath(path),
			Size:     len(d.Bytes),
			CodePage: d.CodePage,
			Entropy:  CalculateEntropy(d.Bytes),
			MIME:     sniffMIME(d.Bytes),
		})
		return nil
	})
	return leaves, err
}

// FormatPath renders a type/name/language path, e.g. ICON/#1/0x0409.
func FormatPath(path []rsrc.Selector) string {
	parts := make([]string, len(path))
	for i, sel := range path {
		id, isID := sel.ID()
		switch {
		case i == 0 && isID:
			parts[i] = rsrc.ResourceType(id).String()
		case i == 2 && isID:
			parts[i] = fmt.Sprintf("0x%04x", id)
		default:
			parts[i] = sel.String()
		}
	}
	return strings.Join(parts, "/")
}

func sniffMIME(b []byte) string {
	kind, err := filetype.Match(b)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

func getSubsystem(subsystem uint16) string {
	switch subsystem {
	case pe.IMAGE_SUBSYSTEM_WINDOWS_GUI:
		return "Windows GUI"
	case pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "Windows 控制台"
	case pe.IMAGE_SUBSYSTEM_NATIVE:
		return "Native"
	default:
		return fmt.Sprintf("未知 (0x%X)", subsystem)
	}
}

func getSectionPermissions(c uint32) string {
	perms := []byte("---")
	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}
	return string(perms)
}
