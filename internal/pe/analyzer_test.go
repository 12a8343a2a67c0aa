package pe

import (
	"debug/pe"
	"strings"
	"testing"

	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
)

func TestAnalyze(t *testing.T) {
	r, _ := openResources(t, buildImage(t, sampleManager(t)))
	a := NewAnalyzer(r)
	a.SetLogger(quiet)

	info, err := a.Analyze()
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if info.Architecture != "x64 (64位)" || info.Subsystem != "Windows GUI" {
		t.Errorf("basic info = %q %q", info.Architecture, info.Subsystem)
	}
	if len(info.Sections) != 1 || info.Sections[0].Permissions != "R--" {
		t.Errorf("sections = %+v", info.Sections)
	}

	res := info.Resources
	if res == nil {
		t.Fatal("no resource info")
	}
	if got := strings.Join(res.Types, ","); got != "ICON,GROUP_ICON,MANIFEST" {
		t.Errorf("Types = %s", got)
	}
	if len(res.Icons) != 1 || res.Icons[0].MIME != "image/png" || res.Icons[0].Width != 16 {
		t.Errorf("Icons = %+v", res.Icons)
	}
	if !strings.Contains(res.Manifest, "manifestVersion") {
		t.Errorf("Manifest = %q", res.Manifest)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v", res.Warnings)
	}

	if len(res.Leaves) != 3 {
		t.Fatalf("got %d leaves, want 3", len(res.Leaves))
	}
	icon := res.Leaves[0]
	if icon.Path != "ICON/#1/0x0409" || icon.MIME != "image/png" {
		t.Errorf("first leaf = %+v", icon)
	}
	if icon.Entropy <= 0 || icon.Entropy > 8 {
		t.Errorf("icon entropy = %v", icon.Entropy)
	}
}

func TestAnalyzeWithoutResources(t *testing.T) {
	r, _ := openResources(t, buildImage(t, rsrc.NewManager(rsrc.NewTree())))
	info, err := NewAnalyzer(r).Analyze()
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	// An empty tree still has a root directory.
	if info.Resources == nil || len(info.Resources.Types) != 0 || len(info.Resources.Leaves) != 0 {
		t.Errorf("Resources = %+v, want an empty directory", info.Resources)
	}
}

func TestAnalyzeDanglingGroupIcon(t *testing.T) {
	// GRPICONDIR with one 16x16 entry referencing RT_ICON 3, which is absent.
	group := []byte{
		0, 0, 1, 0, 1, 0,
		16, 16, 0, 0, 1, 0, 32, 0, 4, 0, 0, 0, 3, 0,
	}
	tree := rsrc.NewTree()
	typeDir, err := tree.AppendDirectory(tree.Root(), rsrc.TypeSelector(rsrc.RT_GROUP_ICON))
	if err != nil {
		t.Fatal(err)
	}
	nameDir, err := tree.AppendDirectory(typeDir, rsrc.ID(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tree.AppendData(nameDir, rsrc.ID(0x0409), rsrc.DataEntry{Bytes: group}); err != nil {
		t.Fatal(err)
	}

	r, _ := openResources(t, buildImage(t, rsrc.NewManager(tree, rsrc.WithLogger(quiet))))
	a := NewAnalyzer(r)
	a.SetLogger(quiet)
	info, err := a.Analyze()
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	res := info.Resources
	if len(res.Icons) != 0 {
		t.Errorf("Icons = %+v, want none", res.Icons)
	}
	if len(res.Warnings) != 1 || !strings.HasPrefix(res.Warnings[0], "图标: ") {
		t.Errorf("Warnings = %v, want one icon warning", res.Warnings)
	}
}

func TestFormatPath(t *testing.T) {
	tests := []struct {
		path []rsrc.Selector
		want string
	}{
		{[]rsrc.Selector{rsrc.TypeSelector(rsrc.RT_VERSION), rsrc.ID(1), rsrc.ID(0x0804)}, "VERSION/#1/0x0804"},
		{[]rsrc.Selector{rsrc.ID(300), rsrc.Name("DATA"), rsrc.ID(0)}, "300/\"DATA\"/0x0000"},
		{[]rsrc.Selector{rsrc.Name("PNG")}, "\"PNG\""},
	}
	for _, tt := range tests {
		if got := FormatPath(tt.path); got != tt.want {
			t.Errorf("FormatPath = %s, want %s", got, tt.want)
		}
	}
}

func TestGetSectionPermissions(t *testing.T) {
	tests := []struct {
		char uint32
		want string
	}{
		{pe.IMAGE_SCN_MEM_READ, "R--"},
		{pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE, "RW-"},
		{pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE, "R-X"},
		{pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE, "-WX"},
		{0, "---"},
	}
	for _, tt := range tests {
		if got := getSectionPermissions(tt.char); got != tt.want {
			t.Errorf("getSectionPermissions(0x%x) = %v, want %v", tt.char, got, tt.want)
		}
	}
}

func TestGetSubsystem(t *testing.T) {
	if got := getSubsystem(pe.IMAGE_SUBSYSTEM_WINDOWS_CUI); got != "Windows 控制台" {
		t.Errorf("getSubsystem(CUI) = %v", got)
	}
	if got := getSubsystem(0xFF); got != "未知 (0xFF)" {
		t.Errorf("getSubsystem(0xFF) = %v", got)
	}
}
