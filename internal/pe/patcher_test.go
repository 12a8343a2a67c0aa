package pe

import (
	"os"
	"testing"

	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
)

func openResources(t *testing.T, path string) (*Reader, *rsrc.Manager) {
	t.Helper()
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	m, err := LoadResources(r, rsrc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	return r, m
}

func TestLoadResources(t *testing.T) {
	want := sampleManager(t)
	r, m := openResources(t, buildImage(t, want))

	sec, err := r.ResourceSection()
	if err != nil {
		t.Fatalf("ResourceSection failed: %v", err)
	}
	if sec.Name != ".rsrc" || sec.RVA != testResourceRVA {
		t.Errorf("section = %s at 0x%x", sec.Name, sec.RVA)
	}
	if !rsrc.Equal(m.Tree(), want.Tree()) {
		t.Errorf("loaded tree differs:\n%s\nwant:\n%s", m, want)
	}
	if !m.HasManifest() || !m.HasIcons() {
		t.Errorf("HasManifest = %v, HasIcons = %v", m.HasManifest(), m.HasIcons())
	}
}

func TestReplaceResourcesInPlace(t *testing.T) {
	path := buildImage(t, sampleManager(t))

	p, err := NewPatcher(path)
	if err != nil {
		t.Fatalf("NewPatcher failed: %v", err)
	}
	m, err := p.Resources(rsrc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Resources failed: %v", err)
	}
	// A shorter manifest fits the old room.
	if err := m.SetManifest("<a/>"); err != nil {
		t.Fatalf("SetManifest failed: %v", err)
	}
	res, err := p.ReplaceResources(m)
	if err != nil {
		t.Fatalf("ReplaceResources failed: %v", err)
	}
	if !res.InPlace || res.Section != ".rsrc" || res.RVA != testResourceRVA {
		t.Errorf("result = %+v, want in place in .rsrc", res)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, got := openResources(t, path)
	if s, err := got.Manifest(); err != nil || s != "<a/>" {
		t.Errorf("Manifest = %q, %v", s, err)
	}
	if !rsrc.Equal(got.Tree(), m.Tree()) {
		t.Errorf("reloaded tree differs:\n%s\nwant:\n%s", got, m)
	}
}

func TestReplaceResourcesInjectsSection(t *testing.T) {
	path := buildImage(t, sampleManager(t))
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	p, err := NewPatcher(path)
	if err != nil {
		t.Fatalf("NewPatcher failed: %v", err)
	}
	defer func() { _ = p.Close() }()

	m, err := p.Resources(rsrc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Resources failed: %v", err)
	}
	added, err := m.AddIcon(pngIcon(t, 48))
	if err != nil {
		t.Fatalf("AddIcon failed: %v", err)
	}
	if added.ID != 2 {
		t.Errorf("new icon id = %d, want 2", added.ID)
	}

	res, err := p.ReplaceResources(m)
	if err != nil {
		t.Fatalf("ReplaceResources failed: %v", err)
	}
	if !res.Injected || res.Section != DefaultResourceSectionName {
		t.Fatalf("result = %+v, want an injected %s", res, DefaultResourceSectionName)
	}
	if res.RVA != 0x2000 {
		t.Errorf("new section RVA = 0x%x, want 0x2000", res.RVA)
	}
	if len(p.File().Sections) != 2 {
		t.Errorf("got %d sections, want 2", len(p.File().Sections))
	}
	if err := p.UpdateChecksum(); err != nil {
		t.Fatalf("UpdateChecksum failed: %v", err)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() <= before.Size() {
		t.Errorf("file did not grow: %d -> %d", before.Size(), after.Size())
	}

	r, got := openResources(t, path)
	if !rsrc.Equal(got.Tree(), m.Tree()) {
		t.Errorf("reloaded tree differs:\n%s\nwant:\n%s", got, m)
	}
	icons, err := got.Icons()
	if err != nil || len(icons) != 2 {
		t.Fatalf("Icons = %d, %v", len(icons), err)
	}
	if w, _ := icons[1].Size(); w != 48 {
		t.Errorf("second icon width = %d, want 48", w)
	}

	cs, err := VerifyChecksum(r.File(), r.RawFile(), r.FileSize())
	if err != nil {
		t.Fatalf("VerifyChecksum failed: %v", err)
	}
	if cs.Stored == 0 || !cs.Valid {
		t.Errorf("checksum = %+v, want a valid stored checksum", cs)
	}
}

func TestReplaceResourcesSectionName(t *testing.T) {
	p, err := NewPatcher(buildImage(t, sampleManager(t)))
	if err != nil {
		t.Fatalf("NewPatcher failed: %v", err)
	}
	defer func() { _ = p.Close() }()

	p.SetSectionName(".toolong9")
	m, err := p.Resources(rsrc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Resources failed: %v", err)
	}
	if _, err := m.AddIcon(pngIcon(t, 32)); err != nil {
		t.Fatalf("AddIcon failed: %v", err)
	}
	if _, err := p.ReplaceResources(m); err == nil {
		t.Error("ReplaceResources accepted a 9 byte section name")
	}
}

func TestReadRVA(t *testing.T) {
	p, err := NewPatcher(buildImage(t, sampleManager(t)))
	if err != nil {
		t.Fatalf("NewPatcher failed: %v", err)
	}
	defer func() { _ = p.Close() }()

	// The root directory lists RT_ICON, RT_GROUP_ICON and RT_MANIFEST by id.
	b, err := p.ReadRVA(testResourceRVA, 16)
	if err != nil {
		t.Fatalf("ReadRVA failed: %v", err)
	}
	if named, ids := uint16(b[12])|uint16(b[13])<<8, uint16(b[14])|uint16(b[15])<<8; named != 0 || ids != 3 {
		t.Errorf("root entries = %d named, %d ids; want 0, 3", named, ids)
	}
	if _, err := p.ReadRVA(0x9000, 4); err == nil {
		t.Error("ReadRVA outside every section succeeded")
	}
}
