package rsrc

import (
	"fmt"
	"iter"
	"math"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Manager is the typed view of a resource tree. It answers queries about
// the resource types present and applies icon and manifest mutations.
//
// A Manager is not safe for concurrent use while a mutation is in
// progress. Queries may run concurrently with each other.
type Manager struct {
	tree        *Tree
	log         log.Interface
	defaultLang LangID

	// Lazily built from the root directory, dropped on every mutation.
	mu    sync.Mutex
	types map[ResourceType]Handle
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger of the manager.
func WithLogger(l log.Interface) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithDefaultLang sets the language given to leaves the manager creates
// when nothing else decides it. The default is LANG_NEUTRAL.
func WithDefaultLang(id LangID) ManagerOption {
	return func(m *Manager) { m.defaultLang = id }
}

// NewManager wraps a parsed tree. The manager takes ownership of t.
func NewManager(t *Tree, opts ...ManagerOption) *Manager {
	m := &Manager{tree: t, log: log.Log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load parses a resource section and wraps the result in a Manager.
func Load(section []byte, baseRVA uint32, opts ...ManagerOption) (*Manager, error) {
	m := NewManager(nil, opts...)
	t, err := Parse(section, baseRVA, WithParseLogger(m.log))
	if err != nil {
		return nil, err
	}
	m.tree = t
	return m, nil
}

// Tree returns a snapshot of the current tree. Handles returned by the
// manager are valid in the snapshot.
func (m *Manager) Tree() *Tree {
	return m.tree.Clone()
}

// Serialize lays out the current tree for a section mapped at baseRVA.
func (m *Manager) Serialize(baseRVA uint32) (*Blob, error) {
	return Serialize(m.tree, baseRVA)
}

func (m *Manager) index() map[ResourceType]Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.types != nil {
		return m.types
	}
	types := make(map[ResourceType]Handle)
	children, _ := m.tree.Children(m.tree.Root())
	for _, c := range children {
		if id, ok := c.Selector.ID(); ok {
			types[ResourceType(id)] = c.Handle
		}
	}
	m.types = types
	return types
}

// HasType reports whether the tree has a top-level directory for t.
func (m *Manager) HasType(t ResourceType) bool {
	_, ok := m.index()[t]
	return ok
}

// NodeType returns the top-level directory of t.
func (m *Manager) NodeType(t ResourceType) (Handle, bool) {
	h, ok := m.index()[t]
	return h, ok
}

// TypesAvailable yields the numeric resource types in tree order.
func (m *Manager) TypesAvailable() iter.Seq[ResourceType] {
	return func(yield func(ResourceType) bool) {
		children, _ := m.tree.Children(m.tree.Root())
		for _, c := range children {
			if id, ok := c.Selector.ID(); ok {
				if !yield(ResourceType(id)) {
					return
				}
			}
		}
	}
}

// LangsAvailable yields each primary language used by a leaf, once, in
// order of first appearance.
func (m *Manager) LangsAvailable() iter.Seq[Lang] {
	return func(yield func(Lang) bool) {
		seen := make(map[Lang]bool)
		for id := range m.langIDs() {
			if l := id.Primary(); !seen[l] {
				seen[l] = true
				if !yield(l) {
					return
				}
			}
		}
	}
}

// SublangsAvailable yields each sub-language used by a leaf, once, in
// order of first appearance.
func (m *Manager) SublangsAvailable() iter.Seq[SubLang] {
	return func(yield func(SubLang) bool) {
		seen := make(map[SubLang]bool)
		for id := range m.langIDs() {
			if s := id.Sub(); !seen[s] {
				seen[s] = true
				if !yield(s) {
					return
				}
			}
		}
	}
}

// langIDs yields the numeric selectors of the third level, duplicates
// included.
func (m *Manager) langIDs() iter.Seq[LangID] {
	return func(yield func(LangID) bool) {
		types, _ := m.tree.Children(m.tree.Root())
		for _, tc := range types {
			names, err := m.tree.Children(tc.Handle)
			if err != nil {
				continue
			}
			for _, nc := range names {
				langs, err := m.tree.Children(nc.Handle)
				if err != nil {
					continue
				}
				for _, lc := range langs {
					if id, ok := lc.Selector.ID(); ok {
						if !yield(LangID(id)) {
							return
						}
					}
				}
			}
		}
	}
}

// leafRef locates a leaf at type/name/lang.
type leafRef struct {
	Name   Selector
	Lang   LangID
	Handle Handle
}

// typeLeaves lists the leaves under a type directory in tree order. Leaves
// at the wrong depth are skipped.
func (m *Manager) typeLeaves(t *Tree, rt ResourceType) []leafRef {
	typeDir, ok := t.Child(t.Root(), TypeSelector(rt))
	if !ok {
		return nil
	}
	names, err := t.Children(typeDir)
	if err != nil {
		m.log.WithField("type", rt).Warn("resource type entry is not a directory")
		return nil
	}
	var out []leafRef
	for _, nc := range names {
		langs, err := t.Children(nc.Handle)
		if err != nil {
			m.log.WithFields(log.Fields{"type": rt, "name": nc.Selector}).Warn("resource name entry is not a directory")
			continue
		}
		for _, lc := range langs {
			id, ok := lc.Selector.ID()
			if kind, _ := t.Kind(lc.Handle); !ok || kind != KindData {
				continue
			}
			out = append(out, leafRef{Name: nc.Selector, Lang: LangID(id), Handle: lc.Handle})
		}
	}
	return out
}

func (m *Manager) firstLeaf(rt ResourceType) (leafRef, DataEntry, error) {
	if !m.HasType(rt) {
		return leafRef{}, DataEntry{}, errors.Wrapf(ErrNotFound, "no %s resource", rt)
	}
	leaves := m.typeLeaves(m.tree, rt)
	if len(leaves) == 0 {
		return leafRef{}, DataEntry{}, errors.Wrapf(ErrNotFound, "%s directory has no data", rt)
	}
	d, err := m.tree.Data(leaves[0].Handle)
	return leaves[0], d, err
}

// HasManifest reports whether an RT_MANIFEST directory exists.
func (m *Manager) HasManifest() bool { return m.HasType(RT_MANIFEST) }

// Manifest returns the text of the first manifest leaf.
func (m *Manager) Manifest() (string, error) {
	_, d, err := m.firstLeaf(RT_MANIFEST)
	if err != nil {
		return "", err
	}
	return DecodeManifest(d)
}

// SetManifest replaces the first manifest leaf, or creates RT_MANIFEST/1
// when there is none. The text is stored as UTF-8.
func (m *Manager) SetManifest(text string) error {
	return m.mutate(func(t *Tree) error {
		if leaves := m.typeLeaves(t, RT_MANIFEST); len(leaves) > 0 {
			old, err := t.Data(leaves[0].Handle)
			if err != nil {
				return err
			}
			d := EncodeManifest(text)
			d.CodePage, d.Reserved = old.CodePage, old.Reserved
			return t.SetData(leaves[0].Handle, d)
		}
		nameDir, err := m.ensureNameDir(t, RT_MANIFEST, ID(1))
		if err != nil {
			return err
		}
		_, err = t.AddData(nameDir, ID(uint32(m.defaultLang)), EncodeManifest(text))
		return err
	})
}

// HasVersion reports whether an RT_VERSION directory exists.
func (m *Manager) HasVersion() bool { return m.HasType(RT_VERSION) }

// Version decodes every version leaf and merges them. Files often carry
// one VS_VERSIONINFO per language, so the string tables and translations
// of all leaves are kept. The preferred leaf (en-US, then neutral, then the
// first in tree order) comes first and gives Lang and the fixed info.
func (m *Manager) Version() (*Version, error) {
	if !m.HasVersion() {
		return nil, errors.Wrap(ErrNotFound, "no VERSION resource")
	}
	leaves := m.typeLeaves(m.tree, RT_VERSION)
	if len(leaves) == 0 {
		return nil, errors.Wrap(ErrNotFound, "VERSION directory has no data")
	}
	slices.SortStableFunc(leaves, func(a, b leafRef) int {
		return versionLangRank(a.Lang) - versionLangRank(b.Lang)
	})

	var merged *Version
	for _, ref := range leaves {
		d, err := m.tree.Data(ref.Handle)
		if err != nil {
			return nil, err
		}
		v, err := DecodeVersion(d.Bytes)
		if err != nil {
			return nil, errors.WithMessagef(err, "version %s/%s", ref.Name, ref.Lang)
		}
		if merged == nil {
			merged = v
			merged.Lang = ref.Lang
			continue
		}
		if merged.Fixed == nil {
			merged.Fixed = v.Fixed
		}
		merged.StringTables = append(merged.StringTables, v.StringTables...)
		for _, tr := range v.Translations {
			if !slices.Contains(merged.Translations, tr) {
				merged.Translations = append(merged.Translations, tr)
			}
		}
	}
	return merged, nil
}

// langEnUS is LANG_ENGLISH with SUBLANG_DEFAULT (en-US).
const langEnUS LangID = 0x0409

// versionLangRank orders version leaves: en-US, neutral, then the rest.
func versionLangRank(id LangID) int {
	switch id {
	case langEnUS:
		return 0
	case 0:
		return 1
	}
	return 2
}

// HasIcons reports whether an RT_GROUP_ICON directory exists. Groups whose
// RT_ICON leaves are missing still count; resolving them fails.
func (m *Manager) HasIcons() bool {
	return m.HasType(RT_GROUP_ICON)
}

// IconGroups resolves every group icon against the RT_ICON leaves. A group
// entry without a matching RT_ICON leaf is ErrDanglingIconReference, also
// when there is no RT_ICON directory at all.
func (m *Manager) IconGroups() ([]IconGroup, error) {
	if !m.HasIcons() {
		return nil, errors.Wrap(ErrNotFound, "no group icon resources")
	}
	return m.iconGroups(m.tree)
}

func (m *Manager) iconGroups(t *Tree) ([]IconGroup, error) {
	icons := make(map[uint16][]leafRef)
	for _, ref := range m.typeLeaves(t, RT_ICON) {
		if id, ok := ref.Name.ID(); ok && id <= math.MaxUint16 {
			icons[uint16(id)] = append(icons[uint16(id)], ref)
		}
	}

	var groups []IconGroup
	for _, gref := range m.typeLeaves(t, RT_GROUP_ICON) {
		d, err := t.Data(gref.Handle)
		if err != nil {
			return nil, err
		}
		entries, err := decodeGroupIcon(d.Bytes)
		if err != nil {
			return nil, errors.WithMessagef(err, "group icon %s", gref.Name)
		}
		g := IconGroup{Selector: gref.Name, Lang: gref.Lang}
		for _, e := range entries {
			refs := icons[e.ID]
			if len(refs) == 0 {
				return nil, errors.Wrapf(ErrDanglingIconReference, "group icon %s references icon %d", gref.Name, e.ID)
			}
			ref := refs[0]
			for _, r := range refs {
				if r.Lang == gref.Lang {
					ref = r
					break
				}
			}
			px, err := t.Data(ref.Handle)
			if err != nil {
				return nil, err
			}
			g.Icons = append(g.Icons, Icon{
				ID:         e.ID,
				Lang:       ref.Lang,
				Width:      e.Width,
				Height:     e.Height,
				ColorCount: e.ColorCount,
				Reserved:   e.Reserved,
				Planes:     e.Planes,
				BitCount:   e.BitCount,
				Pixels:     px.Bytes,
			})
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Icons returns the icons of every group, in group order.
func (m *Manager) Icons() ([]Icon, error) {
	groups, err := m.IconGroups()
	if err != nil {
		return nil, err
	}
	var out []Icon
	for _, g := range groups {
		out = append(out, g.Icons...)
	}
	return out, nil
}

// AddIcon stores icon under a fresh RT_ICON id, one more than the largest
// in use, and appends it to the first group icon. A group RT_GROUP_ICON/1
// is created when there is none. It returns the icon with its assigned id.
func (m *Manager) AddIcon(icon Icon) (Icon, error) {
	if len(icon.Pixels) == 0 {
		return Icon{}, errors.Wrap(ErrLogic, "icon has no image data")
	}
	err := m.mutate(func(t *Tree) error {
		// Ids referenced by a group count as used even without a leaf.
		var maxID uint32
		for _, ref := range m.typeLeaves(t, RT_ICON) {
			if id, ok := ref.Name.ID(); ok && id > maxID {
				maxID = id
			}
		}
		for _, gref := range m.typeLeaves(t, RT_GROUP_ICON) {
			d, err := t.Data(gref.Handle)
			if err != nil {
				return err
			}
			entries, err := decodeGroupIcon(d.Bytes)
			if err != nil {
				m.log.WithError(err).WithField("group", gref.Name).Warn("group icon skipped while picking an icon id")
				continue
			}
			for _, e := range entries {
				maxID = max(maxID, uint32(e.ID))
			}
		}
		if maxID >= math.MaxUint16 {
			return errors.Wrap(ErrLogic, "no free icon id")
		}
		icon.ID = uint16(maxID + 1)

		var group leafRef
		var entries []groupIconEntry
		if groups := m.typeLeaves(t, RT_GROUP_ICON); len(groups) > 0 {
			group = groups[0]
			d, err := t.Data(group.Handle)
			if err != nil {
				return err
			}
			if entries, err = decodeGroupIcon(d.Bytes); err != nil {
				return err
			}
		} else {
			nameDir, err := m.ensureNameDir(t, RT_GROUP_ICON, ID(1))
			if err != nil {
				return err
			}
			h, err := t.AddData(nameDir, ID(uint32(m.defaultLang)), DataEntry{})
			if err != nil {
				return err
			}
			group = leafRef{Name: ID(1), Lang: m.defaultLang, Handle: h}
		}
		icon.Lang = group.Lang

		nameDir, err := m.ensureNameDir(t, RT_ICON, ID(uint32(icon.ID)))
		if err != nil {
			return err
		}
		if _, err := t.AddData(nameDir, ID(uint32(icon.Lang)), DataEntry{Bytes: icon.Pixels}); err != nil {
			return err
		}

		entries = append(entries, icon.groupEntry())
		old, err := t.Data(group.Handle)
		if err != nil {
			return err
		}
		return t.SetData(group.Handle, DataEntry{Bytes: encodeGroupIcon(entries), CodePage: old.CodePage, Reserved: old.Reserved})
	})
	if err != nil {
		return Icon{}, err
	}
	m.log.WithFields(log.Fields{"id": icon.ID, "lang": icon.Lang}).Debug("icon added")
	return icon, nil
}

// ChangeIcon replaces the image of the icon identified by old.ID with the
// image and metadata of replacement. The icon keeps its id and its position
// in every group that references it.
func (m *Manager) ChangeIcon(old, replacement Icon) error {
	if len(replacement.Pixels) == 0 {
		return errors.Wrap(ErrLogic, "replacement icon has no image data")
	}
	return m.mutate(func(t *Tree) error {
		var leaves []leafRef
		for _, ref := range m.typeLeaves(t, RT_ICON) {
			if id, ok := ref.Name.ID(); ok && id == uint32(old.ID) {
				leaves = append(leaves, ref)
			}
		}
		if len(leaves) == 0 {
			return errors.Wrapf(ErrLogic, "icon %d not found", old.ID)
		}

		referenced := false
		for _, gref := range m.typeLeaves(t, RT_GROUP_ICON) {
			d, err := t.Data(gref.Handle)
			if err != nil {
				return err
			}
			entries, err := decodeGroupIcon(d.Bytes)
			if err != nil {
				return err
			}
			changed := false
			for i := range entries {
				if entries[i].ID != old.ID {
					continue
				}
				e := replacement.groupEntry()
				e.ID = old.ID
				entries[i] = e
				changed = true
			}
			if changed {
				referenced = true
				d.Bytes = encodeGroupIcon(entries)
				if err := t.SetData(gref.Handle, d); err != nil {
					return err
				}
			}
		}
		if !referenced {
			return errors.Wrapf(ErrLogic, "icon %d is not part of any group icon", old.ID)
		}

		for _, ref := range leaves {
			d, err := t.Data(ref.Handle)
			if err != nil {
				return err
			}
			d.Bytes = replacement.Pixels
			if err := t.SetData(ref.Handle, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasDialogs reports whether an RT_DIALOG directory exists.
func (m *Manager) HasDialogs() bool { return m.HasType(RT_DIALOG) }

// Dialogs decodes every dialog template.
func (m *Manager) Dialogs() ([]Dialog, error) {
	if !m.HasDialogs() {
		return nil, errors.Wrap(ErrNotFound, "no dialog resources")
	}
	var out []Dialog
	for _, ref := range m.typeLeaves(m.tree, RT_DIALOG) {
		d, err := m.tree.Data(ref.Handle)
		if err != nil {
			return nil, err
		}
		dlg, err := DecodeDialog(d.Bytes)
		if err != nil {
			return nil, errors.WithMessagef(err, "dialog %s", ref.Name)
		}
		dlg.Selector = ref.Name
		dlg.Lang = ref.Lang
		out = append(out, *dlg)
	}
	return out, nil
}

// HasStringTable reports whether an RT_STRING directory exists.
func (m *Manager) HasStringTable() bool { return m.HasType(RT_STRING) }

// StringTable decodes every RT_STRING block.
func (m *Manager) StringTable() ([]StringEntry, error) {
	if !m.HasStringTable() {
		return nil, errors.Wrap(ErrNotFound, "no string table")
	}
	var out []StringEntry
	for _, ref := range m.typeLeaves(m.tree, RT_STRING) {
		block, ok := ref.Name.ID()
		if !ok {
			m.log.WithField("name", ref.Name).Warn("named string block skipped")
			continue
		}
		d, err := m.tree.Data(ref.Handle)
		if err != nil {
			return nil, err
		}
		entries, err := DecodeStringBlock(block, ref.Lang, d.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// mutate applies fn to a copy of the tree and keeps the copy only if fn
// succeeds.
func (m *Manager) mutate(fn func(t *Tree) error) error {
	t := m.tree.Clone()
	if err := fn(t); err != nil {
		return err
	}
	m.tree = t
	m.mu.Lock()
	m.types = nil
	m.mu.Unlock()
	return nil
}

// ensureNameDir returns type/name, creating the missing directories.
func (m *Manager) ensureNameDir(t *Tree, rt ResourceType, name Selector) (Handle, error) {
	typeDir, ok := t.Child(t.Root(), TypeSelector(rt))
	if !ok {
		var err error
		if typeDir, err = t.AddDirectory(t.Root(), TypeSelector(rt)); err != nil {
			return Handle{}, err
		}
	}
	if h, ok := t.Child(typeDir, name); ok {
		if kind, _ := t.Kind(h); kind != KindDirectory {
			return Handle{}, errors.Wrapf(ErrLogic, "%s/%s is not a directory", rt, name)
		}
		return h, nil
	}
	return t.AddDirectory(typeDir, name)
}

// String prints the tree followed by a summary of the typed resources.
func (m *Manager) String() string {
	var sb strings.Builder
	_ = m.tree.Walk(m.tree.Root(), func(path []Selector, h Handle, kind Kind) error {
		if len(path) == 0 {
			sb.WriteString("Resources\n")
			return nil
		}
		indent := strings.Repeat("  ", len(path))
		label := path[len(path)-1].String()
		switch len(path) {
		case 1:
			if id, ok := path[0].ID(); ok {
				label = ResourceType(id).String()
			}
		case 3:
			if id, ok := path[2].ID(); ok {
				label = LangID(id).String()
			}
		}
		if kind == KindData {
			d, _ := m.tree.Data(h)
			fmt.Fprintf(&sb, "%s%s: %d bytes, code page %d\n", indent, label, len(d.Bytes), d.CodePage)
			return nil
		}
		fmt.Fprintf(&sb, "%s%s\n", indent, label)
		return nil
	})

	if m.HasManifest() {
		if text, err := m.Manifest(); err == nil {
			fmt.Fprintf(&sb, "Manifest: %d characters\n", len(text))
		} else {
			m.log.WithError(err).Warn("manifest unreadable")
		}
	}
	if m.HasVersion() {
		if v, err := m.Version(); err == nil {
			if v.Fixed != nil {
				fmt.Fprintf(&sb, "Version: %s\n", v.Fixed.FileVersion())
			}
			for _, st := range v.StringTables {
				for _, key := range st.Entries.Keys() {
					s, _ := st.Entries.GetString(key)
					fmt.Fprintf(&sb, "  [%s] %s: %s\n", st.Key, key, s)
				}
			}
		} else {
			m.log.WithError(err).Warn("version info unreadable")
		}
	}
	if m.HasIcons() {
		if icons, err := m.Icons(); err == nil {
			fmt.Fprintf(&sb, "Icons: %d\n", len(icons))
		} else {
			m.log.WithError(err).Warn("icons unreadable")
		}
	}
	if m.HasDialogs() {
		if dialogs, err := m.Dialogs(); err == nil {
			fmt.Fprintf(&sb, "Dialogs: %d\n", len(dialogs))
		} else {
			m.log.WithError(err).Warn("dialogs unreadable")
		}
	}
	return sb.String()
}
