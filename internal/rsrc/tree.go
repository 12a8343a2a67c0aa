package rsrc

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Kind tells directories and data leaves apart.
type Kind uint8

// Node kinds.
const (
	KindDirectory Kind = iota + 1
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindData:
		return "data"
	}
	return "invalid"
}

// Handle addresses a node of a Tree. The zero Handle is never valid. A
// handle to a removed node fails with ErrStaleHandle even if its slot has
// been reused.
type Handle struct {
	index int32
	gen   uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// DirHeader carries the IMAGE_RESOURCE_DIRECTORY fields that are not
// derived from the entries.
type DirHeader struct {
	Characteristics uint32
	TimeDateStamp   uint32
	MajorVersion    uint16
	MinorVersion    uint16
}

// DataEntry is a copy of a data leaf.
type DataEntry struct {
	Bytes    []byte
	CodePage uint32
	Reserved uint32
}

// Child is one entry of a directory.
type Child struct {
	Selector Selector
	Handle   Handle
}

type entry struct {
	sel  Selector
	node int32
}

type node struct {
	gen    uint32
	live   bool
	kind   Kind
	parent int32

	header  DirHeader
	entries []entry

	data     []byte
	codePage uint32
	reserved uint32
}

// Tree is a resource directory tree. Nodes live in an arena and are
// addressed by Handle; the tree owns every payload and hands out copies.
//
// A Tree is not safe for concurrent mutation. Concurrent reads are fine as
// long as nothing mutates.
type Tree struct {
	nodes []node
	free  []int32
	root  int32
}

// NewTree returns a tree holding an empty root directory.
func NewTree() *Tree {
	t := &Tree{}
	t.root = t.alloc(KindDirectory, -1)
	return t
}

func (t *Tree) alloc(kind Kind, parent int32) int32 {
	var idx int32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.nodes = append(t.nodes, node{})
		idx = int32(len(t.nodes) - 1)
	}
	gen := t.nodes[idx].gen + 1
	t.nodes[idx] = node{gen: gen, live: true, kind: kind, parent: parent}
	return idx
}

func (t *Tree) handle(idx int32) Handle {
	return Handle{index: idx, gen: t.nodes[idx].gen}
}

func (t *Tree) lookup(h Handle) (*node, error) {
	if h.gen == 0 || h.index < 0 || int(h.index) >= len(t.nodes) {
		return nil, errors.Wrap(ErrStaleHandle, "invalid handle")
	}
	n := &t.nodes[h.index]
	if !n.live || n.gen != h.gen {
		return nil, errors.Wrapf(ErrStaleHandle, "node %d", h.index)
	}
	return n, nil
}

func (t *Tree) directory(h Handle) (*node, error) {
	n, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	if n.kind != KindDirectory {
		return nil, errors.Wrap(ErrLogic, "node is not a directory")
	}
	return n, nil
}

// Root returns the root directory.
func (t *Tree) Root() Handle { return t.handle(t.root) }

// Valid reports whether h refers to a live node of t.
func (t *Tree) Valid(h Handle) bool {
	_, err := t.lookup(h)
	return err == nil
}

// Kind returns the kind of the node.
func (t *Tree) Kind(h Handle) (Kind, error) {
	n, err := t.lookup(h)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// Parent returns the parent directory, or false for the root.
func (t *Tree) Parent(h Handle) (Handle, bool) {
	n, err := t.lookup(h)
	if err != nil || n.parent < 0 {
		return Handle{}, false
	}
	return t.handle(n.parent), true
}

// Header returns the directory header fields.
func (t *Tree) Header(h Handle) (DirHeader, error) {
	n, err := t.directory(h)
	if err != nil {
		return DirHeader{}, err
	}
	return n.header, nil
}

// SetHeader replaces the directory header fields.
func (t *Tree) SetHeader(h Handle, hdr DirHeader) error {
	n, err := t.directory(h)
	if err != nil {
		return err
	}
	n.header = hdr
	return nil
}

// Children lists the entries of a directory in tree order.
func (t *Tree) Children(h Handle) ([]Child, error) {
	n, err := t.directory(h)
	if err != nil {
		return nil, err
	}
	out := make([]Child, len(n.entries))
	for i, e := range n.entries {
		out[i] = Child{Selector: e.sel, Handle: t.handle(e.node)}
	}
	return out, nil
}

// Child looks up the entry of a directory with the given selector.
func (t *Tree) Child(h Handle, sel Selector) (Handle, bool) {
	n, err := t.directory(h)
	if err != nil {
		return Handle{}, false
	}
	i := slices.IndexFunc(n.entries, func(e entry) bool { return e.sel == sel })
	if i < 0 {
		return Handle{}, false
	}
	return t.handle(n.entries[i].node), true
}

// Data returns a copy of a data leaf.
func (t *Tree) Data(h Handle) (DataEntry, error) {
	n, err := t.lookup(h)
	if err != nil {
		return DataEntry{}, err
	}
	if n.kind != KindData {
		return DataEntry{}, errors.Wrap(ErrLogic, "node is not a data leaf")
	}
	return DataEntry{Bytes: slices.Clone(n.data), CodePage: n.codePage, Reserved: n.reserved}, nil
}

// SetData replaces the payload of a data leaf.
func (t *Tree) SetData(h Handle, d DataEntry) error {
	n, err := t.lookup(h)
	if err != nil {
		return err
	}
	if n.kind != KindData {
		return errors.Wrap(ErrLogic, "node is not a data leaf")
	}
	n.data = slices.Clone(d.Bytes)
	n.codePage = d.CodePage
	n.reserved = d.Reserved
	return nil
}

// AddDirectory inserts a new directory under parent, keeping the parent's
// entries sorted when they already are.
func (t *Tree) AddDirectory(parent Handle, sel Selector) (Handle, error) {
	return t.insert(parent, sel, KindDirectory, nil, true)
}

// AddData inserts a new data leaf under parent, keeping the parent's
// entries sorted when they already are.
func (t *Tree) AddData(parent Handle, sel Selector, d DataEntry) (Handle, error) {
	return t.insert(parent, sel, KindData, &d, true)
}

// AppendDirectory adds a new directory after the parent's existing entries
// of the same selector kind.
func (t *Tree) AppendDirectory(parent Handle, sel Selector) (Handle, error) {
	return t.insert(parent, sel, KindDirectory, nil, false)
}

// AppendData adds a new data leaf after the parent's existing entries of
// the same selector kind.
func (t *Tree) AppendData(parent Handle, sel Selector, d DataEntry) (Handle, error) {
	return t.insert(parent, sel, KindData, &d, false)
}

func (t *Tree) insert(parent Handle, sel Selector, kind Kind, d *DataEntry, sorted bool) (Handle, error) {
	p, err := t.directory(parent)
	if err != nil {
		return Handle{}, err
	}
	if slices.ContainsFunc(p.entries, func(e entry) bool { return e.sel == sel }) {
		return Handle{}, errors.Wrapf(ErrLogic, "duplicate selector %s", sel)
	}

	// Named entries always precede id entries.
	pos := len(p.entries)
	if sel.named {
		pos = slices.IndexFunc(p.entries, func(e entry) bool { return !e.sel.named })
		if pos < 0 {
			pos = len(p.entries)
		}
	}
	if sorted {
		if i := slices.IndexFunc(p.entries, func(e entry) bool { return e.sel.compare(sel) > 0 }); i >= 0 && i < pos {
			pos = i
		}
	}

	idx := t.alloc(kind, parent.index)
	n := &t.nodes[idx]
	if d != nil {
		n.data = slices.Clone(d.Bytes)
		n.codePage = d.CodePage
		n.reserved = d.Reserved
	}
	// alloc may have grown the arena; reload the parent.
	p = &t.nodes[parent.index]
	p.entries = slices.Insert(p.entries, pos, entry{sel: sel, node: idx})
	return t.handle(idx), nil
}

// Remove detaches a node and its whole subtree. Handles into the removed
// subtree become stale.
func (t *Tree) Remove(h Handle) error {
	n, err := t.lookup(h)
	if err != nil {
		return err
	}
	if n.parent < 0 {
		return errors.Wrap(ErrLogic, "cannot remove the root directory")
	}
	p := &t.nodes[n.parent]
	if i := slices.IndexFunc(p.entries, func(e entry) bool { return e.node == h.index }); i >= 0 {
		p.entries = slices.Delete(p.entries, i, i+1)
	}
	t.release(h.index)
	return nil
}

func (t *Tree) release(idx int32) {
	n := &t.nodes[idx]
	for _, e := range n.entries {
		t.release(e.node)
	}
	// Keep the generation so the next alloc bumps it.
	t.nodes[idx] = node{gen: n.gen}
	t.free = append(t.free, idx)
}

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int {
	return len(t.nodes) - len(t.free)
}

// WalkFunc is called for every node visited by Walk. path holds the
// selectors from the root down to the node.
type WalkFunc func(path []Selector, h Handle, kind Kind) error

// Walk visits the subtree rooted at h in pre-order, in tree order. The path
// slice is reused between calls.
func (t *Tree) Walk(h Handle, fn WalkFunc) error {
	if _, err := t.lookup(h); err != nil {
		return err
	}
	return t.walk(h.index, nil, fn)
}

func (t *Tree) walk(idx int32, path []Selector, fn WalkFunc) error {
	n := &t.nodes[idx]
	if err := fn(path, t.handle(idx), n.kind); err != nil {
		return err
	}
	for _, e := range n.entries {
		if err := t.walk(e.node, append(path, e.sel), fn); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy. Handles of t are valid in the copy and refer
// to the corresponding nodes.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		nodes: make([]node, len(t.nodes)),
		free:  slices.Clone(t.free),
		root:  t.root,
	}
	for i, n := range t.nodes {
		n.entries = slices.Clone(n.entries)
		n.data = slices.Clone(n.data)
		c.nodes[i] = n
	}
	return c
}

// Equal reports whether two trees have the same shape, selectors, order,
// directory headers and leaves.
func Equal(a, b *Tree) bool {
	return a.equal(a.root, b, b.root)
}

func (t *Tree) equal(i int32, o *Tree, j int32) bool {
	x, y := &t.nodes[i], &o.nodes[j]
	if x.kind != y.kind {
		return false
	}
	if x.kind == KindData {
		return x.codePage == y.codePage && x.reserved == y.reserved && bytes.Equal(x.data, y.data)
	}
	if x.header != y.header || len(x.entries) != len(y.entries) {
		return false
	}
	for k := range x.entries {
		if x.entries[k].sel != y.entries[k].sel || !t.equal(x.entries[k].node, o, y.entries[k].node) {
			return false
		}
	}
	return true
}
