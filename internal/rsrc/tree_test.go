package rsrc

import (
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

func selectors(t *testing.T, tr *Tree, h Handle) []Selector {
	t.Helper()
	children, err := tr.Children(h)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	out := make([]Selector, len(children))
	for i, c := range children {
		out[i] = c.Selector
	}
	return out
}

func TestTreeInsertOrder(t *testing.T) {
	tests := []struct {
		name   string
		add    []Selector
		append bool
		want   []Selector
	}{
		{
			name: "sorted ids",
			add:  []Selector{ID(24), ID(3), ID(16)},
			want: []Selector{ID(3), ID(16), ID(24)},
		},
		{
			name: "names before ids",
			add:  []Selector{ID(3), Name("ZED"), Name("alpha")},
			want: []Selector{Name("alpha"), Name("ZED"), ID(3)},
		},
		{
			name:   "append keeps insertion order",
			add:    []Selector{ID(24), ID(3), Name("X"), ID(16)},
			append: true,
			want:   []Selector{Name("X"), ID(24), ID(3), ID(16)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTree()
			for _, sel := range tt.add {
				var err error
				if tt.append {
					_, err = tr.AppendDirectory(tr.Root(), sel)
				} else {
					_, err = tr.AddDirectory(tr.Root(), sel)
				}
				if err != nil {
					t.Fatalf("insert %s failed: %v", sel, err)
				}
			}
			if got := selectors(t, tr, tr.Root()); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTreeDuplicateSelector(t *testing.T) {
	tr := NewTree()
	if _, err := tr.AddDirectory(tr.Root(), ID(3)); err != nil {
		t.Fatalf("AddDirectory failed: %v", err)
	}
	_, err := tr.AppendData(tr.Root(), ID(3), DataEntry{Bytes: []byte{1}})
	if !errors.Is(err, ErrLogic) {
		t.Errorf("duplicate insert error = %v, want ErrLogic", err)
	}
	if n := len(selectors(t, tr, tr.Root())); n != 1 {
		t.Errorf("root has %d entries after rejected insert, want 1", n)
	}
}

func TestTreeStaleHandle(t *testing.T) {
	tr := NewTree()
	dir, _ := tr.AddDirectory(tr.Root(), ID(3))
	leaf, _ := tr.AddData(dir, ID(1), DataEntry{Bytes: []byte("abc")})

	if err := tr.Remove(dir); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := tr.Data(leaf); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Data on removed leaf error = %v, want ErrStaleHandle", err)
	}

	// The freed slots are reused; old handles must not see the new nodes.
	reused, _ := tr.AddData(tr.Root(), ID(5), DataEntry{Bytes: []byte("new")})
	if tr.Valid(leaf) || tr.Valid(dir) {
		t.Error("stale handle reported valid after slot reuse")
	}
	if d, err := tr.Data(reused); err != nil || string(d.Bytes) != "new" {
		t.Errorf("Data(reused) = %q, %v", d.Bytes, err)
	}
	if err := tr.Remove(tr.Root()); !errors.Is(err, ErrLogic) {
		t.Errorf("Remove(root) error = %v, want ErrLogic", err)
	}
}

func TestTreeDataIsCopied(t *testing.T) {
	tr := NewTree()
	payload := []byte("payload")
	h, _ := tr.AddData(tr.Root(), ID(1), DataEntry{Bytes: payload})
	payload[0] = 'X'

	d, _ := tr.Data(h)
	if string(d.Bytes) != "payload" {
		t.Errorf("tree aliased caller buffer: %q", d.Bytes)
	}
	d.Bytes[0] = 'Y'
	again, _ := tr.Data(h)
	if string(again.Bytes) != "payload" {
		t.Errorf("tree aliased returned buffer: %q", again.Bytes)
	}
}

func TestTreeClone(t *testing.T) {
	tr := NewTree()
	leaf := appendLeaf(t, tr, RT_RCDATA, ID(1), 0x409, []byte("one"))

	c := tr.Clone()
	if !Equal(tr, c) {
		t.Fatal("clone differs from original")
	}
	if err := c.SetData(leaf, DataEntry{Bytes: []byte("two")}); err != nil {
		t.Fatalf("SetData on clone with original handle failed: %v", err)
	}
	if Equal(tr, c) {
		t.Error("mutating the clone changed equality with the original")
	}
	d, _ := tr.Data(leaf)
	if string(d.Bytes) != "one" {
		t.Errorf("original leaf = %q, want %q", d.Bytes, "one")
	}
}

func TestTreeWalk(t *testing.T) {
	tr := NewTree()
	appendLeaf(t, tr, RT_ICON, ID(1), 0, []byte{1})
	appendLeaf(t, tr, RT_ICON, ID(2), 0, []byte{2})

	var leaves []string
	err := tr.Walk(tr.Root(), func(path []Selector, h Handle, kind Kind) error {
		if kind == KindData {
			leaves = append(leaves, path[0].String()+"/"+path[1].String())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	want := []string{"#3/#1", "#3/#2"}
	if !slices.Equal(leaves, want) {
		t.Errorf("leaves = %v, want %v", leaves, want)
	}
}
