package rsrc

import (
	"fmt"
	"strings"
)

// Selector is the key of a directory entry: either a numeric id or a name,
// never both.
type Selector struct {
	name  string
	id    uint32
	named bool
}

// ID returns a numeric selector.
func ID(id uint32) Selector { return Selector{id: id} }

// Name returns a named selector.
func Name(name string) Selector { return Selector{name: name, named: true} }

// TypeSelector returns the numeric selector of a resource type.
func TypeSelector(t ResourceType) Selector { return ID(uint32(t)) }

// IsName reports whether the selector is a name.
func (s Selector) IsName() bool { return s.named }

// ID returns the numeric id and true, or false for a named selector.
func (s Selector) ID() (uint32, bool) { return s.id, !s.named }

// Name returns the name and true, or false for a numeric selector.
func (s Selector) Name() (string, bool) { return s.name, s.named }

func (s Selector) String() string {
	if s.named {
		return fmt.Sprintf("%q", s.name)
	}
	return fmt.Sprintf("#%d", s.id)
}

// compare orders names before ids, names case-insensitively and ids
// numerically. This is the order resource compilers emit and the loader's
// binary search expects.
func (s Selector) compare(o Selector) int {
	switch {
	case s.named && !o.named:
		return -1
	case !s.named && o.named:
		return 1
	case s.named:
		if c := strings.Compare(strings.ToUpper(s.name), strings.ToUpper(o.name)); c != 0 {
			return c
		}
		return strings.Compare(s.name, o.name)
	case s.id < o.id:
		return -1
	case s.id > o.id:
		return 1
	}
	return 0
}
