// Package tree implements Group and Link, the non-terminal nodes of a
// trajectory. Groups keep children in insertion
// order so iteration and storage layout are deterministic.
package tree

import (
	"fmt"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
)

// Node is anything that can live inside a Group: another Group, a Leaf,
// or a Link to a node elsewhere in the tree.
type Node interface {
	Name() string
}

// Link is a named reference to another node already present in the tree.
// Links never own data; they are resolved transparently on access and
// must not be re-entered once visited during a traversal.
type Link struct {
	name   string
	target Node
}

// NewLink creates a Link named name pointing at target.
func NewLink(name string, target Node) *Link { return &Link{name: name, target: target} }

func (l *Link) Name() string  { return l.name }
func (l *Link) Target() Node  { return l.target }

// leafNode adapts a leaf.Leaf to Node.
type leafNode struct {
	leaf.Leaf
}

func (n leafNode) Name() string { return n.Leaf.Name() }

// Group is a non-terminal node: an ordered mapping of child name to
// (Group | Leaf | Link), plus a flat annotations map.
type Group struct {
	name        string
	fullName    string
	children    map[string]Node
	order       []string
	annotations map[string]any
}

// NewGroup creates an empty Group under name.
func NewGroup(name string) *Group {
	return &Group{
		name:        name,
		fullName:    name,
		children:    make(map[string]Node),
		annotations: make(map[string]any),
	}
}

func (g *Group) Name() string     { return g.name }
func (g *Group) FullName() string { return g.fullName }

// SetFullName updates the group's full dotted path, used when a group is
// attached under a new parent or renamed during wildcard substitution.
func (g *Group) SetFullName(name string) { g.fullName = name }

func (g *Group) Annotations() map[string]any {
	cp := make(map[string]any, len(g.annotations))
	for k, v := range g.annotations {
		cp[k] = v
	}
	return cp
}

func (g *Group) SetAnnotation(key string, value any) { g.annotations[key] = value }

// Children returns the immediate children in insertion order.
func (g *Group) Children() []Node {
	out := make([]Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.children[name])
	}
	return out
}

// ChildNames returns immediate child names in insertion order.
func (g *Group) ChildNames() []string {
	return append([]string(nil), g.order...)
}

// Child looks up a direct child by name.
func (g *Group) Child(name string) (Node, bool) {
	n, ok := g.children[name]
	return n, ok
}

func (g *Group) attach(name string, n Node) {
	if _, exists := g.children[name]; !exists {
		g.order = append(g.order, name)
	}
	g.children[name] = n
}

// AddGroup creates name as a direct child subgroup if absent, returning
// the existing or newly created Group. Intermediate groups for dotted
// names are the caller's responsibility (Trajectory.AddGroup walks the
// dotted path, calling this once per segment).
func (g *Group) AddGroup(name string) (*Group, error) {
	if existing, ok := g.children[name]; ok {
		sub, ok := existing.(*Group)
		if !ok {
			return nil, errAlreadyTaken(g.fullName, name)
		}
		return sub, nil
	}
	sub := NewGroup(name)
	sub.SetFullName(joinName(g.fullName, name))
	g.attach(name, sub)
	return sub, nil
}

// AddLeaf attaches a leaf as a direct child of this group.
func (g *Group) AddLeaf(name string, l leaf.Leaf) error {
	if _, exists := g.children[name]; exists {
		return errAlreadyTaken(g.fullName, name)
	}
	l.SetFullName(joinName(g.fullName, name))
	g.attach(name, leafNode{l})
	return nil
}

// Unwrap returns the concrete node an internal wrapper carries: a
// leafNode unwraps to its leaf.Leaf (preserving the leaf's real dynamic
// type, e.g. *leaf.ScalarParameter, so callers can type-assert it to
// leaf.Parameter or leaf.Result); every other Node is returned as-is.
// Callers that fetch children via Group.Child (rather than Group.Leaf,
// which already unwraps) must pass the result through Unwrap before
// type-asserting past the Leaf interface.
func Unwrap(n Node) Node {
	if ln, ok := n.(leafNode); ok {
		return ln.Leaf
	}
	return n
}

// Leaf returns the leaf.Leaf stored under name, if any, unwrapping the
// internal leafNode adapter.
func (g *Group) Leaf(name string) (leaf.Leaf, bool) {
	n, ok := g.children[name]
	if !ok {
		return nil, false
	}
	ln, ok := n.(leafNode)
	if !ok {
		return nil, false
	}
	return ln.Leaf, true
}

// AddLink stores a named reference to target under this group.
func (g *Group) AddLink(name string, target Node) error {
	if _, exists := g.children[name]; exists {
		return errAlreadyTaken(g.fullName, name)
	}
	g.attach(name, NewLink(name, target))
	return nil
}

// RemoveChild detaches name from memory. If recursive is false and name
// is a non-empty Group, the group is detached along with its subtree
// regardless (there is no partial detach in this implementation); the
// flag documents intent at call sites.
func (g *Group) RemoveChild(name string, recursive bool) {
	if _, ok := g.children[name]; !ok {
		return
	}
	delete(g.children, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// IterNodes walks the subtree rooted at g in deterministic DFS order
// (children in insertion order), calling visit for every Group, Leaf and
// Link. Links are followed but a node already visited in this traversal
// is not re-entered, preventing infinite recursion on cyclic links.
func (g *Group) IterNodes(recursive bool, visit func(Node) bool) {
	visited := make(map[Node]bool)
	g.iterNodes(recursive, visited, visit)
}

func (g *Group) iterNodes(recursive bool, visited map[Node]bool, visit func(Node) bool) bool {
	if visited[g] {
		return true
	}
	visited[g] = true
	for _, name := range g.order {
		child := g.children[name]
		if !dfsVisit(child, recursive, visited, visit) {
			return false
		}
	}
	return true
}

func dfsVisit(n Node, recursive bool, visited map[Node]bool, visit func(Node) bool) bool {
	if visited[n] {
		return true
	}
	visited[n] = true
	if !visit(n) {
		return false
	}
	target := n
	if link, ok := n.(*Link); ok {
		target = link.target
		if visited[target] {
			return true
		}
		visited[target] = true
	}
	if sub, ok := target.(*Group); ok && recursive {
		for _, name := range sub.order {
			if !dfsVisit(sub.children[name], recursive, visited, visit) {
				return false
			}
		}
	}
	return true
}

// IterLeaves is IterNodes filtered to leaf.Leaf values, recursively.
func (g *Group) IterLeaves(predicate func(leaf.Leaf) bool) []leaf.Leaf {
	var out []leaf.Leaf
	g.IterNodes(true, func(n Node) bool {
		ln, ok := n.(leafNode)
		if !ok {
			return true
		}
		if predicate == nil || predicate(ln.Leaf) {
			out = append(out, ln.Leaf)
		}
		return true
	})
	return out
}

func joinName(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// errAlreadyTaken reports a violation of I1 (unique name within parent):
// a sibling with this name already exists under parent.
func errAlreadyTaken(parent, name string) error {
	return fmt.Errorf("%w: name %q already exists under %q", errs.ErrSchema, name, parent)
}
