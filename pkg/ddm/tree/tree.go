// Package tree holds the in-memory representation of a directory tree's
// metadata: a forest of nodes mirroring the directory hierarchy plus a flat
// path index for O(1) lookup. Trees are built either by scanning a live
// filesystem or by parsing a metadata file, and expose a mutation API with
// tree-only and tree-and-filesystem flavors used by scrub and backup.
package tree

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/hasher"
)

// ScanOpt selects whether a filesystem scan computes content hashes.
type ScanOpt int

// Scan options.
const (
	ComputeHash ScanOpt = iota
	OmitHash
)

// ErrNotFound is returned when a relative path is not present in the tree.
var ErrNotFound = errors.New("path not found in tree")

// ErrNoTopPath is returned by filesystem-touching operations on a tree that
// was not built from (or bound to) a directory on disk.
var ErrNoTopPath = errors.New("tree not constructed from filesystem")

// Node is one position in the tree. It owns exactly one element and, when
// that element is a directory, the ordered list of its children.
type Node struct {
	elem     element.Element
	children []*Node
}

// Element returns the node's element. The pointer stays valid until the
// node is removed from its tree; callers must not mutate through it.
func (n *Node) Element() *element.Element { return &n.elem }

// Children returns the ordered child list, empty for non-directories.
func (n *Node) Children() []*Node { return n.children }

// Tree is a forest of nodes descending from a top directory, plus the flat
// relative-path index over every reachable node. The index never owns: each
// entry is purged in the same operation that detaches its node.
type Tree struct {
	roots   []*Node
	index   map[string]*Node
	topPath string
	hasTop  bool
	opt     ScanOpt
	warn    func(string)
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{index: make(map[string]*Node)}
}

// SetWarningCallback routes non-fatal scan and mutation warnings. A nil
// callback silences them.
func (t *Tree) SetWarningCallback(cb func(string)) { t.warn = cb }

func (t *Tree) warnf(format string, args ...any) {
	if t.warn != nil {
		t.warn(fmt.Sprintf(format, args...))
	}
}

// Roots returns the top-level nodes in sort order.
func (t *Tree) Roots() []*Node { return t.roots }

// Index returns the flat path index. Callers must treat it as read-only.
func (t *Tree) Index() map[string]*Node { return t.index }

// TopPath returns the absolute directory the tree was scanned from and
// whether one is bound.
func (t *Tree) TopPath() (string, bool) { return t.topPath, t.hasTop }

// BindTopPath attaches an on-disk top directory to a tree loaded from a
// metadata file, enabling the filesystem-touching operations.
func (t *Tree) BindTopPath(top string) {
	t.topPath = top
	t.hasTop = true
}

// Clear resets the tree to empty.
func (t *Tree) Clear() {
	t.roots = nil
	t.index = make(map[string]*Node)
	t.topPath = ""
	t.hasTop = false
}

// Search returns a copy of the element at a relative path.
func (t *Tree) Search(rel string) (element.Element, bool) {
	n, ok := t.index[rel]
	if !ok {
		return element.Element{}, false
	}
	return n.elem, true
}

// searchNode returns the node at a relative path.
func (t *Tree) searchNode(rel string) (*Node, error) {
	n, ok := t.index[rel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return n, nil
}

func (t *Tree) checkTopPath() error {
	if !t.hasTop {
		return ErrNoTopPath
	}
	return nil
}

// absPath resolves a relative path against the bound top directory.
func (t *Tree) absPath(rel string) string {
	if rel == "" {
		return t.topPath
	}
	return filepath.Join(t.topPath, filepath.FromSlash(rel))
}

// ComputeMissingHashes fills in the hash of every regular element that was
// scanned (or loaded) without one, reading file content below the bound top
// directory.
func (t *Tree) ComputeMissingHashes() error {
	if err := t.checkTopPath(); err != nil {
		return fmt.Errorf("compute missing hashes: %w", err)
	}
	return t.recursiveComputeHashes(t.roots)
}

func (t *Tree) recursiveComputeHashes(nodes []*Node) error {
	for _, n := range nodes {
		if n.elem.Type == element.Regular && n.elem.Hash == "" {
			h, err := hasher.HashFile(t.absPath(n.elem.Path))
			if err != nil {
				return err
			}
			n.elem.Hash = h
		}
		if err := t.recursiveComputeHashes(n.children); err != nil {
			return err
		}
	}
	return nil
}

// sortNodes orders a sibling list: directories first, then byte order.
func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return element.Less(&nodes[i].elem, &nodes[j].elem)
	})
}

// insertSorted places a node into an ordered sibling list.
func insertSorted(nodes []*Node, n *Node) []*Node {
	i := sort.Search(len(nodes), func(i int) bool {
		return element.Less(&n.elem, &nodes[i].elem)
	})
	nodes = append(nodes, nil)
	copy(nodes[i+1:], nodes[i:])
	nodes[i] = n
	return nodes
}

// removeNode drops a node from a sibling list, comparing by identity.
func removeNode(nodes []*Node, target *Node) []*Node {
	for i, n := range nodes {
		if n == target {
			return append(nodes[:i], nodes[i+1:]...)
		}
	}
	return nodes
}
