package tree

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/hasher"
	"github.com/jamesainslie/ddm/pkg/ddm/posixfs"
)

// ScanDirectory populates the tree by recursively enumerating top. Children
// of each directory are sorted (directories first) before descending, so
// sibling order and warning order are deterministic. Symlinks are recorded
// with their stored target and never followed; entries of unsupported types
// stay in the tree as Unknown with a warning.
func (t *Tree) ScanDirectory(top string, opt ScanOpt) error {
	t.Clear()
	abs, err := filepath.Abs(top)
	if err != nil {
		return fmt.Errorf("scan %s: %w", top, err)
	}
	st, err := posixfs.Lstat(abs)
	if err != nil {
		return fmt.Errorf("scan %s: %w", top, err)
	}
	if st.Type != element.Directory {
		return fmt.Errorf("scan %s: not a directory", top)
	}
	t.topPath = abs
	t.hasTop = true
	t.opt = opt
	return t.recursiveBuild("")
}

// recursiveBuild scans one directory level and descends into directory
// children in sort order. The top level has the empty relative path.
func (t *Tree) recursiveBuild(rel string) error {
	entries, err := os.ReadDir(t.absPath(rel))
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	nodes := make([]*Node, 0, len(entries))
	for _, de := range entries {
		childRel := path.Join(rel, de.Name())
		e, err := t.elementFromDisk(childRel)
		if err != nil {
			return err
		}
		nodes = append(nodes, &Node{elem: e})
	}
	sortNodes(nodes)

	if len(t.roots) == 0 && rel == "" {
		t.roots = nodes
	} else {
		parent, err := t.searchNode(rel)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		parent.children = nodes
	}

	for _, n := range nodes {
		t.index[n.elem.Path] = n
		if n.elem.Type == element.Unknown {
			t.warnf("%s unsupported file type", n.elem.Path)
		}
		if n.elem.Type != element.Directory && n.elem.HardLinks > 1 {
			t.warnf("%s has multiple hardlinks", n.elem.Path)
		}
	}

	for _, n := range nodes {
		// Descend into directories only, never symlinks to directories:
		// this is also what keeps filesystem loops through directory
		// symlinks from being an issue.
		if n.elem.IsDirectory() {
			if err := t.recursiveBuild(n.elem.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// elementFromDisk captures one directory entry's metadata.
func (t *Tree) elementFromDisk(rel string) (element.Element, error) {
	abs := t.absPath(rel)
	st, err := posixfs.Lstat(abs)
	if err != nil {
		return element.Element{}, err
	}
	e := element.Element{
		Type:      st.Type,
		Perm:      st.Perm,
		User:      st.User(),
		Group:     st.Group(),
		Mtime:     st.Mtime,
		Path:      rel,
		HardLinks: st.HardLinks,
	}
	switch st.Type {
	case element.Regular:
		e.Size = st.Size
		if t.opt == ComputeHash {
			if e.Hash, err = hasher.HashFile(abs); err != nil {
				return element.Element{}, err
			}
		}
	case element.Symlink:
		if e.Target, err = posixfs.Readlink(abs); err != nil {
			return element.Element{}, err
		}
	}
	return e, nil
}
