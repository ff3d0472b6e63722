package tree

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/posixfs"
)

// CopyFrom deep-clones the subtree at srcRel of srcTree into the directory
// dstRel of this tree (empty dstRel meaning the top level), rewriting every
// cloned path. Only the in-memory tree and index are touched, so it is safe
// on trees loaded from metadata files.
func (t *Tree) CopyFrom(srcTree *Tree, srcRel, dstRel string) error {
	_, _, err := t.treeCopy(srcTree, srcRel, dstRel)
	return err
}

// CopyFromFilesystem is CopyFrom plus the filesystem effect: files are
// copied with their content and permissions, symlinks recreated verbatim,
// directories created and filled. Ownership restoration soft-fails to a
// warning; mtimes are restored last so directory recursion cannot clobber
// them, and the destination parent's mtime is restamped at the end.
func (t *Tree) CopyFromFilesystem(srcTree *Tree, srcRel, dstRel string) error {
	if err := t.checkTopPath(); err != nil {
		return fmt.Errorf("copy %s: %w", srcRel, err)
	}
	if err := srcTree.checkTopPath(); err != nil {
		return fmt.Errorf("copy %s: source %w", srcRel, err)
	}
	src, dst, err := t.treeCopy(srcTree, srcRel, dstRel)
	if err != nil {
		return err
	}
	if err := t.recursiveFilesystemCopy(srcTree.topPath, src, dst); err != nil {
		return err
	}
	return t.fixupParentMtime(dstRel)
}

// treeCopy performs the in-memory part of a copy and returns the source
// node and the freshly cloned one.
func (t *Tree) treeCopy(srcTree *Tree, srcRel, dstRel string) (*Node, *Node, error) {
	if srcRel == "" {
		return nil, nil, fmt.Errorf("copy: empty source path")
	}
	src, err := srcTree.searchNode(srcRel)
	if err != nil {
		return nil, nil, fmt.Errorf("copy: source %w", err)
	}
	name := src.elem.Name()

	var newRel string
	if dstRel == "" {
		newRel = name
	} else {
		dst, err := t.searchNode(dstRel)
		if err != nil {
			return nil, nil, fmt.Errorf("copy: destination %w", err)
		}
		if !dst.elem.IsDirectory() {
			return nil, nil, fmt.Errorf("copy: destination not a directory: %s", dstRel)
		}
		newRel = dstRel + "/" + name
	}
	if _, exists := t.index[newRel]; exists {
		return nil, nil, fmt.Errorf("copy: %s already exists in tree", newRel)
	}

	clone := cloneSubtree(src, newRel)
	if dstRel == "" {
		t.roots = insertSorted(t.roots, clone)
	} else {
		parent := t.index[dstRel]
		parent.children = insertSorted(parent.children, clone)
	}
	t.recursiveAddToIndex(clone)
	return src, clone, nil
}

// cloneSubtree copies a node and its descendants, rebasing every relative
// path onto newRel. Sibling order is preserved: renaming a common prefix
// does not reorder a sorted list.
func cloneSubtree(src *Node, newRel string) *Node {
	clone := &Node{elem: src.elem.Rebase(newRel)}
	for _, c := range src.children {
		clone.children = append(clone.children, cloneSubtree(c, newRel+"/"+c.elem.Name()))
	}
	return clone
}

func (t *Tree) recursiveAddToIndex(n *Node) {
	t.index[n.elem.Path] = n
	for _, c := range n.children {
		t.recursiveAddToIndex(c)
	}
}

func (t *Tree) recursiveRemoveFromIndex(n *Node) {
	for _, c := range n.children {
		t.recursiveRemoveFromIndex(c)
	}
	delete(t.index, n.elem.Path)
}

// recursiveFilesystemCopy applies a cloned subtree to disk. src belongs to
// the tree the content comes from, dst to this tree; the two mirror each
// other structurally.
func (t *Tree) recursiveFilesystemCopy(srcTop string, src, dst *Node) error {
	e := &dst.elem
	srcAbs := filepath.Join(srcTop, filepath.FromSlash(src.elem.Path))
	dstAbs := t.absPath(e.Path)
	switch e.Type {
	case element.Regular:
		if err := posixfs.CopyFile(srcAbs, dstAbs); err != nil {
			return err
		}
	case element.Symlink:
		if err := posixfs.Symlink(e.Target, dstAbs); err != nil {
			return err
		}
	case element.Directory:
		if err := os.Mkdir(dstAbs, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dstAbs, err)
		}
		for _, srcChild := range src.children {
			dstChild, err := t.searchNode(e.Path + "/" + srcChild.elem.Name())
			if err != nil {
				return fmt.Errorf("copy %s: %w", e.Path, err)
			}
			if err := t.recursiveFilesystemCopy(srcTop, srcChild, dstChild); err != nil {
				return err
			}
		}
		if err := posixfs.Chmod(dstAbs, e.Perm); err != nil {
			return err
		}
	default:
		return fmt.Errorf("copy %s: unknown file type", srcAbs)
	}
	if err := posixfs.Lchown(dstAbs, e.User, e.Group); err != nil {
		t.warnf("could not change ownership of %s: maybe retry with sudo?", dstAbs)
	}
	// Mtime last: for directories the recursive writes above have just
	// altered it.
	return posixfs.Lutimes(dstAbs, e.Mtime)
}

// Remove drops the node at rel and, for directories, its whole subtree,
// purging every affected index entry. The tree root cannot be removed.
func (t *Tree) Remove(rel string) error {
	if rel == "" {
		return fmt.Errorf("remove: refusing to remove tree root")
	}
	node, err := t.searchNode(rel)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if node.elem.IsDirectory() {
		t.recursiveRemoveFromIndex(node)
	}
	if parent := element.ParentPath(rel); parent != "" {
		pn, err := t.searchNode(parent)
		if err != nil {
			return fmt.Errorf("remove: %w", err)
		}
		pn.children = removeNode(pn.children, node)
	} else {
		t.roots = removeNode(t.roots, node)
	}
	delete(t.index, rel)
	return nil
}

// RemoveFilesystem is Remove plus recursive deletion on disk. It returns
// the number of filesystem entries removed and restores the parent
// directory's mtime to its tree value afterwards.
func (t *Tree) RemoveFilesystem(rel string) (int, error) {
	if err := t.checkTopPath(); err != nil {
		return 0, fmt.Errorf("remove %s: %w", rel, err)
	}
	if err := t.Remove(rel); err != nil {
		return 0, err
	}
	count, err := posixfs.RemoveAll(t.absPath(rel))
	if err != nil {
		return 0, err
	}
	return count, t.fixupParentMtime(element.ParentPath(rel))
}

// AddSymlink inserts a symlink element into the tree. The parent directory
// must already exist.
func (t *Tree) AddSymlink(elem element.Element) error {
	if elem.Type != element.Symlink {
		return fmt.Errorf("add symlink %s: element is a %s", elem.Path, elem.TypeString())
	}
	if _, exists := t.index[elem.Path]; exists {
		return fmt.Errorf("add symlink: %s already exists in tree", elem.Path)
	}
	node := &Node{elem: elem}
	if parent := element.ParentPath(elem.Path); parent != "" {
		pn, err := t.searchNode(parent)
		if err != nil {
			return fmt.Errorf("add symlink: missing parent: %w", err)
		}
		if !pn.elem.IsDirectory() {
			return fmt.Errorf("add symlink: parent not a directory: %s", parent)
		}
		pn.children = insertSorted(pn.children, node)
	} else {
		t.roots = insertSorted(t.roots, node)
	}
	t.index[elem.Path] = node
	return nil
}

// AddSymlinkFilesystem is AddSymlink plus link creation on disk, with
// ownership soft-fail, symlink-safe mtime and parent mtime fixup.
func (t *Tree) AddSymlinkFilesystem(elem element.Element) error {
	if err := t.checkTopPath(); err != nil {
		return fmt.Errorf("add symlink %s: %w", elem.Path, err)
	}
	if err := t.AddSymlink(elem); err != nil {
		return err
	}
	abs := t.absPath(elem.Path)
	if err := posixfs.Symlink(elem.Target, abs); err != nil {
		return err
	}
	if err := posixfs.Lchown(abs, elem.User, elem.Group); err != nil {
		t.warnf("could not change ownership of %s: maybe retry with sudo?", abs)
	}
	if err := posixfs.Lutimes(abs, elem.Mtime); err != nil {
		return err
	}
	return t.fixupParentMtime(element.ParentPath(elem.Path))
}

// SetPermissions mutates the permission bits of the element at rel in the
// tree only.
func (t *Tree) SetPermissions(rel string, perm element.Perm) error {
	node, err := t.searchNode(rel)
	if err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	node.elem.Perm = perm
	return nil
}

// SetPermissionsFilesystem is SetPermissions plus chmod on disk.
func (t *Tree) SetPermissionsFilesystem(rel string, perm element.Perm) error {
	if err := t.checkTopPath(); err != nil {
		return fmt.Errorf("set permissions %s: %w", rel, err)
	}
	if err := t.SetPermissions(rel, perm); err != nil {
		return err
	}
	if err := posixfs.Chmod(t.absPath(rel), perm); err != nil {
		return err
	}
	return t.fixupParentMtime(element.ParentPath(rel))
}

// SetOwner mutates the owner and group of the element at rel in the tree
// only.
func (t *Tree) SetOwner(rel, user, group string) error {
	node, err := t.searchNode(rel)
	if err != nil {
		return fmt.Errorf("set owner: %w", err)
	}
	node.elem.User = user
	node.elem.Group = group
	return nil
}

// SetOwnerFilesystem is SetOwner plus a symlink-safe chown on disk, which
// soft-fails to a warning when not permitted.
func (t *Tree) SetOwnerFilesystem(rel, user, group string) error {
	if err := t.checkTopPath(); err != nil {
		return fmt.Errorf("set owner %s: %w", rel, err)
	}
	if err := t.SetOwner(rel, user, group); err != nil {
		return err
	}
	abs := t.absPath(rel)
	if err := posixfs.Lchown(abs, user, group); err != nil {
		t.warnf("could not change ownership of %s: maybe retry with sudo?", abs)
	}
	return t.fixupParentMtime(element.ParentPath(rel))
}

// SetMtime mutates the modification time of the element at rel in the tree
// only.
func (t *Tree) SetMtime(rel string, mtime int64) error {
	node, err := t.searchNode(rel)
	if err != nil {
		return fmt.Errorf("set mtime: %w", err)
	}
	node.elem.Mtime = mtime
	return nil
}

// SetMtimeFilesystem is SetMtime plus a symlink-safe utimensat on disk.
func (t *Tree) SetMtimeFilesystem(rel string, mtime int64) error {
	if err := t.checkTopPath(); err != nil {
		return fmt.Errorf("set mtime %s: %w", rel, err)
	}
	if err := t.SetMtime(rel, mtime); err != nil {
		return err
	}
	return posixfs.Lutimes(t.absPath(rel), mtime)
}

// fixupParentMtime restamps a directory's on-disk mtime to the value held
// in its element, undoing the drift caused by mutating its content.
func (t *Tree) fixupParentMtime(parentRel string) error {
	if parentRel == "" {
		return nil
	}
	node, err := t.searchNode(parentRel)
	if err != nil {
		return fmt.Errorf("fixup parent mtime: %w", err)
	}
	return posixfs.Lutimes(t.absPath(parentRel), node.elem.Mtime)
}
