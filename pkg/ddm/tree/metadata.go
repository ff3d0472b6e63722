package tree

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
)

// ReadMetadata populates the tree by parsing a metadata file.
func (t *Tree) ReadMetadata(metadataFile string) error {
	f, err := os.Open(metadataFile)
	if err != nil {
		return fmt.Errorf("file not found: %s", metadataFile)
	}
	defer f.Close()
	return t.ReadFrom(f, metadataFile)
}

// ReadFrom populates the tree from metadata lines. A block is a maximal run
// of non-empty lines terminated by a blank line or EOF; all elements of a
// block share one parent directory. The first block is the top level,
// subsequent blocks attach to a directory already declared by an earlier
// block.
func (t *Tree) ReadFrom(r io.Reader, metadataFile string) error {
	t.Clear()
	fail := func(msg string, lineNo int) error {
		if metadataFile != "" {
			return fmt.Errorf("%s: %s before line %d", metadataFile, msg, lineNo)
		}
		return fmt.Errorf("%s before line %d", msg, lineNo)
	}

	var block []*Node
	lineNo := 0

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		parent := element.ParentPath(block[0].elem.Path)
		for _, n := range block {
			if element.ParentPath(n.elem.Path) != parent {
				return fail("different paths grouped", lineNo)
			}
			if _, dup := t.index[n.elem.Path]; dup {
				return fail(fmt.Sprintf("duplicate path %s", n.elem.Path), lineNo)
			}
			t.index[n.elem.Path] = n
			if n.elem.Type == element.Unknown {
				t.warnf("%s unsupported file type", n.elem.Path)
			}
		}
		if len(t.roots) == 0 {
			if parent != "" {
				return fail("file does not start with top level directory", lineNo)
			}
			t.roots = block
		} else {
			pn, ok := t.index[parent]
			if !ok {
				return fail("directory content not preceded by its declaration", lineNo)
			}
			if !pn.elem.IsDirectory() {
				return fail(fmt.Sprintf("%s is not a directory", parent), lineNo)
			}
			if len(pn.children) != 0 {
				return fail("duplicate noncontiguous directory content", lineNo)
			}
			pn.children = block
		}
		block = nil
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		e, err := element.ParseLine(line, metadataFile, lineNo)
		if err != nil {
			return err
		}
		block = append(block, &Node{elem: e})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", metadataFile, err)
	}
	return flush()
}

// WriteMetadata serializes the tree to a metadata file, which must not
// already be open elsewhere; the file is created or truncated.
func (t *Tree) WriteMetadata(metadataFile string) (err error) {
	f, err := os.Create(metadataFile)
	if err != nil {
		return fmt.Errorf("could not open for writing: %s", metadataFile)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("write %s: %w", metadataFile, cerr)
		}
	}()
	return t.WriteTo(f)
}

// WriteTo serializes the tree in the metadata file format: pre-order
// blocks, one blank line between blocks, none at head or tail.
func (t *Tree) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	printBreak := false
	if err := t.recursiveWrite(bw, t.roots, &printBreak); err != nil {
		return err
	}
	return bw.Flush()
}

func (t *Tree) recursiveWrite(w *bufio.Writer, nodes []*Node, printBreak *bool) error {
	// An empty directory has no block, so it gets no separator either.
	if *printBreak && len(nodes) != 0 {
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if _, err := w.WriteString(n.elem.String()); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if len(nodes) != 0 {
		*printBreak = true
	}
	for _, n := range nodes {
		// Directories sort first; the first non-directory ends them.
		if !n.elem.IsDirectory() {
			break
		}
		if err := t.recursiveWrite(w, n.children, printBreak); err != nil {
			return err
		}
	}
	return nil
}
