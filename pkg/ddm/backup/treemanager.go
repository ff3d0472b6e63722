// Package backup drives the mirror transformer and the tree bookkeeping
// shared by the scrub and backup commands: loading the two metadata
// replicas, scanning source and destination (optionally in parallel), and
// persisting updated replicas with a .bak of the previous version.
package backup

import (
	"fmt"
	"io"
	"os"

	"github.com/jamesainslie/ddm/pkg/ddm/output"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
)

// TreeManager owns the directory trees a scrub or backup works on and the
// save-on-close bookkeeping for the metadata replica files.
type TreeManager struct {
	srcTree          *tree.Tree
	dstTree          *tree.Tree
	meta1Tree        *tree.Tree
	meta2Tree        *tree.Tree
	meta1Path        string
	meta2Path        string
	srcPresent       bool
	meta2Present     bool
	save             bool
	meta1NeedsBackup bool
	meta2NeedsBackup bool
	out              io.Writer
}

// NewTreeManager loads both metadata replicas and scans the backup
// directory. Pass src as the empty string when no source directory is
// available; parallel enables the single background scanner goroutine for
// the source tree.
func NewTreeManager(src, dst, meta1, meta2 string, opt tree.ScanOpt, parallel bool,
	warn func(string), out io.Writer) (*TreeManager, error) {
	tm := &TreeManager{
		srcTree:      tree.New(),
		dstTree:      tree.New(),
		meta1Tree:    tree.New(),
		meta2Tree:    tree.New(),
		meta1Path:    meta1,
		meta2Path:    meta2,
		srcPresent:   src != "",
		meta2Present: true,
		out:          out,
	}
	for _, t := range []*tree.Tree{tm.srcTree, tm.dstTree, tm.meta1Tree, tm.meta2Tree} {
		t.SetWarningCallback(warn)
	}
	if err := tm.loadMetadataFiles(); err != nil {
		return nil, err
	}
	if tm.srcPresent {
		fmt.Fprint(out, "Scanning source and backup directory... ")
		if err := ScanSourceTarget(src, dst, opt, parallel, tm.srcTree, tm.dstTree); err != nil {
			return nil, err
		}
	} else {
		fmt.Fprint(out, "Scanning backup directory... ")
		if err := tm.dstTree.ScanDirectory(dst, opt); err != nil {
			return nil, err
		}
	}
	fmt.Fprintln(out, "Done.")
	return tm, nil
}

// loadMetadataFiles reads both replicas, printing recovery guidance when
// one is corrupted beyond parsing.
func (tm *TreeManager) loadMetadataFiles() error {
	fmt.Fprint(tm.out, "Loading metadata files... ")
	err := tm.meta1Tree.ReadMetadata(tm.meta1Path)
	if err == nil {
		err = tm.meta2Tree.ReadMetadata(tm.meta2Path)
	}
	if err != nil {
		fmt.Fprintf(tm.out, "%v\nIt looks like at least one of the metadata files is corrupted to the point that it cannot be read. The cause may be an unclean unmount of the filesystem (did you run an fsck?), you tried to edit a metadata file with a text editor or bit rot occurred in a metadata file.\n", err)
		fmt.Fprintf(tm.out, "%s You will need to manually fix the backup directory, possibly by recreating metadata files and replacing the corrupted one(s).\nThe 'ddm diff' command may help to troubleshoot bad metadata.\n",
			output.BadBanner("Unrecoverable inconsistencies found."))
		return err
	}
	fmt.Fprintln(tm.out, "Done.")
	return nil
}

// HasSource reports whether a source directory was scanned.
func (tm *TreeManager) HasSource() bool { return tm.srcPresent }

// SrcTree returns the source tree; only valid when HasSource.
func (tm *TreeManager) SrcTree() *tree.Tree {
	if !tm.srcPresent {
		return nil
	}
	return tm.srcTree
}

// DstTree returns the freshly scanned backup directory tree.
func (tm *TreeManager) DstTree() *tree.Tree { return tm.dstTree }

// Meta1Tree returns the first replica tree.
func (tm *TreeManager) Meta1Tree() *tree.Tree { return tm.meta1Tree }

// Meta2Tree returns the second replica tree; nil after DiscardMeta2Tree.
func (tm *TreeManager) Meta2Tree() *tree.Tree {
	if !tm.meta2Present {
		return nil
	}
	return tm.meta2Tree
}

// DiscardMeta2Tree drops the second replica tree after a scrub proved both
// replicas consistent. Close then writes the first tree to both files.
func (tm *TreeManager) DiscardMeta2Tree() {
	tm.meta2Tree.Clear()
	tm.meta2Present = false
}

// SaveMetadataOnExit marks both replica files for rewriting on Close.
func (tm *TreeManager) SaveMetadataOnExit() { tm.save = true }

// KeepMeta1PreviousVersion renames the current first replica to .bak
// before Close rewrites it.
func (tm *TreeManager) KeepMeta1PreviousVersion() { tm.meta1NeedsBackup = true }

// KeepMeta2PreviousVersion is the second replica analog.
func (tm *TreeManager) KeepMeta2PreviousVersion() { tm.meta2NeedsBackup = true }

// Close persists the replicas if SaveMetadataOnExit was called. For a
// replica marked with KeepMeta1PreviousVersion or KeepMeta2PreviousVersion,
// the pre-existing file is renamed to <name>.bak before the new copy is
// written, so a crash mid-write leaves one valid copy behind; an unmarked
// replica is overwritten without a .bak.
func (tm *TreeManager) Close() error {
	if !tm.save {
		return nil
	}
	fmt.Fprintln(tm.out, "Updating metadata file 1")
	if tm.meta1NeedsBackup {
		if err := os.Rename(tm.meta1Path, tm.meta1Path+".bak"); err != nil {
			return fmt.Errorf("backup previous metadata: %w", err)
		}
	}
	if err := tm.meta1Tree.WriteMetadata(tm.meta1Path); err != nil {
		return err
	}
	fmt.Fprintln(tm.out, "Updating metadata file 2")
	if tm.meta2NeedsBackup {
		if err := os.Rename(tm.meta2Path, tm.meta2Path+".bak"); err != nil {
			return fmt.Errorf("backup previous metadata: %w", err)
		}
	}
	// After DiscardMeta2Tree both files intentionally receive the first
	// tree's content.
	if tm.meta2Present {
		return tm.meta2Tree.WriteMetadata(tm.meta2Path)
	}
	return tm.meta1Tree.WriteMetadata(tm.meta2Path)
}

// ScanSourceTarget scans the source and destination directories. With
// parallel set, the source scan runs on the single background goroutine
// this tool permits itself; the two trees share nothing mutable. Failures
// from both scans are joined into one error, background message last.
func ScanSourceTarget(src, dst string, opt tree.ScanOpt, parallel bool, srcTree, dstTree *tree.Tree) error {
	if !parallel {
		if err := srcTree.ScanDirectory(src, opt); err != nil {
			return err
		}
		return dstTree.ScanDirectory(dst, opt)
	}
	bg := make(chan error, 1)
	go func() {
		bg <- srcTree.ScanDirectory(src, opt)
	}()
	fgErr := dstTree.ScanDirectory(dst, opt)
	bgErr := <-bg
	switch {
	case fgErr != nil && bgErr != nil:
		return fmt.Errorf("%v %v", fgErr, bgErr)
	case bgErr != nil:
		return bgErr
	default:
		return fgErr
	}
}
