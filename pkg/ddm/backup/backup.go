package backup

import (
	"fmt"
	"io"

	"github.com/jamesainslie/ddm/pkg/ddm/diff"
	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/output"
	"github.com/jamesainslie/ddm/pkg/ddm/prompt"
	"github.com/jamesainslie/ddm/pkg/ddm/scrub"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
)

// Options configures a backup command run.
type Options struct {
	Src          string
	Dst          string
	Meta1        string // Empty disables the bit-rot guard.
	Meta2        string
	Fixup        bool
	NoHash       bool
	SingleThread bool
	Oracle       prompt.Oracle
	Warn         func(string)
	Out          io.Writer
}

// Run performs a backup. Without metadata replicas this is a plain mirror;
// with them, the backup directory is scrubbed first, the mirror runs with
// the bit-rot guard, missing hashes are filled in lazily when scanning
// omitted them, and both replica files are rewritten on the way out.
func Run(opts Options) (int, error) {
	if opts.Meta1 == "" {
		return runPlain(opts)
	}
	return runGuarded(opts)
}

// runPlain mirrors src into dst without replicas. Hashing is omitted: with
// no replica carrying known-good hashes there is nothing to guard, and
// mtime+size already decide what to copy.
func runPlain(opts Options) (int, error) {
	fmt.Fprintf(opts.Out, "Backing up directory %s\nto directory %s\n", opts.Src, opts.Dst)
	srcTree, dstTree := tree.New(), tree.New()
	srcTree.SetWarningCallback(opts.Warn)
	dstTree.SetWarningCallback(opts.Warn)
	fmt.Fprint(opts.Out, "Scanning source and backup directory... ")
	if err := ScanSourceTarget(opts.Src, opts.Dst, tree.OmitHash, !opts.SingleThread, srcTree, dstTree); err != nil {
		return 0, err
	}
	fmt.Fprintln(opts.Out, "Done.")
	return Mirror(srcTree, dstTree, nil, opts.Oracle, opts.Out)
}

func runGuarded(opts Options) (int, error) {
	fmt.Fprintf(opts.Out, "Backing up directory %s\nto directory %s\nand metadata files:\n- %s\n- %s\n",
		opts.Src, opts.Dst, opts.Meta1, opts.Meta2)
	opt := tree.ComputeHash
	if opts.NoHash {
		opt = tree.OmitHash
	}
	tm, err := NewTreeManager(opts.Src, opts.Dst, opts.Meta1, opts.Meta2, opt, !opts.SingleThread, opts.Warn, opts.Out)
	if err != nil {
		return 0, err
	}

	fmt.Fprintln(opts.Out, "Scrubbing backup directory.")
	scrubRes, err := scrub.Run(scrub.Options{
		Src:    tm.SrcTree(),
		Dst:    tm.DstTree(),
		Meta1:  tm.Meta1Tree(),
		Meta2:  tm.Meta2Tree(),
		Fixup:  opts.Fixup,
		Oracle: opts.Oracle,
		Out:    opts.Out,
	})
	if err != nil {
		return 0, err
	}
	switch scrubRes.Code {
	case 1:
		if !opts.Oracle.AskYesNo("Do you want to continue with the backup?") {
			return finishScrubOnly(tm, scrubRes)
		}
	case 2:
		fmt.Fprintf(opts.Out, "%s\n", output.BadBanner("Refusing to perform backup to an inconsistent directory."))
		return 2, nil
	}

	// The scrub left both replica trees consistent, so one is enough from
	// here on. The replica tree is kept over the scanned dstTree because
	// with --nohash the scan carries no hashes while the replicas do;
	// dropping it would lose them when rewriting the metadata files.
	tm.DiscardMeta2Tree()
	tm.SaveMetadataOnExit()
	if scrubRes.UpdateMeta1 {
		tm.KeepMeta1PreviousVersion()
	}
	if scrubRes.UpdateMeta2 {
		tm.KeepMeta2PreviousVersion()
	}

	result := scrubRes.Code
	mirrorCode, err := Mirror(tm.SrcTree(), tm.DstTree(), tm.Meta1Tree(), opts.Oracle, opts.Out)
	if err != nil {
		return 0, err
	}
	if mirrorCode != 0 {
		result = mirrorCode
	}

	if opts.NoHash {
		fmt.Fprint(opts.Out, "Computing missing hashes in metadata files... ")
		tm.Meta1Tree().BindTopPath(opts.Dst)
		if err := tm.Meta1Tree().ComputeMissingHashes(); err != nil {
			fmt.Fprintf(opts.Out, "%s an error occurred while computing missing hashes. The metadata files may be corrupt in a silent way. Open them and look for an * instead of a hash for some files. Bit rot protection will not work for those files.\n",
				output.BadBanner("Warning:"))
			return 0, err
		}
		fmt.Fprintln(opts.Out, "Done.")
	}
	if err := tm.Close(); err != nil {
		return 0, err
	}
	return result, nil
}

// finishScrubOnly persists what the scrub already fixed when the operator
// declines the mirror step.
func finishScrubOnly(tm *TreeManager, scrubRes scrub.Result) (int, error) {
	tm.SaveMetadataOnExit()
	if scrubRes.UpdateMeta1 {
		tm.KeepMeta1PreviousVersion()
	}
	if scrubRes.UpdateMeta2 {
		tm.KeepMeta2PreviousVersion()
	}
	if err := tm.Close(); err != nil {
		return 0, err
	}
	return scrubRes.Code, nil
}

// Mirror aligns dstTree (and its filesystem) with srcTree, maintaining
// metaTree alongside when given. It returns 2 when bit rot was observed in
// the source (those entries are refused), 0 otherwise.
func Mirror(srcTree, dstTree, metaTree *tree.Tree, oracle prompt.Oracle, out io.Writer) (int, error) {
	fmt.Fprint(out, "Performing backup.\nComparing source directory with backup directory... ")
	d2 := diff.Diff2(srcTree, dstTree, element.FullCompare())
	fmt.Fprintln(out, "Done.")

	bitrot := false
	if len(d2) == 0 {
		fmt.Fprintln(out, "No differences found.")
	}
	for _, d := range d2 {
		switch {
		case d[0] == nil:
			if err := mirrorRemove(dstTree, metaTree, d[1], out); err != nil {
				return 0, err
			}
		case d[1] == nil:
			if err := mirrorCopy(srcTree, dstTree, metaTree, d[0], out); err != nil {
				return 0, err
			}
		default:
			rotten, err := mirrorReconcile(srcTree, dstTree, metaTree, d, oracle, out)
			if err != nil {
				return 0, err
			}
			if rotten {
				bitrot = true
			}
		}
	}
	if bitrot {
		fmt.Fprintf(out, "%s As this tool by design never writes into the source directory during a backup, you will have to fix this manually. Review the listed files, and if bit rot is confirmed, then manually replace the rotten files in the source directory with the good copy in the backup directory.\nI suggest also running a SMART check as your source disk may be unreliable.\n",
			output.BadBanner("Bit rot was detected in the source directory."))
		return 2, nil
	}
	fmt.Fprintf(out, "%s\n", output.GoodBanner("Backup complete."))
	return 0, nil
}

func mirrorRemove(dstTree, metaTree *tree.Tree, extra *element.Element, out io.Writer) error {
	rel := extra.Path
	fmt.Fprintf(out, "- Removing %s %s from backup directory.\n", extra.TypeString(), rel)
	if _, err := dstTree.RemoveFilesystem(rel); err != nil {
		return err
	}
	if metaTree != nil {
		if err := metaTree.Remove(rel); err != nil {
			return err
		}
	}
	return nil
}

func mirrorCopy(srcTree, dstTree, metaTree *tree.Tree, missing *element.Element, out io.Writer) error {
	rel := missing.Path
	fmt.Fprintf(out, "- Copying %s %s to backup directory.\n", missing.TypeString(), rel)
	if err := dstTree.CopyFromFilesystem(srcTree, rel, element.ParentPath(rel)); err != nil {
		return err
	}
	if metaTree != nil {
		if err := metaTree.CopyFrom(srcTree, rel, element.ParentPath(rel)); err != nil {
			return err
		}
	}
	return nil
}

// mirrorReconcile handles an entry present on both sides but differing.
// Reported bit rot refuses the backup of that entry.
func mirrorReconcile(srcTree, dstTree, metaTree *tree.Tree, d diff.Line2,
	oracle prompt.Oracle, out io.Writer) (bool, error) {
	src, dst := d[0], d[1]
	rel := src.Path

	opt := element.FullCompare()
	opt.Perm = false
	opt.Owner = false
	if src.Type != element.Regular || dst.Type != element.Regular {
		// The no-hash issue below applies only to regular files.
		opt.Mtime = false
	} else if src.Hash != "" && dst.Hash != "" {
		// With hashes on both sides a pure mtime difference is provably
		// metadata-only. Without them, a file whose content changed while
		// its size stayed the same would never be backed up if mtime were
		// masked, so the mtime difference must count as a modification.
		opt.Mtime = false
	}

	if element.Compare(src, dst, opt) {
		fmt.Fprintf(out, "- Updating the metadata of the %s %s in the backup directory.\n", src.TypeString(), rel)
		return false, applyMetadataChanges(dstTree, metaTree, rel, src, dst)
	}

	if element.Compare(src, dst, element.MetadataOnly()) {
		fmt.Fprintf(out, "%s The content of the %s %s changed but the modified time did not.\nNOT backing up this %s as the backup copy may be the good one.\n",
			output.BadBanner("Bit rot in the source directory detected."), src.TypeString(), rel, src.TypeString())
		return true, nil
	}

	if src.Mtime < dst.Mtime {
		fmt.Fprintf(out, "%sThe %s %s in the backup directory is newer than the %s in the source directory, (did you write something directly in the backup directory?)\n",
			d, dst.TypeString(), rel, src.TypeString())
		if !oracle.AskYesNo("Do you want me to DELETE the backup entry and REPLACE it with the entry in the source directory?") {
			fmt.Fprintf(out, "%s Note that you have to solve this manually, and consider that the %s in the source directory is currently without a backup.\n",
				output.NoticeBanner("Leaving backup inconsistent."), src.TypeString())
			return false, nil
		}
	}
	fmt.Fprintf(out, "- Replacing the %s %s in the backup directory with the %s in the source directory.\n",
		dst.TypeString(), rel, src.TypeString())
	if _, err := dstTree.RemoveFilesystem(rel); err != nil {
		return false, err
	}
	if err := dstTree.CopyFromFilesystem(srcTree, rel, element.ParentPath(rel)); err != nil {
		return false, err
	}
	if metaTree != nil {
		if err := metaTree.Remove(rel); err != nil {
			return false, err
		}
		if err := metaTree.CopyFrom(srcTree, rel, element.ParentPath(rel)); err != nil {
			return false, err
		}
	}
	return false, nil
}

// applyMetadataChanges aligns permissions, ownership and mtime of an entry
// whose content already matches.
func applyMetadataChanges(dstTree, metaTree *tree.Tree, rel string, src, dst *element.Element) error {
	if src.Perm != dst.Perm {
		if err := dstTree.SetPermissionsFilesystem(rel, src.Perm); err != nil {
			return err
		}
		if metaTree != nil {
			if err := metaTree.SetPermissions(rel, src.Perm); err != nil {
				return err
			}
		}
	}
	if src.User != dst.User || src.Group != dst.Group {
		if err := dstTree.SetOwnerFilesystem(rel, src.User, src.Group); err != nil {
			return err
		}
		if metaTree != nil {
			if err := metaTree.SetOwner(rel, src.User, src.Group); err != nil {
				return err
			}
		}
	}
	if src.Mtime != dst.Mtime {
		if err := dstTree.SetMtimeFilesystem(rel, src.Mtime); err != nil {
			return err
		}
		if metaTree != nil {
			if err := metaTree.SetMtime(rel, src.Mtime); err != nil {
				return err
			}
		}
	}
	return nil
}
