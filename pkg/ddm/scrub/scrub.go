// Package scrub reconciles a backup directory against its two redundant
// metadata replicas. Classification follows a quorum rule over (backup,
// replica 1, replica 2): when any two agree the third is repaired, when no
// two agree the inconsistency is unrecoverable. With a source tree
// available the interactive fixup can additionally restore missing or
// corrupted backup content, detecting bit rot along the way.
package scrub

import (
	"fmt"
	"io"

	"github.com/jamesainslie/ddm/pkg/ddm/diff"
	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/output"
	"github.com/jamesainslie/ddm/pkg/ddm/prompt"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
)

// Options configures one scrub run. Dst, Meta1 and Meta2 are required; Src
// is optional and only consulted by fixup.
type Options struct {
	Src    *tree.Tree
	Dst    *tree.Tree
	Meta1  *tree.Tree
	Meta2  *tree.Tree
	Fixup  bool
	Oracle prompt.Oracle
	Out    io.Writer
}

// Result reports the outcome of a scrub.
type Result struct {
	// Code is the command exit code: 0 clean, 1 inconsistencies found and
	// reconciled, 2 unrecoverable (or not attempted without --fixup).
	Code int

	// UpdateMeta1 and UpdateMeta2 record which replica files now differ
	// from their on-disk copy and need persisting (with a .bak of the
	// previous version).
	UpdateMeta1 bool
	UpdateMeta2 bool
}

// fixupResult classifies the outcome of a single-entry repair. The
// *Invalidated variants report that the fix changed tree shape (diff no
// longer describes reality) or replica content (replicas need persisting).
type fixupResult int

const (
	fixFailed fixupResult = iota
	fixSuccess
	fixDiffInvalidated
	fixMetadataInvalidated
	fixDiffMetadataInvalidated
)

// Run executes the scrub state machine until a full pass over the diff
// completes without invalidating it.
func Run(opts Options) (Result, error) {
	var res Result
	out := opts.Out

	fmt.Fprint(out, "Comparing backup directory with metadata... ")
	d3 := diff.Diff3(opts.Dst, opts.Meta1, opts.Meta2, element.FullCompare())
	fmt.Fprintln(out, "Done.")

	if len(d3) == 0 {
		fmt.Fprintf(out, "%s No differences found.\n", output.GoodBanner("Scrub complete."))
		return res, nil
	}
	fmt.Fprintf(out, "%s Processing them one by one.\n", output.NoticeBanner("Inconsistencies found."))
	fmt.Fprintln(out, "Note: in the following diff a is the backup directory, b is metadata file 1 while c is metadata file 2")

	var unrecoverable, maybeRecoverable bool
	redo := false
	for {
		if redo {
			redo = false
			fmt.Fprint(out, "\nThe fixup modified the backup directory in a way that invalidated the list of inconsistencies. Rechecking... ")
			d3 = diff.Diff3(opts.Dst, opts.Meta1, opts.Meta2, element.FullCompare())
			fmt.Fprintln(out, "Done.")
		}
		for _, d := range d3 {
			// The optionals are compared, not the elements, so missing
			// entries take part in the quorum.
			switch {
			case element.EqualOpt(d[0], d[1]) && !element.EqualOpt(d[0], d[2]):
				fmt.Fprintf(out, "%sAssuming metadata file 2 inconsistent in this case.\n", d)
				result, err := fixMetadataEntry(opts.Dst, opts.Meta2, d[0], d[2])
				if err != nil {
					return res, err
				}
				res.UpdateMeta2 = true
				if result == fixDiffMetadataInvalidated {
					redo = true
				}
			case element.EqualOpt(d[0], d[2]) && !element.EqualOpt(d[0], d[1]):
				fmt.Fprintf(out, "%sAssuming metadata file 1 inconsistent in this case.\n", d)
				result, err := fixMetadataEntry(opts.Dst, opts.Meta1, d[0], d[1])
				if err != nil {
					return res, err
				}
				res.UpdateMeta1 = true
				if result == fixDiffMetadataInvalidated {
					redo = true
				}
			case element.EqualOpt(d[1], d[2]) && !element.EqualOpt(d[0], d[1]):
				fmt.Fprintf(out, "%sMetadata files are consistent between themselves but differ from backup directory content.\n", d)
				if !opts.Fixup {
					fmt.Fprintln(out, "Not attempting to fix this because --fixup option not given.")
					maybeRecoverable = true
					break
				}
				fmt.Fprintln(out, "Trying to fix this.")
				result, err := tryFixBackup(opts, d)
				if err != nil {
					return res, err
				}
				switch result {
				case fixFailed:
					unrecoverable = true
				case fixDiffInvalidated:
					redo = true
				case fixMetadataInvalidated:
					res.UpdateMeta1 = true
					res.UpdateMeta2 = true
				case fixDiffMetadataInvalidated:
					res.UpdateMeta1 = true
					res.UpdateMeta2 = true
					redo = true
				}
			default:
				fmt.Fprintf(out, "%sMetadata files are inconsistent both among themselves and with backup directory content. Nothing can be done.\n", d)
				unrecoverable = true
			}
			fmt.Fprintln(out)
			if redo {
				break
			}
		}
		if !redo {
			break
		}
	}
	fmt.Fprintln(out, "Inconsistencies processed.")

	switch {
	case !unrecoverable && !maybeRecoverable:
		fmt.Fprintf(out, "%s but it was possible to automatically reconcile them.\nBackup directory is now good.\n",
			output.NoticeBanner("Inconsistencies found"))
		res.Code = 1
	case unrecoverable:
		fmt.Fprintf(out, "%s You will need to manually fix the backup directory.\n",
			output.BadBanner("Unrecoverable inconsistencies found."))
		if maybeRecoverable {
			fmt.Fprintln(out, "Some inconsistencies may be automatically recoverable by running again this command with the --fixup option.")
			hintSource(opts, out)
		}
		res.Code = 2
	default:
		fmt.Fprintf(out, "%s However it looks like it is possible to attempt recovering all inconsistencies automatically by running this command again and adding the --fixup option.\n",
			output.BadBanner("Unrecovered inconsistencies found."))
		hintSource(opts, out)
		res.Code = 2
	}
	return res, nil
}

func hintSource(opts Options, out io.Writer) {
	if opts.Src == nil {
		fmt.Fprintln(out, "You may want to give me access to the source directory as well (-s option)")
	}
}

// fixMetadataEntry repairs one entry of a replica that lost the quorum
// vote: the stale node is dropped and the good one cloned in from the good
// tree. This is the bulk version: a directory differing only in one
// attribute is still removed and recreated, which is cheap on an in-memory
// tree and keeps this far simpler than tryFixBackup.
func fixMetadataEntry(good, bad *tree.Tree, goodEntry, badEntry *element.Element) (fixupResult, error) {
	if badEntry != nil {
		if err := bad.Remove(badEntry.Path); err != nil {
			return fixFailed, fmt.Errorf("fix metadata entry: %w", err)
		}
	}
	if goodEntry != nil {
		if err := bad.CopyFrom(good, goodEntry.Path, element.ParentPath(goodEntry.Path)); err != nil {
			return fixFailed, fmt.Errorf("fix metadata entry: %w", err)
		}
	}
	if (goodEntry != nil && goodEntry.IsDirectory()) || (badEntry != nil && badEntry.IsDirectory()) {
		return fixDiffMetadataInvalidated, nil
	}
	return fixMetadataInvalidated, nil
}
