package scrub

import (
	"fmt"
	"io"

	"github.com/jamesainslie/ddm/pkg/ddm/diff"
	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/output"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
)

// tryFixBackup handles the hard scrub case: both replicas agree but the
// backup directory content differs from them. The caller guarantees
// d[1] and d[2] agree; d[1] speaks for both replicas below.
func tryFixBackup(opts Options, d diff.Line3) (fixupResult, error) {
	switch {
	case d[0] == nil:
		return fixMissingEntry(opts, d[1])
	case d[1] == nil:
		return fixExtraEntry(opts, d[0])
	default:
		return fixDivergedEntry(opts, d[0], d[1])
	}
}

// fixMissingEntry restores an entry the replicas agree on but the backup
// directory lost.
func fixMissingEntry(opts Options, meta *element.Element) (fixupResult, error) {
	out := opts.Out
	rel := meta.Path
	kind := meta.TypeString()
	fmt.Fprintf(out, "The %s %s is missing in the backup directory but the metadata files agree it should be there.\n", kind, rel)

	// Symlinks are special: the metadata line carries everything needed
	// to recreate them.
	if meta.Type == element.Symlink {
		fmt.Fprintln(out, "Creating the missing symbolic link.")
		if err := opts.Dst.AddSymlinkFilesystem(*meta); err != nil {
			return fixFailed, err
		}
		return fixSuccess, nil
	}
	if opts.Src == nil {
		fmt.Fprintf(out, "If you re-run the scrub giving me also the source directory (-s option) I may be able to help by looking for the %s there, but until then, there's nothing I can do.\n", kind)
		return fixFailed, nil
	}

	fmt.Fprintf(out, "Trying to see if I can find the missing %s in the source directory.\n", kind)
	item, ok := opts.Src.Search(rel)
	if !ok {
		printNotInSource(out, kind)
		return fixFailed, nil
	}
	if element.Equal(&item, meta) {
		fmt.Fprintf(out, "The %s was found in the source directory and matches with the backup metadata.\nCopying it back into the backup directory.\n", kind)
		if err := opts.Dst.CopyFromFilesystem(opts.Src, rel, element.ParentPath(rel)); err != nil {
			return fixFailed, err
		}
		if meta.IsDirectory() {
			return fixDiffInvalidated, nil
		}
		return fixSuccess, nil
	}

	fmt.Fprintf(out, "An entry was found in the source directory however, its properties\n%s\ndo not match the missing %s.\n", item.String(), kind)
	if element.Compare(&item, meta, element.ContentOnly()) {
		fmt.Fprintln(out, "However, the content is the same, updating backup.")
		if err := opts.Dst.CopyFromFilesystem(opts.Src, rel, element.ParentPath(rel)); err != nil {
			return fixFailed, err
		}
		if err := patchReplicaAttrs(opts, rel, &item, meta); err != nil {
			return fixFailed, err
		}
		if meta.IsDirectory() {
			return fixDiffMetadataInvalidated, nil
		}
		return fixMetadataInvalidated, nil
	}

	fmt.Fprintln(out, "And the difference includes the entry content. However, as the entry in the backup is gone, and the source directory has changed, the best I can do is copy the new entry to the backup.")
	if err := opts.Dst.CopyFromFilesystem(opts.Src, rel, element.ParentPath(rel)); err != nil {
		return fixFailed, err
	}
	if err := replaceReplicaEntry(opts, rel); err != nil {
		return fixFailed, err
	}
	if item.IsDirectory() || meta.IsDirectory() {
		return fixDiffMetadataInvalidated, nil
	}
	return fixMetadataInvalidated, nil
}

// fixExtraEntry removes an entry present in the backup directory that the
// replicas agree should not exist. Deleting backup content always requires
// operator confirmation.
func fixExtraEntry(opts Options, extra *element.Element) (fixupResult, error) {
	out := opts.Out
	rel := extra.Path
	kind := extra.TypeString()
	fmt.Fprintf(out, "The %s %s is present in the backup directory but the metadata files agree it should not be there.\n", kind, rel)
	if !opts.Oracle.AskYesNo("Do you want to DELETE it?") {
		return fixFailed, nil
	}
	fmt.Fprintf(out, "Removing the %s.\n", kind)
	count, err := opts.Dst.RemoveFilesystem(rel)
	if err != nil {
		return fixFailed, err
	}
	fmt.Fprintf(out, "Removed %d files or directories.\n", count)
	if extra.IsDirectory() {
		return fixDiffInvalidated, nil
	}
	return fixSuccess, nil
}

// fixDivergedEntry reconciles an entry present both in the backup directory
// and in the agreeing replicas, but with differing attributes.
func fixDivergedEntry(opts Options, dst, meta *element.Element) (fixupResult, error) {
	out := opts.Out
	rel := meta.Path
	kind := meta.TypeString()
	fmt.Fprintf(out, "The metadata files agree on the properties of the %s %s but the entry in the backup directory differs.\n", kind, rel)

	if element.Compare(dst, meta, element.ContentOnly()) {
		fmt.Fprintln(out, "However, the content is the same, updating backup directory.")
		if err := patchBackupAttrs(opts, rel, meta, dst); err != nil {
			return fixFailed, err
		}
		return fixSuccess, nil
	}

	fmt.Fprintln(out, "And the difference includes the entry content.")
	if dst.Type != meta.Type {
		fmt.Fprintf(out, "%s\n", output.NoticeBanner("Also, the types differ!"))
	}

	// Bit rot signature: content changed while permissions, ownership and
	// mtime all stayed the same. No confirmation prompt in that case; the
	// operator is already being told something is wrong.
	bitrot := element.Compare(dst, meta, element.MetadataOnly())
	if bitrot {
		fmt.Fprintf(out, "%s The content of a file changed but the modified time did not. I suggest running a SMART check as your backup disk may be unreliable.\n",
			output.BadBanner("Bit rot in the backup directory detected."))
	}

	if meta.Type == element.Symlink && dst.Type == element.Symlink {
		if !bitrot && !opts.Oracle.AskYesNo("Do you want to UPDATE the symbolic link?") {
			return fixFailed, nil
		}
		fmt.Fprintln(out, "First removing the old symbolic link.")
		count, err := opts.Dst.RemoveFilesystem(rel)
		if err != nil {
			return fixFailed, err
		}
		fmt.Fprintf(out, "Removed %d entry. Creating updated symbolic link.\n", count)
		if err := opts.Dst.AddSymlinkFilesystem(*meta); err != nil {
			return fixFailed, err
		}
		return fixSuccess, nil
	}

	if opts.Src == nil {
		fmt.Fprintf(out, "If you re-run the scrub giving me also the source directory (-s option) I may be able to help by looking for the %s there, but until then, there's nothing I can do.\n", kind)
		return fixFailed, nil
	}
	fmt.Fprintf(out, "Trying to see if I can find the %s in the source directory.\n", kind)
	item, ok := opts.Src.Search(rel)
	if !ok {
		printNotInSource(out, kind)
		return fixFailed, nil
	}

	if element.Equal(&item, meta) {
		fmt.Fprintf(out, "The %s was found in the source directory and matches with the backup metadata.\n", kind)
		if !bitrot {
			q := fmt.Sprintf("Do you want to DELETE the %s in the backup directory and REPLACE it with the %s in the source directory?", dst.TypeString(), kind)
			if !opts.Oracle.AskYesNo(q) {
				return fixFailed, nil
			}
		}
		count, err := opts.Dst.RemoveFilesystem(rel)
		if err != nil {
			return fixFailed, err
		}
		fmt.Fprintf(out, "Removed %d files or directories.\nReplacing the content of the backup directory with the one of the source directory.\n", count)
		if err := opts.Dst.CopyFromFilesystem(opts.Src, rel, element.ParentPath(rel)); err != nil {
			return fixFailed, err
		}
		if meta.IsDirectory() || dst.IsDirectory() {
			return fixDiffInvalidated, nil
		}
		return fixSuccess, nil
	}

	fmt.Fprintf(out, "An entry was found in the source directory however, its properties\n%s\ndo not match the %s.\n", item.String(), kind)
	if element.Equal(&item, dst) {
		fmt.Fprintln(out, "But the source directory matches with the backup directory.\nDid you do a backup without updating the backup metadata? Assuming the metadata is not up to date.")
		if err := replaceReplicaEntry(opts, rel); err != nil {
			return fixFailed, err
		}
		fmt.Fprintln(out, "Metadata updated to reflect the source and backup.")
		printBitrotCaveat(out, bitrot)
		if item.IsDirectory() || meta.IsDirectory() {
			return fixDiffMetadataInvalidated, nil
		}
		return fixMetadataInvalidated, nil
	}
	if item.Type != meta.Type {
		fmt.Fprintf(out, "%s\n", output.NoticeBanner("Also, the types differ!"))
	}

	if element.Compare(&item, dst, element.ContentOnly()) {
		fmt.Fprintln(out, "However, the content is the same, updating backup.")
		if err := patchBackupAttrs(opts, rel, &item, dst); err != nil {
			return fixFailed, err
		}
		// Source and backup now differ only in metadata, but the replica
		// files differ in content: update those too.
		fmt.Fprintln(out, "Updating metadata files too.")
		if err := replaceReplicaEntry(opts, rel); err != nil {
			return fixFailed, err
		}
		printBitrotCaveat(out, bitrot)
		if meta.IsDirectory() || dst.IsDirectory() {
			return fixDiffMetadataInvalidated, nil
		}
		return fixMetadataInvalidated, nil
	}

	fmt.Fprintln(out, "And the difference includes the entry content.")
	q := fmt.Sprintf("Do you want to DELETE the %s in the backup directory and REPLACE it with the %s in the source directory?", dst.TypeString(), item.TypeString())
	if !opts.Oracle.AskYesNo(q) {
		return fixFailed, nil
	}
	count, err := opts.Dst.RemoveFilesystem(rel)
	if err != nil {
		return fixFailed, err
	}
	fmt.Fprintf(out, "Removed %d files or directories.\nReplacing the content of the backup directory with the one of the source directory.\n", count)
	if err := opts.Dst.CopyFromFilesystem(opts.Src, rel, element.ParentPath(rel)); err != nil {
		return fixFailed, err
	}
	if err := replaceReplicaEntry(opts, rel); err != nil {
		return fixFailed, err
	}
	if meta.IsDirectory() || item.IsDirectory() || dst.IsDirectory() {
		return fixDiffMetadataInvalidated, nil
	}
	return fixMetadataInvalidated, nil
}

func printNotInSource(out io.Writer, kind string) {
	fmt.Fprintf(out, "The %s was not found. There's nothing I can do, but I recommend to double check the source directory path. If it's wrong, please re-run the command with the correct path. If it's correct, please check the source directory manually, if the %s really isn't there maybe it was deleted manually both there and in the backup directory. If this is the only error you could delete and recreate the metadata files.\n", kind, kind)
}

func printBitrotCaveat(out io.Writer, bitrot bool) {
	if !bitrot {
		return
	}
	fmt.Fprintf(out, "%s Either you restored a backup and that explains why the source and backup directory are the same and in this case you overwrote the good file, or something strange happened to the mtime.\n",
		output.NoticeBanner("About the bit rot."))
}

// patchBackupAttrs aligns the backup entry's permissions, ownership and
// mtime on disk (and in the destination tree) with want, touching only the
// attributes where want and have disagree.
func patchBackupAttrs(opts Options, rel string, want, have *element.Element) error {
	if want.Perm != have.Perm {
		if err := opts.Dst.SetPermissionsFilesystem(rel, want.Perm); err != nil {
			return err
		}
	}
	if want.User != have.User || want.Group != have.Group {
		if err := opts.Dst.SetOwnerFilesystem(rel, want.User, want.Group); err != nil {
			return err
		}
	}
	if want.Mtime != have.Mtime {
		if err := opts.Dst.SetMtimeFilesystem(rel, want.Mtime); err != nil {
			return err
		}
	}
	return nil
}

// patchReplicaAttrs aligns both replicas' permissions, ownership and mtime
// with the source element, touching only the attributes where src and meta
// disagree.
func patchReplicaAttrs(opts Options, rel string, src, meta *element.Element) error {
	for _, m := range []*tree.Tree{opts.Meta1, opts.Meta2} {
		if src.Perm != meta.Perm {
			if err := m.SetPermissions(rel, src.Perm); err != nil {
				return err
			}
		}
		if src.User != meta.User || src.Group != meta.Group {
			if err := m.SetOwner(rel, src.User, src.Group); err != nil {
				return err
			}
		}
		if src.Mtime != meta.Mtime {
			if err := m.SetMtime(rel, src.Mtime); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceReplicaEntry rewrites one entry of both replicas from the source
// tree.
func replaceReplicaEntry(opts Options, rel string) error {
	for _, m := range []*tree.Tree{opts.Meta1, opts.Meta2} {
		if err := m.Remove(rel); err != nil {
			return err
		}
		if err := m.CopyFrom(opts.Src, rel, element.ParentPath(rel)); err != nil {
			return err
		}
	}
	return nil
}
