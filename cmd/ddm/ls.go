package main

import (
	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/logging"
	"github.com/jamesainslie/ddm/pkg/ddm/output"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <directory>",
	Short: "Produce a metadata snapshot of a directory tree",
	Long: `Recursively scan a directory and print one metadata line per entry:
type, permissions, owner, group, mtime, size, SHA-1 content hash (regular
files), symlink target, and relative path.`,
	Args: cobra.ExactArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolP("nohash", "n", false, "omit content hashes (much faster)")
	lsCmd.Flags().StringP("out", "o", "", "write the snapshot to a file instead of stdout")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	noHash, _ := cmd.Flags().GetBool("nohash")
	outPath, _ := cmd.Flags().GetString("out")

	opt := tree.ComputeHash
	if noHash {
		opt = tree.OmitHash
	}
	t := tree.New()
	t.SetWarningCallback(treeWarn)
	if err := t.ScanDirectory(args[0], opt); err != nil {
		return failed(err)
	}

	w, closeOut, err := output.Target(outPath)
	if err != nil {
		return failed(err)
	}
	if err := t.WriteTo(w); err != nil {
		return failed(err)
	}
	if err := closeOut(); err != nil {
		return failed(err)
	}

	entries, bytes := treeStats(t)
	logging.Get("ls").Info("snapshot complete",
		"entries", entries, "data", humanize.IBytes(bytes))
	return nil
}

// treeStats counts indexed entries and sums regular file sizes.
func treeStats(t *tree.Tree) (entries int, bytes uint64) {
	for _, n := range t.Index() {
		entries++
		if n.Element().Type == element.Regular {
			bytes += uint64(n.Element().Size)
		}
	}
	return entries, bytes
}
