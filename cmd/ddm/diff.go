package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/ddm/pkg/ddm/diff"
	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/output"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <A> <B> [C]",
	Short: "Structurally compare two or three directory trees",
	Long: `Compare directory trees or metadata snapshots. Each operand may be a
directory (scanned on the fly) or a metadata file produced by 'ddm ls'.
With two operands the output is pairs of -/+ lines; with three, a/b/c
triples. A subtree missing from one side is reported as a single line for
its root, not one line per descendant.

Exits 0 when the trees are equal, 1 when differences were found.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().BoolP("nohash", "n", false, "omit content hashes when scanning directories")
	diffCmd.Flags().StringP("out", "o", "", "write the diff to a file instead of stdout")
	diffCmd.Flags().StringP("ignore", "i", "", "comparison axes to ignore: perm owner mtime size hash symlink all")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	noHash, _ := cmd.Flags().GetBool("nohash")
	outPath, _ := cmd.Flags().GetString("out")
	ignore, _ := cmd.Flags().GetString("ignore")
	if !cmd.Flags().Changed("ignore") {
		ignore = cfg.Ignore
	}

	opt, err := element.ParseIgnore(ignore)
	if err != nil {
		// A bad token list is a usage problem, not a runtime failure.
		fmt.Fprintln(os.Stderr, err)
		_ = cmd.Usage()
		return &codeError{code: exitUsage}
	}
	scanOpt := tree.ComputeHash
	if noHash {
		scanOpt = tree.OmitHash
	}

	trees := make([]*tree.Tree, len(args))
	for i, arg := range args {
		if trees[i], err = loadTree(arg, scanOpt); err != nil {
			return failed(err)
		}
	}

	w, closeOut, err := output.Target(outPath)
	if err != nil {
		return failed(err)
	}

	var differences int
	if len(args) == 2 {
		lines := diff.Diff2(trees[0], trees[1], opt)
		differences = len(lines)
		err = diff.Write2(w, lines)
	} else {
		lines := diff.Diff3(trees[0], trees[1], trees[2], opt)
		differences = len(lines)
		err = diff.Write3(w, lines)
	}
	if err != nil {
		return failed(err)
	}
	if err := closeOut(); err != nil {
		return failed(err)
	}
	if differences > 0 {
		return exitCode(1)
	}
	return nil
}

// loadTree builds a tree from an operand: directories are scanned,
// anything else is parsed as a metadata file.
func loadTree(path string, opt tree.ScanOpt) (*tree.Tree, error) {
	t := tree.New()
	t.SetWarningCallback(treeWarn)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if err := t.ScanDirectory(path, opt); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err := t.ReadMetadata(path); err != nil {
		return nil, err
	}
	return t, nil
}
