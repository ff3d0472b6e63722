package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/ddm/pkg/ddm/backup"
	"github.com/jamesainslie/ddm/pkg/ddm/prompt"
	"github.com/jamesainslie/ddm/pkg/ddm/scrub"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
	"github.com/spf13/cobra"
)

var scrubCmd = &cobra.Command{
	Use:   "scrub <backup-dir> <meta1> <meta2>",
	Short: "Verify a backup directory against its two metadata files",
	Long: `Compare a backup directory with its two redundant metadata files under
a quorum rule: when any two of the three agree, the third can be repaired.
With --fixup the repairs are applied; giving the source directory as well
(-s, with the backup directory moving to -t) lets the fixup restore missing
or corrupted backup content and classify bit rot.

Exits 0 when clean, 1 when inconsistencies were found and reconciled, 2
when unrecoverable inconsistencies remain.`,
	Args: validateScrubArgs,
	RunE: runScrub,
}

func init() {
	scrubCmd.Flags().StringP("source", "s", "", "source directory the backup mirrors")
	scrubCmd.Flags().StringP("target", "t", "", "backup directory (with -s)")
	scrubCmd.Flags().Bool("fixup", false, "attempt to fix inconsistencies")
	scrubCmd.Flags().Bool("singlethread", false, "do not scan source and backup in parallel")
	rootCmd.AddCommand(scrubCmd)
}

// validateScrubArgs enforces the two calling shapes: three positionals
// (backup-dir meta1 meta2), or -s/-t plus two positionals (meta1 meta2).
func validateScrubArgs(cmd *cobra.Command, args []string) error {
	src, _ := cmd.Flags().GetString("source")
	dst, _ := cmd.Flags().GetString("target")
	if (src == "") != (dst == "") {
		return fmt.Errorf("options -s and -t must be given together")
	}
	if src != "" {
		return cobra.ExactArgs(2)(cmd, args)
	}
	return cobra.ExactArgs(3)(cmd, args)
}

func runScrub(cmd *cobra.Command, args []string) error {
	src, _ := cmd.Flags().GetString("source")
	dst, _ := cmd.Flags().GetString("target")
	fixup, _ := cmd.Flags().GetBool("fixup")
	single, _ := cmd.Flags().GetBool("singlethread")

	var meta1, meta2 string
	if src != "" {
		meta1, meta2 = args[0], args[1]
		fmt.Fprintf(os.Stdout, "Scrubbing backup directory %s\nby comparing it with metadata files:\n- %s\n- %s\nand with source directory %s\n",
			dst, meta1, meta2, src)
	} else {
		dst, meta1, meta2 = args[0], args[1], args[2]
		fmt.Fprintf(os.Stdout, "Scrubbing backup directory %s\nby comparing it with metadata files:\n- %s\n- %s\n",
			dst, meta1, meta2)
	}

	tm, err := backup.NewTreeManager(src, dst, meta1, meta2, tree.ComputeHash, parallelScan(single), treeWarn, os.Stdout)
	if err != nil {
		return failed(err)
	}
	res, err := scrub.Run(scrub.Options{
		Src:    tm.SrcTree(),
		Dst:    tm.DstTree(),
		Meta1:  tm.Meta1Tree(),
		Meta2:  tm.Meta2Tree(),
		Fixup:  fixup,
		Oracle: prompt.New(),
		Out:    os.Stdout,
	})
	if err != nil {
		return failed(err)
	}
	if res.Code == 1 {
		tm.SaveMetadataOnExit()
		if res.UpdateMeta1 {
			tm.KeepMeta1PreviousVersion()
		}
		if res.UpdateMeta2 {
			tm.KeepMeta2PreviousVersion()
		}
		if err := tm.Close(); err != nil {
			return failed(err)
		}
	}
	return exitCode(res.Code)
}
