package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/ddm/pkg/ddm/backup"
	"github.com/jamesainslie/ddm/pkg/ddm/prompt"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup -s <source> -t <backup-dir> [meta1 meta2]",
	Short: "Mirror a source directory into a backup directory",
	Long: `Make the backup directory equal to the source directory, preserving
permissions, ownership, modification times and symlinks. With the two
metadata files given, the backup directory is scrubbed first and source-side
bit rot is detected and refused; the metadata files are rewritten on the
way out, keeping a .bak of the previous version when they changed.

Exits 0 on success, 1 when the pre-backup scrub repaired inconsistencies,
2 when bit rot was detected or the backup directory is inconsistent.`,
	Args: validateBackupArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringP("source", "s", "", "source directory to back up")
	backupCmd.Flags().StringP("target", "t", "", "backup directory")
	backupCmd.Flags().Bool("fixup", false, "attempt to fix inconsistencies during the pre-backup scrub")
	backupCmd.Flags().Bool("nohash", false, "skip hashing unchanged files, compute missing hashes at the end")
	backupCmd.Flags().Bool("singlethread", false, "do not scan source and backup in parallel")
	_ = backupCmd.MarkFlagRequired("source")
	_ = backupCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(backupCmd)
}

// validateBackupArgs accepts no positionals (plain mirror) or exactly two
// (the metadata replica files enabling the bit-rot guard).
func validateBackupArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("accepts 0 or 2 metadata files, received %d", len(args))
	}
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	src, _ := cmd.Flags().GetString("source")
	dst, _ := cmd.Flags().GetString("target")
	fixup, _ := cmd.Flags().GetBool("fixup")
	noHash, _ := cmd.Flags().GetBool("nohash")
	single, _ := cmd.Flags().GetBool("singlethread")

	opts := backup.Options{
		Src:          src,
		Dst:          dst,
		Fixup:        fixup,
		NoHash:       noHash,
		SingleThread: !parallelScan(single),
		Oracle:       prompt.New(),
		Warn:         treeWarn,
		Out:          os.Stdout,
	}
	if len(args) == 2 {
		opts.Meta1, opts.Meta2 = args[0], args[1]
	}
	code, err := backup.Run(opts)
	if err != nil {
		return failed(err)
	}
	return exitCode(code)
}
