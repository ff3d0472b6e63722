package main

import (
	"github.com/jamesainslie/ddm/pkg/ddm/config"
	"github.com/jamesainslie/ddm/pkg/ddm/logging"
	"github.com/jamesainslie/ddm/pkg/ddm/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ddm",
	Short: "Content-and-metadata-aware directory compare and backup",
	Long: `ddm compares directory trees by content and POSIX metadata, writes
portable metadata snapshots, scrubs backup directories against two redundant
metadata files detecting bit rot, and mirrors a source directory into a
backup directory preserving all metadata.

Examples:
  ddm ls /data -o data.met                # Snapshot a directory
  ddm diff /data /backup -i mtime         # Compare ignoring mtime
  ddm scrub /backup b.met b2.met --fixup  # Verify and repair a backup
  ddm backup -s /data -t /backup b.met b2.met`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored banners")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// cfg holds the loaded configuration for the running command.
var cfg = &config.Config{}

// initConfig loads the config file and applies the global presentation and
// logging settings.
func initConfig() {
	loaded, err := config.Load()
	cfg = loaded
	if err != nil {
		// A broken config file must not brick the tool; fall back to
		// defaults and say why.
		logging.Get("config").Warn("ignoring configuration", "err", err)
		cfg = &config.Config{}
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if viper.GetBool("no_color") || cfg.NoColor {
		output.DisableColor()
	}
	level := cfg.Logging.Level
	if s := viper.GetString("logging.level"); s != "" {
		level = s
	}
	if err := logging.Init(logging.Config{Level: level, Components: cfg.Logging.Components}); err != nil {
		logging.Get("config").Warn("ignoring log settings", "err", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// treeWarn is the warning callback wired into every tree: warnings never
// abort, they land on the logger so they interleave visibly with command
// output.
func treeWarn(msg string) {
	logging.Get("tree").Warn(msg)
}

// parallelScan reports whether source and backup may be scanned in
// parallel, honoring the single_thread configuration default.
func parallelScan(singleFlag bool) bool {
	return !singleFlag && !cfg.SingleThread
}
