package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var verbose bool

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Central dispatch coordinator for the package-scanning pipeline",
	Long: `coordinator is the central job-distribution service for a distributed
malware-scanning pipeline: it tracks the lifecycle of each package scan
(QUEUED -> PENDING -> FINISHED/FAILED), leases work to scanner workers,
negotiates the active ruleset, and forwards finished observations to an
external reporter service.

Configuration is read entirely from the environment (DB_DRIVER, DB_URL,
JOB_TIMEOUT, AUTH_DOMAIN, AUTH_AUDIENCE, REPORTER_URL, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug logging")
	rootCmd.Version = Version
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}
}
