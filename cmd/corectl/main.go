package main

import (
	"fmt"
	"os"

	"github.com/nexusshell/corectl/pkg/log"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "corectl",
	Short: "corectl - job/pipeline engine and OCI container runtime",
	Long: `corectl runs a single daemon that schedules jobs and data pipelines
and manages OCI-compliant containers on one host, exposed over a binary
framed RPC listener and a container-engine-shaped HTTP API.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("corectl version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("addr", "127.0.0.1:7891", "Daemon HTTP address")
	rootCmd.PersistentFlags().Bool("json", false, "Output logs as JSON")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(pipelineCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// exitCodeFor maps an error to the process exit code: 0 for nil (never
// reached here, only non-nil errors go through this path) and 125 for every
// non-nil error. Daemon errors are not told apart from other failures, so
// this path never returns 1.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return 125
}
