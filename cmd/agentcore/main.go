// Command agentcore is a thin client for talking to a running agentcore
// process: it publishes a message to a named agent and prints whatever
// comes back, either as a single reply or a streamed sequence of envelopes.
package main

import (
	"fmt"
	"os"

	"github.com/chris-alexander-pop/agentcore/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "agentcore talks to agents over a broker or HTTP bridge",
	Long: `agentcore is a command-line client for the agentcore runtime.

It publishes messages to a named agent over either a NATS broker
(nats://...) or an HTTP bridge (http://... or https://...), and prints
the reply envelope(s) received.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"agentcore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("broker", "nats://127.0.0.1:4222", "Broker URL: nats://host:port or http(s)://host:port")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(streamCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")

	format := "TEXT"
	if jsonOutput {
		format = "JSON"
	}
	logger.Init(logger.Config{Level: level, Format: format})
}
