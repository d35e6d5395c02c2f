// Package cmd contains the CLI commands for callwatch.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/logging"
)

const serviceName = "callwatch"

var (
	// Used for flags
	configFile string
	verbose    bool
	output     string

	// Set by the root pre-run hook.
	cfg    *Config
	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "callwatch",
	Short: "callwatch - telephony log monitoring",
	Long: `callwatch evaluates telephony provider logs against monitoring rules
and dispatches email, webhook and chat notifications when a rule matches.

Examples:
  # Run the scheduler, HTTP API and metrics endpoint
  callwatch serve --config callwatch.yaml

  # Store a batch of provider records and run one pass
  callwatch ingest batch.json
  callwatch process

  # Load rules and actions from YAML
  callwatch seed rules.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		if verbose {
			c.Log.Level = "debug"
		}
		l, err := logging.New(c.Log.Level, c.Log.Format, serviceName)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "plain", "output format (plain, json)")
}

// PrintError prints an error message to stderr.
func PrintError(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
}
