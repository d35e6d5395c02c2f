package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/callwatch/internal/alerting"
)

var seedDryRun bool

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load monitoring rules and their actions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		seed, err := alerting.LoadSeedFromFile(args[0], a.registry)
		if err != nil {
			return err
		}

		actions := 0
		for _, list := range seed.Actions {
			actions += len(list)
		}
		if seedDryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d rules, %d actions\n", args[0], len(seed.Rules), actions)
			return nil
		}

		if err := seed.Apply(cmd.Context(), a.store.Rules(), a.store.Actions()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rules and %d actions\n", len(seed.Rules), actions)
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "validate the file without storing anything")
	rootCmd.AddCommand(seedCmd)
}
