package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one processing pass over unprocessed logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		count, ran, err := a.scheduler.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("processing pass: %w", err)
		}

		if output == "json" {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
				"ran":       ran,
				"processed": count,
				"stats":     a.engine.Stats(),
			})
		}
		if !ran {
			fmt.Fprintln(cmd.OutOrStdout(), "another pass holds the lock, nothing processed")
			return nil
		}
		st := a.engine.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d logs: %d rule matches, %d actions succeeded, %d failed, %d log errors\n",
			count, st.RuleMatches, st.ActionsDispatched, st.ActionsFailed, st.LogErrors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
