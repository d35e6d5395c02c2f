package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/callwatch/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Store a JSON batch of provider calls, messages and alerts",
	Long: `Store a JSON document of the form {"calls":[...],"messages":[...],"alerts":[...]}
as unprocessed logs. Records whose SID is already stored are skipped.
Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open batch: %w", err)
			}
			defer f.Close()
			r = f
		}

		batch, err := ingest.DecodeBatch(r)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ingestor.Ingest(cmd.Context(), batch)
		if err != nil {
			return err
		}

		if output == "json" {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d new logs (%d calls, %d messages, %d alerts), %d duplicates, %d rejected\n",
			res.Total(), res.Calls, res.Messages, res.Alerts, res.Duplicates, res.Rejected)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
