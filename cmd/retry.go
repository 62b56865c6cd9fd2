package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobscout/internal/acquire"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run exhausted domains whose retry is due",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		sinkKinds, _ := cmd.Flags().GetString("sink")
		output, _ := cmd.Flags().GetString("output")

		env, err := initAcquire(ctx, sinkKinds)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, runErr := env.Service.RetryExhausted(ctx, limit)
		if summary != nil {
			formatRetrySummary(os.Stdout, summary)
			for _, res := range summary.Results {
				if err := writeResult(os.Stdout, res, output); err != nil {
					return err
				}
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "retry")
		}
		return nil
	},
}

func init() {
	retryCmd.Flags().Int("limit", 50, "max queued domains to retry")
	retryCmd.Flags().String("sink", "", "comma-separated sinks (default from config)")
	retryCmd.Flags().String("output", "table", "output format: table or json")
	rootCmd.AddCommand(retryCmd)
}

func formatRetrySummary(out io.Writer, s *acquire.RetrySummary) {
	if s.Attempted == 0 {
		_, _ = fmt.Fprintln(out, "No retries due.")
		return
	}
	_, _ = fmt.Fprintf(out, "Retried %d domains in %d runs: %d recovered, %d rescheduled\n",
		s.Attempted, len(s.Results), s.Recovered, s.Rescheduled)
}
