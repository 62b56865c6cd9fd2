package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobscout/internal/acquire"
	"github.com/sells-group/jobscout/internal/model"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire job postings for one or more domains",
	Long:  "Resolves every domain through its tier chain, deduplicates the merged records and persists them to the configured sinks.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		domains, _ := cmd.Flags().GetStringSlice("domains")
		query, _ := cmd.Flags().GetString("query")
		count, _ := cmd.Flags().GetInt("count")
		filterArgs, _ := cmd.Flags().GetStringArray("filter")
		sinkKinds, _ := cmd.Flags().GetString("sink")
		output, _ := cmd.Flags().GetString("output")

		filters, err := parseFilters(filterArgs)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("count") {
			count = cfg.Acquire.DefaultCount
		}
		inv := buildInvocation(domains, query, count, filters)

		env, err := initAcquire(ctx, sinkKinds)
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Service.Run(ctx, inv)
		if res != nil {
			if err := writeResult(os.Stdout, res, output); err != nil {
				return err
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "acquire")
		}
		return nil
	},
}

func init() {
	acquireCmd.Flags().StringSlice("domains", nil, "domains to query (e.g. upwork,linkedin,greenhouse)")
	acquireCmd.Flags().String("query", "", "search query")
	acquireCmd.Flags().Int("count", 0, "records wanted per domain (default from config)")
	acquireCmd.Flags().StringArray("filter", nil, "domain filter as key=value (repeatable)")
	acquireCmd.Flags().String("sink", "", "comma-separated sinks: store, xlsx, json, notion (default from config)")
	acquireCmd.Flags().String("output", "table", "output format: table or json")
	_ = acquireCmd.MarkFlagRequired("domains")
	rootCmd.AddCommand(acquireCmd)
}

// parseFilters turns repeated key=value flags into a map.
func parseFilters(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, eris.Errorf("invalid filter %q: want key=value", a)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func buildInvocation(domains []string, query string, count int, filters map[string]string) model.Invocation {
	inv := model.Invocation{Query: query, Count: count, Filters: filters}
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			inv.Domains = append(inv.Domains, model.ParseDomain(d))
		}
	}
	return inv
}

// writeResult prints a run result as a table or JSON.
func writeResult(out io.Writer, res *acquire.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "table", "":
		formatReport(out, res)
		return nil
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}

// formatReport renders one row per domain followed by run totals.
func formatReport(out io.Writer, res *acquire.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Domain", "Tier", "Yield", "Required", "Attempts", "Chain", "Cost"})
	for _, r := range res.Report.Rows() {
		tw.AppendRow(table.Row{r.Domain, r.Tier, r.Yielded, r.Required, r.Attempts, r.Tiers, fmt.Sprintf("$%.4f", r.CostUSD)})
	}
	tw.AppendFooter(table.Row{"", "", res.Report.TotalRecords, "", "", "", fmt.Sprintf("$%.4f", res.Report.CostUSD)})
	tw.Render()

	_, _ = fmt.Fprintf(out, "Run %s: %d records, %d unique (%d duplicates) in %s\n",
		truncateID(res.RunID), res.Dedupe.Total, res.Dedupe.Unique, res.Dedupe.Duplicates,
		res.Report.Duration.Round(time.Millisecond))
	if exhausted := res.Report.Exhausted(); len(exhausted) > 0 {
		names := make([]string, len(exhausted))
		for i, d := range exhausted {
			names[i] = string(d.Domain)
		}
		_, _ = fmt.Fprintf(out, "Exhausted: %s\n", strings.Join(names, ", "))
	}
	if res.Location != "" {
		_, _ = fmt.Fprintf(out, "Saved to: %s\n", res.Location)
	}
}
