package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobscout/internal/routing"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show the tier chain of every configured domain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		routes, err := initRoutes(cfg.Acquire)
		if err != nil {
			return err
		}
		formatRoutes(os.Stdout, routes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func formatRoutes(out io.Writer, routes *routing.Table) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Domain", "Chain"})
	for _, d := range routes.Domains() {
		tiers := routes.TiersFor(d)
		names := make([]string, len(tiers))
		for i, t := range tiers {
			names[i] = string(t)
		}
		tw.AppendRow(table.Row{d, strings.Join(names, " > ")})
	}
	tw.AppendFooter(table.Row{"(other)", routes.Fallback()})
	tw.Render()
	_, _ = fmt.Fprintf(out, "Unlisted domains fall back to %s.\n", routes.Fallback())
}
