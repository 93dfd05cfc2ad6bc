package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chartengine/config"
	"chartengine/internal/chart"
	"chartengine/internal/view"
)

func newLoadCmd(cfg *config.Config) *cobra.Command {
	var showReport bool
	cmd := &cobra.Command{
		Use:   "load SYMBOL...",
		Short: "Run the progressive load for each symbol and render its chart",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := newApp(ctx, cfg, "chartctl")

			results := make([]chart.LoadResult, 0, len(args))
			for _, symbol := range args {
				results = append(results, a.orch.Load(ctx, strings.ToUpper(symbol)))
			}
			out := cmd.OutOrStdout()
			view.Loads(out, results)
			for _, r := range results {
				if r.Fatal == nil && !r.Cancelled {
					fmt.Fprintf(out, "%s: %s\n", r.Symbol, a.plotter.Path(r.Target))
				}
			}

			report := a.close(context.WithoutCancel(ctx))
			if showReport {
				view.Report(out, report)
			}
			for _, r := range results {
				if r.Fatal != nil {
					return fmt.Errorf("%s: %w", r.Symbol, r.Fatal)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showReport, "report", false, "print the teardown report")
	return cmd
}
