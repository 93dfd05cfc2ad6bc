// Command chartctl loads progressive charts, computes indicators, serves the
// chart API and prints teardown reports.
package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"chartengine/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config
	root := &cobra.Command{
		Use:           "chartctl",
		Short:         "Progressive chart loading and technical indicators",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *c
			return nil
		},
	}
	cfg = config.Defaults()

	root.AddCommand(
		newLoadCmd(cfg),
		newComputeCmd(cfg),
		newServeCmd(cfg),
		newReportCmd(cfg),
	)
	return root
}
