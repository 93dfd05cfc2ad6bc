package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"chartengine/config"
	"chartengine/internal/store/sqlite"
	"chartengine/internal/view"
)

func newReportCmd(cfg *config.Config) *cobra.Command {
	var (
		limit int
		id    string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "List journaled teardown reports, or show one with --id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.SQLitePath == "" {
				return errors.New("SQLITE_PATH is not set")
			}
			j, err := sqlite.Open(sqlite.Config{DBPath: cfg.SQLitePath, Keep: cfg.ReportKeep})
			if err != nil {
				return err
			}
			defer j.Close()
			ctx := cmd.Context()

			if id != "" {
				r, ok, err := j.Get(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("report %s not found", id)
				}
				view.Report(cmd.OutOrStdout(), r)
				return nil
			}

			reports, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			view.Reports(cmd.OutOrStdout(), reports)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of reports")
	cmd.Flags().StringVar(&id, "id", "", "show one report in full")
	return cmd
}
