package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chartengine/config"
	"chartengine/internal/api"
	"chartengine/internal/refresh"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chart API, with a scheduled refresh of REFRESH_SYMBOLS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			a := newApp(ctx, cfg, "chartctl")
			a.startLiveness(ctx, 15*time.Second)

			var reports api.Reports
			if a.journal != nil {
				reports = a.journal
			}
			srv, err := api.NewServer(api.Config{
				Addr:         cfg.APIAddr,
				Orchestrator: a.orch,
				Charts:       a.plotter,
				Reports:      reports,
				Health:       a.health,
				Gatherer:     a.reg,
			})
			if err != nil {
				return err
			}

			if symbols := cfg.Symbols(); len(symbols) > 0 {
				sched := refresh.New(ctx, a.orch, symbols, a.log)
				if err := sched.Register(cfg.RefreshSchedule); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			log.Printf("[chartctl] serving on %s", cfg.APIAddr)

			select {
			case <-ctx.Done():
			case err = <-errCh:
				if err != nil {
					log.Printf("[chartctl] server error: %v", err)
				}
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("[chartctl] shutdown: %v", err)
			}
			report := a.close(shutdownCtx)
			log.Printf("[chartctl] stopped after %d loads (report %s)", report.Loads, report.ID)
			return err
		},
	}
}
