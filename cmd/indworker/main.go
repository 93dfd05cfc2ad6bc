// Command indworker serves the indicator engine over websocket so chart
// orchestrators can offload computation to a separate process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chartengine/config"
	"chartengine/internal/indicator"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/worker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[indworker] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[indworker] config: %v", err)
	}
	logger.Init("indworker", logger.ParseLevel(cfg.LogLevel))

	engine := indicator.NewEngine()
	wsServer := worker.NewServer(engine)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "indworker_sessions",
			Help: "Connected websocket sessions",
		}, func() float64 { return float64(wsServer.Sessions()) }),
	)
	health := metrics.NewHealthStatus()
	health.SetWorkerConnected(true)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	srv := &http.Server{
		Addr:              cfg.WorkerAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[indworker] shutting down...")
		cancel()
	}()

	go func() {
		log.Printf("[indworker] serving %d indicators on %s/ws", len(engine.Supported()), cfg.WorkerAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[indworker] server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	srv.Shutdown(shutdownCtx)
	wsServer.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[indworker] stopped")
}
