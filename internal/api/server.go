// Package api serves the chart engine over HTTP: progressive loads, direct
// indicator computation, rendered charts, reports, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartengine/internal/chart"
	"chartengine/internal/indicator"
	"chartengine/internal/model"
)

// Charts resolves a plot target to its rendered file.
type Charts interface {
	Path(target string) string
}

// Reports lists persisted teardown reports.
type Reports interface {
	Recent(ctx context.Context, n int) ([]chart.Report, error)
}

// Config wires the server. Charts, Reports, Health and Gatherer are optional.
type Config struct {
	Addr         string
	Orchestrator *chart.Orchestrator
	Charts       Charts
	Reports      Reports
	Health       http.Handler
	Gatherer     prometheus.Gatherer
}

// Server is the HTTP API.
type Server struct {
	orch    *chart.Orchestrator
	charts  Charts
	reports Reports
	router  *gin.Engine
	srv     *http.Server
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("api: orchestrator is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		orch:    cfg.Orchestrator,
		charts:  cfg.Charts,
		reports: cfg.Reports,
		router:  router,
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.registerRoutes(cfg)
	return s, nil
}

func (s *Server) registerRoutes(cfg Config) {
	api := s.router.Group("/api")
	api.POST("/load/:symbol", s.handleLoad)
	api.GET("/indicators", s.handleSupported)
	api.POST("/indicators/batch", s.handleBatch)
	api.POST("/indicators/:kind", s.handleCompute)
	api.GET("/report", s.handleReport)
	api.GET("/reports", s.handleReports)

	s.router.GET("/charts/:target", s.handleChart)
	s.router.DELETE("/charts/:target", s.handleDestroy)

	if cfg.Health != nil {
		s.router.GET("/healthz", gin.WrapH(cfg.Health))
	}
	if cfg.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves in the background. It returns once the listener fails or the
// server is shut down; the error is nil after Shutdown.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type loadResponse struct {
	chart.LoadResult
	Error string `json:"error,omitempty"`
}

func (s *Server) handleLoad(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	res := s.orch.Load(c.Request.Context(), symbol)
	resp := loadResponse{LoadResult: res}
	switch {
	case res.Fatal != nil:
		resp.Error = res.Fatal.Error()
		c.JSON(http.StatusBadGateway, resp)
	case res.Cancelled:
		c.JSON(http.StatusConflict, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"indicators": s.orch.Dispatcher().Supported(),
		"worker":     s.orch.Dispatcher().HasWorker(),
	})
}

type computeRequest struct {
	Data   json.RawMessage `json:"data" binding:"required"`
	Params model.Params    `json:"params"`
}

func (s *Server) handleCompute(c *gin.Context) {
	kind := model.Kind(strings.ToLower(c.Param("kind")))
	var req computeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := model.DecodeData(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.orch.Dispatcher().Calculate(c.Request.Context(), kind, data, req.Params)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": kind, "result": res})
}

type batchRequest struct {
	Data       json.RawMessage `json:"data" binding:"required"`
	Indicators []model.Request `json:"indicators" binding:"required"`
}

func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := model.DecodeData(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.orch.Dispatcher().Batch(c.Request.Context(), req.Indicators, data)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleChart(c *gin.Context) {
	if s.charts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "charts are not served"})
		return
	}
	path := s.charts.Path(c.Param("target"))
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not found"})
		return
	}
	c.File(path)
}

func (s *Server) handleDestroy(c *gin.Context) {
	existed, err := s.orch.Destroy(c.Param("target"))
	switch {
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case !existed:
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not found"})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleReport(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Report())
}

func (s *Server) handleReports(c *gin.Context) {
	if s.reports == nil {
		c.JSON(http.StatusOK, gin.H{"reports": []chart.Report{}})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	list, err := s.reports.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list})
}

// statusFor maps computation errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, indicator.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, chart.ErrComputationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, chart.ErrWorkerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
