package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from defaults, then
// the YAML file named by CHART_CONFIG, then environment variables.
type Config struct {
	// Chart API
	ChartAPIURL string `yaml:"chart_api_url"`
	Period      string `yaml:"period"`

	// Rendering
	PlotDir        string `yaml:"plot_dir"`
	LargeThreshold int    `yaml:"large_threshold"`

	// Indicator worker
	WorkerURL   string        `yaml:"worker_url"`  // ws://host:port/ws, "none" for synchronous only; empty runs an in-process worker
	WorkerAddr  string        `yaml:"worker_addr"` // listen address of the worker daemon
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// Infrastructure
	RedisAddr     string        `yaml:"redis_addr"` // empty uses the in-memory summary cache
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	SummaryTTL    time.Duration `yaml:"summary_ttl"`
	SQLitePath    string        `yaml:"sqlite_path"`
	ReportKeep    int           `yaml:"report_keep"`
	APIAddr       string        `yaml:"api_addr"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	LogLevel      string        `yaml:"log_level"`

	// Circuit breaker for the chart API and the cache
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`

	// Scheduled refresh (comma-separated symbols, cron spec)
	RefreshSymbols  string `yaml:"refresh_symbols"`
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		ChartAPIURL:     "http://localhost:8000",
		Period:          "1y",
		PlotDir:         "data/plots",
		LargeThreshold:  1000,
		WorkerAddr:      ":8090",
		TaskTimeout:     5 * time.Second,
		SummaryTTL:      30 * time.Minute,
		SQLitePath:      "data/reports.db",
		ReportKeep:      50,
		APIAddr:         ":8080",
		MetricsAddr:     ":9090",
		LogLevel:        "info",
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
		RefreshSchedule: "@every 15m",
	}
}

// Load reads .env (if present), the optional YAML file and environment
// variable overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CHART_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ChartAPIURL = getEnv("CHART_API_URL", cfg.ChartAPIURL)
	cfg.Period = getEnv("CHART_PERIOD", cfg.Period)
	cfg.PlotDir = getEnv("PLOT_DIR", cfg.PlotDir)
	cfg.LargeThreshold = getInt("CHART_LARGE_THRESHOLD", cfg.LargeThreshold)

	cfg.WorkerURL = getEnv("WORKER_URL", cfg.WorkerURL)
	cfg.WorkerAddr = getEnv("WORKER_ADDR", cfg.WorkerAddr)
	cfg.TaskTimeout = getDuration("WORKER_TASK_TIMEOUT", cfg.TaskTimeout)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getInt("REDIS_DB", cfg.RedisDB)
	cfg.SummaryTTL = getDuration("SUMMARY_TTL", cfg.SummaryTTL)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.ReportKeep = getInt("REPORT_KEEP", cfg.ReportKeep)
	cfg.APIAddr = getEnv("API_ADDR", cfg.APIAddr)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.BreakerFailures = getInt("BREAKER_FAILURES", cfg.BreakerFailures)
	cfg.BreakerReset = getDuration("BREAKER_RESET", cfg.BreakerReset)

	cfg.RefreshSymbols = getEnv("REFRESH_SYMBOLS", cfg.RefreshSymbols)
	cfg.RefreshSchedule = getEnv("REFRESH_SCHEDULE", cfg.RefreshSchedule)

	return cfg, nil
}

// Symbols parses RefreshSymbols into a list, upper-cased, without blanks or
// duplicates.
func (c *Config) Symbols() []string {
	parts := strings.Split(c.RefreshSymbols, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return d
}
