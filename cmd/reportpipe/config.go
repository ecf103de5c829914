package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all reportpipe server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	StoreDBPath     string `json:"store_db_path"`
	WarehouseDBPath string `json:"warehouse_db_path"`
	Model           string `json:"model"`
	MaxTokens       int64  `json:"max_tokens"`
	MaxIterations   int    `json:"max_iterations"`
	LogLevel        string `json:"log_level"`
	RefreshCron     string `json:"refresh_cron"`
	StageTimeoutSec int    `json:"stage_timeout_sec"`
	QueryTimeoutSec int    `json:"query_timeout_sec"`
	CacheTTLSec     int    `json:"cache_ttl_sec"`
}

func defaultConfig() Config {
	return Config{
		StoreDBPath:     "file:" + filepath.Join(reportpipeDir(), "reportpipe.db"),
		WarehouseDBPath: "file:" + filepath.Join(reportpipeDir(), "warehouse.db"),
		Model:           "claude-sonnet-4-5",
		MaxTokens:       4096,
		MaxIterations:   3,
		LogLevel:        "info",
		RefreshCron:     "0 * * * *",
		StageTimeoutSec: 120,
		QueryTimeoutSec: 30,
		CacheTTLSec:     3600,
	}
}

func reportpipeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reportpipe"
	}
	return filepath.Join(home, ".reportpipe")
}

func settingsPath() string {
	return filepath.Join(reportpipeDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("REPORTPIPE_STORE_DB_PATH"); v != "" {
		cfg.StoreDBPath = v
	}
	if v := os.Getenv("REPORTPIPE_WAREHOUSE_DB_PATH"); v != "" {
		cfg.WarehouseDBPath = v
	}
	if v := os.Getenv("REPORTPIPE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("REPORTPIPE_MAX_TOKENS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("REPORTPIPE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("REPORTPIPE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REPORTPIPE_REFRESH_CRON"); v != "" {
		cfg.RefreshCron = v
	}
	if v := os.Getenv("REPORTPIPE_STAGE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StageTimeoutSec = n
		}
	}
	if v := os.Getenv("REPORTPIPE_QUERY_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueryTimeoutSec = n
		}
	}
	if v := os.Getenv("REPORTPIPE_CACHE_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTLSec = n
		}
	}

	return cfg
}

func (c Config) stageTimeout() time.Duration { return time.Duration(c.StageTimeoutSec) * time.Second }
func (c Config) queryTimeout() time.Duration { return time.Duration(c.QueryTimeoutSec) * time.Second }
func (c Config) cacheTTL() time.Duration     { return time.Duration(c.CacheTTLSec) * time.Second }
