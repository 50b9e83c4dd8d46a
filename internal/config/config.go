// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers .env, an optional YAML file and SKILLSYNC_* env vars on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
)

// Store drivers understood by the service.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the document store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used when StoreDriver is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// JWTSecret signs socket identity tokens. Empty enables the
	// user_id query parameter for local development.
	JWTSecret string `koanf:"jwt_secret"`

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// RecomputeQueueSize bounds the background score recompute queue.
	RecomputeQueueSize int `koanf:"recompute_queue_size"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the set used to coalesce pending recomputes.
	DedupeSize int `koanf:"dedupe_size"`

	// HistoryLimit is the default page size for score history reads.
	HistoryLimit int `koanf:"history_limit"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// SendBuffer is the per-connection outbound frame buffer in the hub.
	SendBuffer int `koanf:"send_buffer"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreDriver:         StoreMemory,
		SQLitePath:          "skillsync.db",
		RecomputeQueueSize:  10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          50_000,
		HistoryLimit:        50,
		MaxLeaderboardLimit: 100,
		SendBuffer:          64,
	}
}
