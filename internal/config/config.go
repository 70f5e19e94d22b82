// Package config loads and holds all replay session configuration.
// Settings are layered: defaults → replay-config.json → .env file →
// environment variables (environment wins over everything).
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the full replay session configuration.
type Config struct {
	TapesPath string `json:"tapesPath"`

	// Record is the record-mode policy: "new", "overwrite", or "disabled".
	Record string `json:"record"`
	// RecordExpr, if set, is an expr-lang expression evaluated against the
	// session context to resolve the record mode dynamically, overriding Record.
	RecordExpr string `json:"recordExpr"`

	// Fallback is the behavior on a tape miss: "not_found" or "proxy".
	Fallback     string `json:"fallback"`
	FallbackExpr string `json:"fallbackExpr"`

	// LatencyMode is one of "realistic", "fast", "slow", "variable", "fixed", "expr".
	LatencyMode string `json:"latencyMode"`
	LatencyMs   int    `json:"latencyMs"`   // used when LatencyMode == "fixed"
	LatencyExpr string `json:"latencyExpr"` // used when LatencyMode == "expr"

	ErrorRate     float64 `json:"errorRate"`     // [0,100]
	ErrorExitCode int     `json:"errorExitCode"`
	ErrorMessage  string  `json:"errorMessage"`
	ErrorTruncate float64 `json:"errorTruncate"` // [0,1]
	Seed          int64   `json:"seed"`          // 0 = process-wide source

	Tag string `json:"tag"`

	AllowEnv    []string `json:"allowEnv"`
	IgnoreEnv   []string `json:"ignoreEnv"`
	IgnoreArgs  []string `json:"ignoreArgs"`
	IgnoreStdin bool     `json:"ignoreStdin"`

	Summary bool `json:"summary"`
	Redact  bool `json:"redact"`

	LogLevel        string `json:"logLevel"`
	ManagementPort  int    `json:"managementPort"`
	ManagementToken string `json:"managementToken"`
	IndexCacheFile  string `json:"indexCacheFile"` // path to bbolt index cache; empty = in-memory only
	GopsAgent       bool   `json:"gopsAgent"`
}

// Load returns config with defaults overridden by replay-config.json, an
// optional .env file, then environment variables.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "replay-config.json")
	loadDotEnv()
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		TapesPath:      "testdata/tapes",
		Record:         "new",
		Fallback:       "not_found",
		LatencyMode:    "realistic",
		ErrorRate:      0,
		ErrorExitCode:  1,
		ErrorTruncate:  0.5,
		IgnoreStdin:    false,
		Summary:        true,
		Redact:         true,
		LogLevel:       "info",
		ManagementPort: 0,
		IndexCacheFile: "",
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

// loadDotEnv merges a local .env file into the process environment, without
// overwriting variables already set. Missing file is fine; parse errors are
// logged and otherwise ignored.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Printf("[CONFIG] Warning: could not parse .env: %v", err)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("REPLAY_TAPES_PATH"); v != "" {
		cfg.TapesPath = v
	}
	if v := os.Getenv("REPLAY_RECORD"); v != "" {
		cfg.Record = v
	}
	if v := os.Getenv("REPLAY_RECORD_EXPR"); v != "" {
		cfg.RecordExpr = v
	}
	if v := os.Getenv("REPLAY_FALLBACK"); v != "" {
		cfg.Fallback = v
	}
	if v := os.Getenv("REPLAY_FALLBACK_EXPR"); v != "" {
		cfg.FallbackExpr = v
	}
	if v := os.Getenv("REPLAY_LATENCY_MODE"); v != "" {
		cfg.LatencyMode = v
	}
	if v := os.Getenv("REPLAY_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LatencyMs = n
		}
	}
	if v := os.Getenv("REPLAY_LATENCY_EXPR"); v != "" {
		cfg.LatencyExpr = v
	}
	if v := os.Getenv("REPLAY_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ErrorRate = f
		}
	}
	if v := os.Getenv("REPLAY_ERROR_TRUNCATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ErrorTruncate = f
		}
	}
	if v := os.Getenv("REPLAY_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("REPLAY_TAG"); v != "" {
		cfg.Tag = v
	}
	if v := os.Getenv("REPLAY_ALLOW_ENV"); v != "" {
		cfg.AllowEnv = splitCSV(v)
	}
	if v := os.Getenv("REPLAY_IGNORE_ENV"); v != "" {
		cfg.IgnoreEnv = splitCSV(v)
	}
	if v := os.Getenv("REPLAY_IGNORE_ARGS"); v != "" {
		cfg.IgnoreArgs = splitCSV(v)
	}
	if v := os.Getenv("REPLAY_IGNORE_STDIN"); v == "true" {
		cfg.IgnoreStdin = true
	}
	if v := os.Getenv("REPLAY_SUMMARY"); v == "false" {
		cfg.Summary = false
	}
	if v := os.Getenv("REPLAY_REDACT"); v == "false" || v == "0" {
		cfg.Redact = false
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := os.Getenv("REPLAY_INDEX_CACHE_FILE"); v != "" {
		cfg.IndexCacheFile = v
	}
	if v := os.Getenv("REPLAY_GOPS_AGENT"); v == "true" {
		cfg.GopsAgent = true
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
