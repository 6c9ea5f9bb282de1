// Package config loads and hot-reloads ai_config.json, the JSON
// configuration file described in spec §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// APIKeys holds the three provider credentials, each independently
// overridable by environment variable.
type APIKeys struct {
	GeminiAPIKey     string `json:"gemini_api_key"`
	GroqAPIKey       string `json:"groq_api_key"`
	OpenRouterAPIKey string `json:"openrouter_api_key"`
}

// DataCollection controls C10's snapshot sampling.
type DataCollection struct {
	TimeWindowMinutes   int `json:"time_window_minutes"`
	MaxPacketsToAnalyze int `json:"max_packets_to_analyze"`
}

// Config is the parsed ai_config.json document (§6 key table).
type Config struct {
	AIEnabled               bool           `json:"ai_enabled"`
	AnalysisIntervalMinutes int            `json:"analysis_interval_minutes"`
	APIKeys                 APIKeys        `json:"api_keys"`
	DataCollection          DataCollection `json:"data_collection"`
	Providers               []string       `json:"providers"`
}

const (
	defaultAnalysisInterval   = 15
	defaultTimeWindowMinutes  = 15
	defaultMaxPacketsAnalyze  = 200
)

func defaults() Config {
	return Config{
		AIEnabled:               true,
		AnalysisIntervalMinutes: defaultAnalysisInterval,
		DataCollection: DataCollection{
			TimeWindowMinutes:   defaultTimeWindowMinutes,
			MaxPacketsToAnalyze: defaultMaxPacketsAnalyze,
		},
	}
}

// Load reads path (if it exists), applies defaults for missing fields,
// then applies environment-variable overrides for secrets and cadence.
// A missing file is not an error: the zero-config case runs on defaults
// with whatever credentials the environment supplies.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through on defaults
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets secrets and operator cadence be set without
// touching the checked-in config file, layering environment variables
// over file-based config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NETGUARD_GEMINI_API_KEY"); v != "" {
		cfg.APIKeys.GeminiAPIKey = v
	}
	if v := os.Getenv("NETGUARD_GROQ_API_KEY"); v != "" {
		cfg.APIKeys.GroqAPIKey = v
	}
	if v := os.Getenv("NETGUARD_OPENROUTER_API_KEY"); v != "" {
		cfg.APIKeys.OpenRouterAPIKey = v
	}
	if v := os.Getenv("NETGUARD_AI_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AIEnabled = b
		}
	}
	if v := os.Getenv("NETGUARD_ANALYSIS_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AnalysisIntervalMinutes = n
		}
	}
}

// Interval returns AnalysisIntervalMinutes as a Duration, clamped to a
// sane floor so a misconfigured 0/negative value can't busy-loop C10.
func (c *Config) Interval() time.Duration {
	if c.AnalysisIntervalMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(c.AnalysisIntervalMinutes) * time.Minute
}

// snapshot is used by the watcher to publish a fully-formed *Config
// atomically to readers without them taking a lock per field access.
type snapshot struct {
	mu  sync.RWMutex
	cfg *Config
}

func (s *snapshot) get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *snapshot) set(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
