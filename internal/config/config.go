// Package config loads the daemon configuration from an optional YAML file
// with environment-variable overrides applied on top. All values are resolved
// once at startup; nothing in the core reads the environment after Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level linefeed configuration.
type Config struct {
	// TargetURL is the dashboard page to scrape.
	TargetURL string `yaml:"target_url"`

	// ListenAddr is the HTTP listen address. Default: ":8000".
	ListenAddr string `yaml:"listen_addr"`

	// Engine selects the preferred automation engine: "chrome" or "http".
	// The other engine is the fallback. Default: "chrome".
	Engine string `yaml:"engine"`

	// UserAgent sent by both engines.
	UserAgent string `yaml:"user_agent"`

	ScrapeInterval     time.Duration `yaml:"scrape_interval"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout"`
	ExtractionTimeout  time.Duration `yaml:"extraction_timeout"`
	FreshnessThreshold time.Duration `yaml:"freshness_threshold"`

	// MaxRequestsPerMinute is the sustained per-client admission rate.
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
	// MaxTrackedClients caps the number of rate-limit buckets kept in memory.
	MaxTrackedClients int `yaml:"max_tracked_clients"`

	// DataDir holds the snapshot database and the instance lock file.
	DataDir string `yaml:"data_dir"`
	// DebugDir holds failure captures, bounded to MaxDebugArtifacts files.
	DebugDir          string `yaml:"debug_dir"`
	MaxDebugArtifacts int    `yaml:"max_debug_artifacts"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, fills defaults, and validates.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values from the deployment environment. Bare
// numbers in duration variables are seconds, matching the deployment scripts;
// Go duration syntax ("90s", "2m") is accepted too. SELENIUM_TIMEOUT and
// PLAYWRIGHT_TIMEOUT are honored as legacy spellings of the navigation and
// extraction timeouts.
func (c *Config) applyEnv() {
	envStr("TARGET_URL", &c.TargetURL)
	envStr("LISTEN_ADDR", &c.ListenAddr)
	envStr("SCRAPE_ENGINE", &c.Engine)
	envStr("DATA_DIR", &c.DataDir)
	envStr("DEBUG_DIR", &c.DebugDir)

	envDuration("SCRAPE_INTERVAL", &c.ScrapeInterval)
	envDuration("NAVIGATION_TIMEOUT", &c.NavigationTimeout)
	envDuration("SELENIUM_TIMEOUT", &c.NavigationTimeout)
	envDuration("EXTRACTION_TIMEOUT", &c.ExtractionTimeout)
	envDuration("PLAYWRIGHT_TIMEOUT", &c.ExtractionTimeout)
	envDuration("FRESHNESS_THRESHOLD", &c.FreshnessThreshold)

	envInt("MAX_CLIENTS_PER_MINUTE", &c.MaxRequestsPerMinute)
	envInt("MAX_REQUESTS_PER_MINUTE", &c.MaxRequestsPerMinute)
	envInt("MAX_TRACKED_CLIENTS", &c.MaxTrackedClients)
	envInt("MAX_DEBUG_ARTIFACTS", &c.MaxDebugArtifacts)
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	if c.Engine == "" {
		c.Engine = "chrome"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	if c.ScrapeInterval <= 0 {
		c.ScrapeInterval = 3 * time.Second
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = 15 * time.Second
	}
	if c.FreshnessThreshold <= 0 {
		c.FreshnessThreshold = 30 * time.Second
	}
	if c.MaxRequestsPerMinute <= 0 {
		c.MaxRequestsPerMinute = 60
	}
	if c.MaxTrackedClients <= 0 {
		c.MaxTrackedClients = 10_000
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DebugDir == "" {
		c.DebugDir = "debug_html"
	}
	if c.MaxDebugArtifacts <= 0 {
		c.MaxDebugArtifacts = 50
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.TargetURL == "" {
		return fmt.Errorf("config: target_url is required")
	}
	if c.Engine != "chrome" && c.Engine != "http" {
		return fmt.Errorf("config: engine must be \"chrome\" or \"http\", got %q", c.Engine)
	}
	if c.ScrapeInterval < time.Second {
		return fmt.Errorf("config: scrape_interval %s is below 1s", c.ScrapeInterval)
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
