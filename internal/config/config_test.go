package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "linefeed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// WHAT: A minimal config file gets every default filled in.
	path := writeFile(t, "target_url: https://example.com/\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ScrapeInterval != 3*time.Second {
		t.Errorf("scrape_interval: got %s", cfg.ScrapeInterval)
	}
	if cfg.NavigationTimeout != 30*time.Second {
		t.Errorf("navigation_timeout: got %s", cfg.NavigationTimeout)
	}
	if cfg.MaxRequestsPerMinute != 60 {
		t.Errorf("max_requests_per_minute: got %d", cfg.MaxRequestsPerMinute)
	}
	if cfg.Engine != "chrome" {
		t.Errorf("engine: got %q", cfg.Engine)
	}
	if cfg.DebugDir != "debug_html" {
		t.Errorf("debug_dir: got %q", cfg.DebugDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	// WHAT: Environment variables override file values; bare numbers are seconds.
	// WHY: The deployment scripts export SCRAPE_INTERVAL=5 style settings.
	path := writeFile(t, "target_url: https://example.com/\nscrape_interval: 10s\n")
	t.Setenv("SCRAPE_INTERVAL", "5")
	t.Setenv("MAX_CLIENTS_PER_MINUTE", "120")
	t.Setenv("LISTEN_ADDR", ":9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ScrapeInterval != 5*time.Second {
		t.Errorf("scrape_interval: got %s, want 5s", cfg.ScrapeInterval)
	}
	if cfg.MaxRequestsPerMinute != 120 {
		t.Errorf("max_requests_per_minute: got %d", cfg.MaxRequestsPerMinute)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("listen_addr: got %q", cfg.ListenAddr)
	}
}

func TestLoad_LegacyTimeoutNames(t *testing.T) {
	// WHAT: SELENIUM_TIMEOUT and PLAYWRIGHT_TIMEOUT map onto the navigation
	// and extraction timeouts.
	// WHY: Existing deployments export the driver-era variable names.
	t.Setenv("TARGET_URL", "https://example.com/")
	t.Setenv("SELENIUM_TIMEOUT", "45")
	t.Setenv("PLAYWRIGHT_TIMEOUT", "20")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NavigationTimeout != 45*time.Second {
		t.Errorf("navigation_timeout: got %s, want 45s", cfg.NavigationTimeout)
	}
	if cfg.ExtractionTimeout != 20*time.Second {
		t.Errorf("extraction_timeout: got %s, want 20s", cfg.ExtractionTimeout)
	}
}

func TestLoad_MissingTarget(t *testing.T) {
	// WHAT: A config without target_url is rejected.
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "target_url") {
		t.Fatalf("expected target_url error, got %v", err)
	}
}

func TestLoad_BadEngine(t *testing.T) {
	// WHAT: Unknown engine names are rejected at startup, not at scrape time.
	path := writeFile(t, "target_url: https://example.com/\nengine: webkit\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "engine") {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestLoad_IntervalFloor(t *testing.T) {
	// WHAT: Sub-second scrape intervals are rejected.
	// WHY: Hammering the upstream faster than once a second is never intended.
	path := writeFile(t, "target_url: https://example.com/\nscrape_interval: 100ms\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "scrape_interval") {
		t.Fatalf("expected interval error, got %v", err)
	}
}
