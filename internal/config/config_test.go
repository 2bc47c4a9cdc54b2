package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Symbols) == 0 {
		t.Fatal("expected default symbol universe")
	}
	if cfg.Scheduler.ScanInterval != 180*time.Second {
		t.Fatalf("expected default scan interval of 180s, got %v", cfg.Scheduler.ScanInterval)
	}
	if cfg.Policy.MaxConcurrentTrades != 10 {
		t.Fatalf("expected default max_concurrent_trades of 10, got %d", cfg.Policy.MaxConcurrentTrades)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanner.yaml")
	contents := `
symbols:
  - BTCUSDT
data_dir: /var/lib/scanner
policy:
  max_concurrent_trades: 3
scheduler:
  scan_interval: 60s
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write fixture config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "BTCUSDT" {
		t.Fatalf("expected symbols from file to override default, got %v", cfg.Symbols)
	}
	if cfg.DataDir != "/var/lib/scanner" {
		t.Fatalf("expected data_dir from file, got %q", cfg.DataDir)
	}
	if cfg.Policy.MaxConcurrentTrades != 3 {
		t.Fatalf("expected overridden max_concurrent_trades of 3, got %d", cfg.Policy.MaxConcurrentTrades)
	}
	if cfg.Scheduler.ScanInterval != 60*time.Second {
		t.Fatalf("expected overridden scan interval of 60s, got %v", cfg.Scheduler.ScanInterval)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanner.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /file/value\n"), 0644); err != nil {
		t.Fatalf("failed to write fixture config: %v", err)
	}

	t.Setenv("SCANNER_DATA_DIR", "/env/value")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataDir != "/env/value" {
		t.Fatalf("expected environment variable to override file value, got %q", cfg.DataDir)
	}
}
