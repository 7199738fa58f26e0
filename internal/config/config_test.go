package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("defaults must validate cleanly: %v", err)
	}
}

func TestLoad_FileOverlayOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
schema_version: "1"
general:
  node_id: "node-a"
  log_level: "debug"
  log_format: "console"
  rules_dir: "/etc/ironpost/rules"
metrics:
  addr: "127.0.0.1:9999"
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.NodeID != "node-a" || cfg.General.LogLevel != "debug" {
		t.Fatalf("file overlay not applied: %+v", cfg.General)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9999" {
		t.Fatalf("metrics.addr not overlaid: %q", cfg.Metrics.Addr)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Container.MaxConcurrentActions != 10 {
		t.Fatalf("expected default max_concurrent_actions to survive, got %d", cfg.Container.MaxConcurrentActions)
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml", zap.NewNop()); err == nil {
		t.Fatal("expected missing config file to error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Defaults()
	environ := []string{
		"IRONPOST_GENERAL_LOG_LEVEL=warn",
		"IRONPOST_CONTAINER_MAX_CONCURRENT_ACTIONS=42",
		"IRONPOST_CONTAINER_ENABLED=false",
		"IRONPOST_SBOM_SCAN_PATHS=/srv/app,/opt/app",
		"UNRELATED_VAR=ignored",
	}
	applyEnvOverrides(&cfg, environ, zap.NewNop())

	if cfg.General.LogLevel != "warn" {
		t.Errorf("log_level override not applied: %q", cfg.General.LogLevel)
	}
	if cfg.Container.MaxConcurrentActions != 42 {
		t.Errorf("max_concurrent_actions override not applied: %d", cfg.Container.MaxConcurrentActions)
	}
	if cfg.Container.Enabled {
		t.Errorf("container.enabled override not applied")
	}
	if len(cfg.SBOM.ScanPaths) != 2 || cfg.SBOM.ScanPaths[0] != "/srv/app" {
		t.Errorf("scan_paths override not applied: %v", cfg.SBOM.ScanPaths)
	}
}

func TestApplyEnvOverrides_InvalidValueKeepsPriorValue(t *testing.T) {
	cfg := Defaults()
	original := cfg.Container.MaxConcurrentActions
	applyEnvOverrides(&cfg, []string{"IRONPOST_CONTAINER_MAX_CONCURRENT_ACTIONS=not-a-number"}, zap.NewNop())
	if cfg.Container.MaxConcurrentActions != original {
		t.Fatalf("invalid override must not change prior value, got %d", cfg.Container.MaxConcurrentActions)
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	cfg.General.LogLevel = "bogus"
	cfg.Container.MaxConcurrentActions = 0
	cfg.SBOM.ScanIntervalSecs = 5 // below 60, not 0

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"schema_version", "log_level", "max_concurrent_actions", "scan_interval_secs"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected validation message to mention %q, got: %s", want, msg)
		}
	}
}
