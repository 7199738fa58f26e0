// Package config provides configuration loading, environment overrides,
// and validation for the ironpost daemon.
//
// Configuration file: /etc/ironpost/config.yaml (default), a single
// top-level YAML document with sections general, ebpf, log_pipeline,
// container, sbom, metrics. Missing sections use defaults; every field
// is optional with a documented default.
//
// After parsing, environment variables named IRONPOST_{SECTION}_{FIELD}
// (uppercased) override any scalar or string-list field; schema_version
// and log_pipeline.sources have no environment override. Parse failures
// log a warning and keep the prior value rather than aborting the load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// DefaultConfigPath is where the daemon looks for its config file absent
// a -c flag.
const DefaultConfigPath = "/etc/ironpost/config.yaml"

// DefaultVulnDBPath is the bbolt vulnerability database location.
const DefaultVulnDBPath = "/var/lib/ironpost/vulndb.db"

// Config is the root configuration structure for ironpost.
type Config struct {
	SchemaVersion string `yaml:"schema_version"`

	General     GeneralConfig     `yaml:"general"`
	EBPF        EBPFConfig        `yaml:"ebpf"`
	LogPipeline LogPipelineConfig `yaml:"log_pipeline"`
	Container   ContainerConfig   `yaml:"container"`
	SBOM        SBOMConfig        `yaml:"sbom"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// GeneralConfig holds daemon-wide parameters not specific to any module.
type GeneralConfig struct {
	// NodeID identifies this ironpost instance in logs. Default: hostname.
	NodeID string `yaml:"node_id"`

	// LogLevel is the minimum zap level: trace, debug, info, warn, error.
	// ("trace" maps to zap's debug level; zap has no separate trace level.)
	LogLevel string `yaml:"log_level"`

	// LogFormat is "json" (production) or "console" (development).
	LogFormat string `yaml:"log_format"`

	// RulesDir is the directory of per-rule YAML documents loaded by the
	// rule engine.
	RulesDir string `yaml:"rules_dir"`

	// PIDFilePath is where the orchestrator writes its PID file.
	PIDFilePath string `yaml:"pid_file"`

	// ControlSocketPath is the Unix domain socket the orchestrator
	// listens on for `ironpostctl status`.
	ControlSocketPath string `yaml:"control_socket_path"`
}

// EBPFConfig controls the eBPF packet-capture engine.
type EBPFConfig struct {
	// Enabled gates attachment to the pinned ring buffer map entirely.
	Enabled bool `yaml:"enabled"`

	// PinnedMapPath is the bpffs path of the pre-loaded, pre-pinned ring
	// buffer map a separate loader process pins.
	PinnedMapPath string `yaml:"pinned_map_path"`

	// XDPMode is informational only in this engine (attach is out of
	// scope); validated for forward compatibility with a future loader.
	// One of native, skb, hw.
	XDPMode string `yaml:"xdp_mode"`
}

// LogPipelineConfig controls log collection, buffering, and parsing.
type LogPipelineConfig struct {
	// BufferCapacity is the bounded buffer's max queued entries.
	BufferCapacity int `yaml:"buffer_capacity"`

	// OverflowPolicy is "drop_oldest" or "reject_newest".
	OverflowPolicy string `yaml:"overflow_policy"`

	// Sources lists the files to tail and how to parse each.
	Sources []LogSourceConfig `yaml:"sources"`
}

// LogSourceConfig names one file to tail and its wire format.
type LogSourceConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "syslog" or "json"
}

// ContainerConfig controls the container guard.
type ContainerConfig struct {
	// Enabled gates the guard entirely; when false the guard drains its
	// alert channel without acting.
	Enabled bool `yaml:"enabled"`

	// PolicyPath is the TOML isolation-policy file.
	PolicyPath string `yaml:"policy_path"`

	// PollIntervalSecs is the monitor cache TTL, in [1, 3600].
	PollIntervalSecs int `yaml:"poll_interval_secs"`

	// ActionTimeoutSecs bounds a single isolation attempt, in [1, 300].
	ActionTimeoutSecs int `yaml:"action_timeout_secs"`

	// MaxConcurrentActions bounds in-flight isolation actions, in [1, 100].
	MaxConcurrentActions int `yaml:"max_concurrent_actions"`

	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffMs is the linear backoff unit: sleep = backoff * attempt.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`

	// Networks lists the networks a NetworkDisconnect action detaches
	// the container from.
	Networks []string `yaml:"networks"`
}

// SBOMConfig controls the SBOM scanner.
type SBOMConfig struct {
	// ScanPaths are the directories walked (one level deep) for lockfiles.
	ScanPaths []string `yaml:"scan_paths"`

	// VulnDBPath is the bbolt vulnerability database file.
	VulnDBPath string `yaml:"vuln_db_path"`

	// ScanIntervalSecs is 0 (manual-only) or in [60, 604800].
	ScanIntervalSecs int `yaml:"scan_interval_secs"`

	// MaxFileSize is a lockfile size cap, in bytes, validated in
	// [1, 100 MiB]. The scanner does not read it; it skips lockfiles
	// over a fixed 32 MiB.
	MaxFileSize int64 `yaml:"max_file_size"`

	// MinSeverity suppresses findings below this severity.
	MinSeverity string `yaml:"min_severity"`
}

// MetricsConfig controls the Prometheus metrics HTTP surface.
type MetricsConfig struct {
	// Enabled gates whether ServeMetrics is started at all.
	Enabled bool `yaml:"enabled"`

	// Addr is the bind address, loopback only by convention.
	Addr string `yaml:"addr"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		General: GeneralConfig{
			NodeID:            hostname,
			LogLevel:          "info",
			LogFormat:         "json",
			RulesDir:          "/etc/ironpost/rules",
			PIDFilePath:       "/run/ironpost/ironpost.pid",
			ControlSocketPath: "/run/ironpost/control.sock",
		},
		EBPF: EBPFConfig{
			Enabled:       false,
			PinnedMapPath: "/sys/fs/bpf/ironpost/packet_events",
			XDPMode:       "skb",
		},
		LogPipeline: LogPipelineConfig{
			BufferCapacity: 10000,
			OverflowPolicy: "drop_oldest",
		},
		Container: ContainerConfig{
			Enabled:              true,
			PolicyPath:           "/etc/ironpost/policy.toml",
			PollIntervalSecs:     10,
			ActionTimeoutSecs:    30,
			MaxConcurrentActions: 10,
			MaxRetries:           2,
			RetryBackoffMs:       500,
		},
		SBOM: SBOMConfig{
			ScanPaths:        []string{"/"},
			VulnDBPath:       DefaultVulnDBPath,
			ScanIntervalSecs: 0,
			MaxFileSize:      32 << 20,
			MinSeverity:      "low",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9091",
		},
	}
}

// Load reads a config file, applies IRONPOST_* environment overrides,
// validates the result, and returns it. Returns an error if the file
// cannot be read, parsed, or fails validation.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	applyEnvOverrides(&cfg, os.Environ(), logger)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}
	return &cfg, nil
}

// envOverride is one IRONPOST_{SECTION}_{FIELD} binding: name is the
// full env var name, apply parses val and stores it if valid.
type envOverride struct {
	name  string
	apply func(val string) error
}

// applyEnvOverrides scans environ for IRONPOST_* variables and overrides
// the matching Config field. A parse failure logs a warning and leaves
// the prior value untouched; it never aborts the load.
func applyEnvOverrides(cfg *Config, environ []string, logger *zap.Logger) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}

	overrides := []envOverride{
		{"IRONPOST_GENERAL_NODE_ID", func(v string) error { cfg.General.NodeID = v; return nil }},
		{"IRONPOST_GENERAL_LOG_LEVEL", func(v string) error { cfg.General.LogLevel = v; return nil }},
		{"IRONPOST_GENERAL_LOG_FORMAT", func(v string) error { cfg.General.LogFormat = v; return nil }},
		{"IRONPOST_GENERAL_RULES_DIR", func(v string) error { cfg.General.RulesDir = v; return nil }},
		{"IRONPOST_GENERAL_PID_FILE", func(v string) error { cfg.General.PIDFilePath = v; return nil }},
		{"IRONPOST_GENERAL_CONTROL_SOCKET_PATH", func(v string) error { cfg.General.ControlSocketPath = v; return nil }},

		{"IRONPOST_EBPF_ENABLED", boolOverride(&cfg.EBPF.Enabled)},
		{"IRONPOST_EBPF_PINNED_MAP_PATH", func(v string) error { cfg.EBPF.PinnedMapPath = v; return nil }},
		{"IRONPOST_EBPF_XDP_MODE", func(v string) error { cfg.EBPF.XDPMode = v; return nil }},

		{"IRONPOST_LOG_PIPELINE_BUFFER_CAPACITY", intOverride(&cfg.LogPipeline.BufferCapacity)},
		{"IRONPOST_LOG_PIPELINE_OVERFLOW_POLICY", func(v string) error { cfg.LogPipeline.OverflowPolicy = v; return nil }},

		{"IRONPOST_CONTAINER_ENABLED", boolOverride(&cfg.Container.Enabled)},
		{"IRONPOST_CONTAINER_POLICY_PATH", func(v string) error { cfg.Container.PolicyPath = v; return nil }},
		{"IRONPOST_CONTAINER_POLL_INTERVAL_SECS", intOverride(&cfg.Container.PollIntervalSecs)},
		{"IRONPOST_CONTAINER_ACTION_TIMEOUT_SECS", intOverride(&cfg.Container.ActionTimeoutSecs)},
		{"IRONPOST_CONTAINER_MAX_CONCURRENT_ACTIONS", intOverride(&cfg.Container.MaxConcurrentActions)},
		{"IRONPOST_CONTAINER_MAX_RETRIES", intOverride(&cfg.Container.MaxRetries)},
		{"IRONPOST_CONTAINER_RETRY_BACKOFF_MS", intOverride(&cfg.Container.RetryBackoffMs)},
		{"IRONPOST_CONTAINER_NETWORKS", listOverride(&cfg.Container.Networks)},

		{"IRONPOST_SBOM_SCAN_PATHS", listOverride(&cfg.SBOM.ScanPaths)},
		{"IRONPOST_SBOM_VULN_DB_PATH", func(v string) error { cfg.SBOM.VulnDBPath = v; return nil }},
		{"IRONPOST_SBOM_SCAN_INTERVAL_SECS", intOverride(&cfg.SBOM.ScanIntervalSecs)},
		{"IRONPOST_SBOM_MAX_FILE_SIZE", func(v string) error {
			n, err := strconv.ParseUint(v, 10, 63)
			if err != nil {
				return err
			}
			cfg.SBOM.MaxFileSize = int64(n)
			return nil
		}},
		{"IRONPOST_SBOM_MIN_SEVERITY", func(v string) error { cfg.SBOM.MinSeverity = v; return nil }},

		{"IRONPOST_METRICS_ENABLED", boolOverride(&cfg.Metrics.Enabled)},
		{"IRONPOST_METRICS_ADDR", func(v string) error { cfg.Metrics.Addr = v; return nil }},
	}

	for _, o := range overrides {
		val, ok := env[o.name]
		if !ok {
			continue
		}
		if err := o.apply(val); err != nil {
			if logger != nil {
				logger.Warn("ignoring invalid environment override",
					zap.String("name", o.name), zap.String("value", val), zap.Error(err))
			}
		}
	}
}

func boolOverride(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func intOverride(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		*dst = int(n)
		return nil
	}
}

func listOverride(dst *[]string) func(string) error {
	return func(v string) error {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		*dst = out
		return nil
	}
}

// Validate checks all config fields for correctness, returning a single
// error listing every violation found (not just the first).
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.General.NodeID == "" {
		errs = append(errs, "general.node_id must not be empty")
	}
	if !oneOf(cfg.General.LogLevel, "trace", "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Sprintf("general.log_level must be one of trace,debug,info,warn,error, got %q", cfg.General.LogLevel))
	}
	if !oneOf(cfg.General.LogFormat, "json", "console") {
		errs = append(errs, fmt.Sprintf("general.log_format must be json or console, got %q", cfg.General.LogFormat))
	}
	if cfg.General.RulesDir == "" {
		errs = append(errs, "general.rules_dir must not be empty")
	}

	if cfg.EBPF.Enabled {
		if !oneOf(cfg.EBPF.XDPMode, "native", "skb", "hw") {
			errs = append(errs, fmt.Sprintf("ebpf.xdp_mode must be native, skb, or hw when ebpf is enabled, got %q", cfg.EBPF.XDPMode))
		}
		if cfg.EBPF.PinnedMapPath == "" {
			errs = append(errs, "ebpf.pinned_map_path must not be empty when ebpf is enabled")
		}
	}

	if cfg.LogPipeline.BufferCapacity < 1 {
		errs = append(errs, fmt.Sprintf("log_pipeline.buffer_capacity must be >= 1, got %d", cfg.LogPipeline.BufferCapacity))
	}
	if !oneOf(cfg.LogPipeline.OverflowPolicy, "drop_oldest", "reject_newest") {
		errs = append(errs, fmt.Sprintf("log_pipeline.overflow_policy must be drop_oldest or reject_newest, got %q", cfg.LogPipeline.OverflowPolicy))
	}
	for i, src := range cfg.LogPipeline.Sources {
		if !oneOf(src.Format, "syslog", "json") {
			errs = append(errs, fmt.Sprintf("log_pipeline.sources[%d].format must be syslog or json, got %q", i, src.Format))
		}
	}

	if cfg.Container.Enabled {
		if cfg.Container.PollIntervalSecs < 1 || cfg.Container.PollIntervalSecs > 3600 {
			errs = append(errs, fmt.Sprintf("container.poll_interval_secs must be in [1, 3600], got %d", cfg.Container.PollIntervalSecs))
		}
		if cfg.Container.ActionTimeoutSecs < 1 || cfg.Container.ActionTimeoutSecs > 300 {
			errs = append(errs, fmt.Sprintf("container.action_timeout_secs must be in [1, 300], got %d", cfg.Container.ActionTimeoutSecs))
		}
		if cfg.Container.MaxConcurrentActions < 1 || cfg.Container.MaxConcurrentActions > 100 {
			errs = append(errs, fmt.Sprintf("container.max_concurrent_actions must be in [1, 100], got %d", cfg.Container.MaxConcurrentActions))
		}
		if cfg.Container.PolicyPath == "" {
			errs = append(errs, "container.policy_path must not be empty when container guard is enabled")
		}
	}

	if cfg.SBOM.ScanIntervalSecs != 0 && (cfg.SBOM.ScanIntervalSecs < 60 || cfg.SBOM.ScanIntervalSecs > 604800) {
		errs = append(errs, fmt.Sprintf("sbom.scan_interval_secs must be 0 or in [60, 604800], got %d", cfg.SBOM.ScanIntervalSecs))
	}
	if cfg.SBOM.MaxFileSize < 1 || cfg.SBOM.MaxFileSize > 100<<20 {
		errs = append(errs, fmt.Sprintf("sbom.max_file_size must be in [1, 100 MiB], got %d", cfg.SBOM.MaxFileSize))
	}
	if _, err := parseSeverityLabel(cfg.SBOM.MinSeverity); err != nil {
		errs = append(errs, fmt.Sprintf("sbom.min_severity: %s", err))
	}
	if len(cfg.SBOM.ScanPaths) == 0 {
		errs = append(errs, "sbom.scan_paths must not be empty")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr must not be empty when metrics is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// PollInterval returns the container monitor cache TTL as a Duration.
func (c ContainerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// ActionTimeout returns the per-attempt isolation timeout as a Duration.
func (c ContainerConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSecs) * time.Second
}

// RetryBackoff returns the linear retry backoff unit as a Duration.
func (c ContainerConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// ScanInterval returns the periodic scan interval as a Duration, or 0 if
// periodic scanning is disabled.
func (c SBOMConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSecs) * time.Second
}

func oneOf(v string, choices ...string) bool {
	for _, c := range choices {
		if v == c {
			return true
		}
	}
	return false
}

// parseSeverityLabel validates a severity label without importing
// ironcore, keeping config free of a dependency on the event model.
func parseSeverityLabel(s string) (string, error) {
	if oneOf(s, "info", "low", "medium", "high", "critical") {
		return s, nil
	}
	return "", fmt.Errorf("must be one of info,low,medium,high,critical, got %q", s)
}
