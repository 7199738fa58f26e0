package ironcore

import "fmt"

// The error taxonomy below mirrors the nine kinds named by the daemon's
// error-handling design: config, pipeline, detection/rule, parse,
// storage, container, sbom, plugin, io. The first eight are distinct Go
// types so callers can discriminate with errors.As and render the
// minimal structured fields an operator needs; io has no dedicated type.

// ConfigError covers missing files, parse failures, and invalid field
// values discovered during Load/Validate.
type ConfigError struct {
	Path   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config: %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("config: field %q: %s", e.Field, e.Reason)
}

// PipelineError covers module lifecycle misuse: starting an already
// running module, stopping one that never started, or a channel
// send/recv failure.
type PipelineError struct {
	Module string
	Reason string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: %s: %s", e.Module, e.Reason)
}

var (
	ErrAlreadyRunning = &PipelineError{Reason: "already running"}
	ErrNotRunning     = &PipelineError{Reason: "not running"}
)

// RuleError covers rule compilation and validation failures.
type RuleError struct {
	RuleID string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
}

// ParseError covers log-record parse failures: unsupported format,
// offset-tagged malformed input, or input exceeding a size cap.
type ParseError struct {
	Format string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("parse(%s) at offset %d: %s", e.Format, e.Offset, e.Reason)
	}
	return fmt.Sprintf("parse(%s): %s", e.Format, e.Reason)
}

// StorageError covers the bbolt-backed vulnerability DB's connection and
// query failures.
type StorageError struct {
	Op     string
	Reason string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %s", e.Op, e.Reason)
}

// ContainerError covers Docker API failures, isolation-action failures,
// policy violations, and not-found lookups.
type ContainerError struct {
	ContainerID string
	Reason      string
	NotFound    bool
}

func (e *ContainerError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("container %s: not found", e.ContainerID)
	}
	return fmt.Sprintf("container %s: %s", e.ContainerID, e.Reason)
}

// SbomError covers scan failures, vulnerability-DB load failures,
// unsupported lockfile formats, and SBOM parse failures.
type SbomError struct {
	Path   string
	Reason string
}

func (e *SbomError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("sbom: %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("sbom: %s", e.Reason)
}

// PluginError covers registry misuse: duplicate registration, lookup
// miss, invalid state transition, and stop failures (the latter
// aggregated, see Registry.StopAll).
type PluginError struct {
	Name    string
	Current string
	Wanted  string
	Reason  string
}

func (e *PluginError) Error() string {
	if e.Current != "" || e.Wanted != "" {
		return fmt.Sprintf("plugin %q: invalid state: current=%s, expected=%s", e.Name, e.Current, e.Wanted)
	}
	return fmt.Sprintf("plugin %q: %s", e.Name, e.Reason)
}

func ErrAlreadyRegistered(name string) error {
	return &PluginError{Name: name, Reason: "already registered"}
}

func ErrPluginNotFound(name string) error {
	return &PluginError{Name: name, Reason: "not found"}
}

func ErrInvalidState(name, current, wanted string) error {
	return &PluginError{Name: name, Current: current, Wanted: wanted}
}
