// Package ironcore holds the data model and runtime primitives shared by
// every ironpost module: the event envelope, the plugin lifecycle
// contract, and the common error taxonomy. Modules depend on ironcore;
// ironcore depends on nothing else in this repository.
package ironcore

import "fmt"

// Severity is the total-ordered rating shared by alerts, rules, and
// security policies. Info is the lowest, Critical the highest.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase label used in config, CLI output, and
// metric labels (never the raw integer).
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseSeverity maps a lowercase label back to a Severity. Used by config
// validation and rule/policy loading.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("ironcore: invalid severity %q", s)
	}
}
