package containerguard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// maxPolicies bounds the loaded policy set so a malformed or adversarial
// policy file can't force an unbounded linear scan per evaluated
// container.
const maxPolicies = 1000

// maxPolicyFileBytes bounds the policy file itself, read before parsing.
const maxPolicyFileBytes = 10 << 20 // 10 MiB

// ActionKind is the isolation action a matching policy prescribes.
type ActionKind string

const (
	ActionPause              ActionKind = "pause"
	ActionStop               ActionKind = "stop"
	ActionNetworkDisconnect  ActionKind = "network_disconnect"
)

// TargetFilter selects which containers a Policy applies to. Name and
// image are each a glob-pattern OR group; the two groups combine with
// AND — a container matches only if it matches at least one name glob
// (when any are given) AND at least one image glob (when any are
// given). An empty group is treated as "matches everything" for that
// dimension.
type TargetFilter struct {
	NamePatterns  []string `toml:"name_patterns"`
	ImagePatterns []string `toml:"image_patterns"`
}

func (f TargetFilter) matches(name, image string) bool {
	if len(f.NamePatterns) > 0 && !anyGlobMatches(f.NamePatterns, name) {
		return false
	}
	if len(f.ImagePatterns) > 0 && !anyGlobMatches(f.ImagePatterns, image) {
		return false
	}
	return true
}

func anyGlobMatches(patterns []string, s string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, s); err == nil && ok {
			return true
		}
	}
	return false
}

// Policy binds a target filter to an action and a priority. Lower
// Priority values are evaluated first; the first matching policy wins
// for a given container, so operators order narrow overrides ahead of
// broad defaults by priority, not by file position.
type Policy struct {
	Name     string       `toml:"name"`
	Priority int          `toml:"priority"`
	Action   ActionKind   `toml:"action"`
	Target   TargetFilter `toml:"target"`
	Severity string       `toml:"min_severity"`

	// Enabled is a pointer so an absent `enabled` key in the TOML file
	// is distinguishable from an explicit `enabled = false` — a policy
	// with no `enabled` key at all defaults to enabled.
	Enabled *bool `toml:"enabled"`

	minSeverity ironcore.Severity
}

// enabled reports whether the policy participates in resolution. A nil
// Enabled (the key was absent from the file) defaults to true.
func (p Policy) enabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// PolicyEngine holds a loaded, priority-sorted policy set and resolves
// the winning policy for a (name, image, severity) triple.
type PolicyEngine struct {
	policies []Policy
}

// LoadPolicies reads a TOML policy file and returns a ready-to-use
// PolicyEngine. Rejects symlinked or non-regular files, oversized
// files, and a policy count over maxPolicies.
func LoadPolicies(path string) (*PolicyEngine, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("stat policy file: %v", err)}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, &ironcore.ConfigError{Path: path, Reason: "policy file must not be a symlink"}
	}
	if !info.Mode().IsRegular() {
		return nil, &ironcore.ConfigError{Path: path, Reason: "policy file must be a regular file"}
	}
	if info.Size() > maxPolicyFileBytes {
		return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("policy file exceeds %d bytes", maxPolicyFileBytes)}
	}

	var doc struct {
		Policies []Policy `toml:"policy"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, &ironcore.ParseError{Format: "toml", Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	if len(doc.Policies) > maxPolicies {
		return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("policy count %d exceeds cap of %d", len(doc.Policies), maxPolicies)}
	}

	for i := range doc.Policies {
		p := &doc.Policies[i]
		if p.Name == "" {
			return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("policy %d: missing name", i)}
		}
		switch p.Action {
		case ActionPause, ActionStop, ActionNetworkDisconnect:
		default:
			return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("policy %q: invalid action %q", p.Name, p.Action)}
		}
		sev, err := ironcore.ParseSeverity(p.Severity)
		if err != nil {
			return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("policy %q: %v", p.Name, err)}
		}
		p.minSeverity = sev
	}

	sort.SliceStable(doc.Policies, func(i, j int) bool {
		return doc.Policies[i].Priority < doc.Policies[j].Priority
	})

	return &PolicyEngine{policies: doc.Policies}, nil
}

// Resolve returns the first (lowest-priority-value) enabled policy whose
// target matches (name, image) and whose min_severity is at or below
// severity. Returns (Policy{}, false) if no enabled policy matches — the
// caller takes no action in that case.
func (pe *PolicyEngine) Resolve(name, image string, severity ironcore.Severity) (Policy, bool) {
	for _, p := range pe.policies {
		if !p.enabled() {
			continue
		}
		if severity < p.minSeverity {
			continue
		}
		if p.Target.matches(name, image) {
			return p, true
		}
	}
	return Policy{}, false
}

// Len returns the number of loaded policies.
func (pe *PolicyEngine) Len() int { return len(pe.policies) }
