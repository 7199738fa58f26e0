package ruleengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// LoadRules reads every *.yaml/*.yml file directly inside dir (no
// recursion into subdirectories) and returns the rules in a
// deterministic order: files sorted lexically by name, rules within a
// file in the order they appear in the YAML document. That file-name
// order becomes evaluation order — the engine never reorders by ID,
// severity, or any other derived key, so a rule author controls
// precedence by naming files.
func LoadRules(dir string) ([]*ironcore.DetectionRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ironcore.ConfigError{Path: dir, Reason: fmt.Sprintf("read rule directory: %v", err)}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasSuffix(n, ".yaml") || strings.HasSuffix(n, ".yml") {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	var rules []*ironcore.DetectionRule
	seen := make(map[string]string) // rule ID -> file it was first seen in
	for _, name := range names {
		path := filepath.Join(dir, name)
		fileRules, err := loadRuleFile(path)
		if err != nil {
			return nil, err
		}
		for _, r := range fileRules {
			if prior, dup := seen[r.ID]; dup {
				return nil, &ironcore.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("duplicate rule ID also defined in %s", prior)}
			}
			seen[r.ID] = name
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// loadRuleFile parses one rule file, resolving each rule's severity
// label and rejecting the file on any invalid rule.
func loadRuleFile(path string) ([]*ironcore.DetectionRule, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("stat rule file: %v", err)}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, &ironcore.ConfigError{Path: path, Reason: "rule file must not be a symlink"}
	}
	if !info.Mode().IsRegular() {
		return nil, &ironcore.ConfigError{Path: path, Reason: "rule file must be a regular file"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ironcore.ConfigError{Path: path, Reason: fmt.Sprintf("read rule file: %v", err)}
	}

	var doc struct {
		Rules []*ironcore.DetectionRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ironcore.ParseError{Format: "yaml", Reason: fmt.Sprintf("%s: %v", path, err)}
	}

	for _, r := range doc.Rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		sev, err := ironcore.ParseSeverity(r.SeverityStr)
		if err != nil {
			return nil, &ironcore.RuleError{RuleID: r.ID, Reason: err.Error()}
		}
		r.Severity = sev
	}
	return doc.Rules, nil
}

func validateRule(r *ironcore.DetectionRule) error {
	if r.ID == "" {
		return &ironcore.RuleError{RuleID: "(unnamed)", Reason: "missing id"}
	}
	if r.Title == "" {
		return &ironcore.RuleError{RuleID: r.ID, Reason: "missing title"}
	}
	for i, c := range r.Detection.Conditions {
		if c.FieldName == "" {
			return &ironcore.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("condition %d: missing field_name", i)}
		}
		if c.Modifier == ironcore.ModifierRegex {
			if _, err := compileGuardedRegex(c.Value); err != nil {
				return &ironcore.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("condition %d: %v", i, err)}
			}
		}
	}
	if t := r.Detection.Threshold; t != nil {
		if t.Count == 0 {
			return &ironcore.RuleError{RuleID: r.ID, Reason: "threshold count must be > 0"}
		}
		if t.TimeframeSec == 0 {
			return &ironcore.RuleError{RuleID: r.ID, Reason: "threshold timeframe_secs must be > 0"}
		}
	}
	switch r.Status {
	case ironcore.RuleEnabled, ironcore.RuleDisabled, ironcore.RuleTest:
	default:
		return &ironcore.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("invalid status %q", r.Status)}
	}
	return nil
}
