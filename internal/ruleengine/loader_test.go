package ruleengine

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadRules_OrdersByFileNameThenDocumentOrder(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "20-second.yaml", `
rules:
  - id: r2
    title: second
    severity: low
    status: enabled
    detection:
      conditions:
        - field_name: process
          modifier: exact
          value: sshd
`)
	writeRuleFile(t, dir, "10-first.yaml", `
rules:
  - id: r1a
    title: first-a
    severity: medium
    status: enabled
    detection:
      conditions:
        - field_name: process
          modifier: exact
          value: sshd
  - id: r1b
    title: first-b
    severity: medium
    status: enabled
    detection:
      conditions:
        - field_name: process
          modifier: exact
          value: sshd
`)

	rules, err := LoadRules(dir)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	gotIDs := []string{rules[0].ID, rules[1].ID, rules[2].ID}
	wantIDs := []string{"r1a", "r1b", "r2"}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Errorf("rule %d: got %s, want %s", i, gotIDs[i], wantIDs[i])
		}
	}
}

func TestLoadRules_RejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	body := `
rules:
  - id: dup
    title: t
    severity: low
    status: enabled
    detection:
      conditions:
        - field_name: process
          modifier: exact
          value: sshd
`
	writeRuleFile(t, dir, "a.yaml", body)
	writeRuleFile(t, dir, "b.yaml", body)

	if _, err := LoadRules(dir); err == nil {
		t.Fatal("expected duplicate rule ID to be rejected")
	}
}

func TestLoadRules_RejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "bad.yaml", `
rules:
  - id: bad
    title: ""
    severity: low
    status: enabled
    detection:
      conditions:
        - field_name: process
          modifier: exact
          value: sshd
`)
	if _, err := LoadRules(dir); err == nil {
		t.Fatal("expected missing title to be rejected")
	}
}

func TestLoadRules_RejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.yaml")
	writeRuleFile(t, dir, "real.yaml", `rules: []`)
	link := filepath.Join(dir, "link.yaml")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}
	if _, err := LoadRules(dir); err == nil {
		t.Fatal("expected symlinked rule file to be rejected")
	}
}

func TestLoadRules_EmptyDirReturnsNoRules(t *testing.T) {
	dir := t.TempDir()
	rules, err := LoadRules(dir)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected no rules, got %d", len(rules))
	}
}
