package ruleengine

import (
	"testing"
	"time"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

func entry(fields ...ironcore.Field) ironcore.LogEntry {
	return ironcore.LogEntry{
		Source:    "test",
		Timestamp: time.Now(),
		Hostname:  "host-a",
		Process:   "sshd",
		Message:   "Failed password for root from 10.0.0.1",
		Fields:    fields,
	}
}

func TestMatches_ANDAcrossConditions(t *testing.T) {
	m := NewMatcher()
	rule := &ironcore.DetectionRule{ID: "r1"}
	rule.Detection.Conditions = []ironcore.FieldCondition{
		{FieldName: "process", Modifier: ironcore.ModifierExact, Value: "sshd"},
		{FieldName: "message", Modifier: ironcore.ModifierContains, Value: "Failed password"},
	}

	ok, err := m.Matches(rule, entry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected match when both conditions hold")
	}

	rule.Detection.Conditions[1].Value = "Accepted password"
	ok, err = m.Matches(rule, entry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no match when one condition fails")
	}
}

func TestMatches_EmptyConditionsMatchesEverything(t *testing.T) {
	m := NewMatcher()
	rule := &ironcore.DetectionRule{ID: "r2"}
	ok, err := m.Matches(rule, entry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a rule with zero conditions to match every entry")
	}
}

func TestMatches_MissingFieldNeverMatches(t *testing.T) {
	m := NewMatcher()
	rule := &ironcore.DetectionRule{ID: "r3"}
	rule.Detection.Conditions = []ironcore.FieldCondition{
		{FieldName: "nonexistent", Modifier: ironcore.ModifierExact, Value: "x"},
	}
	ok, err := m.Matches(rule, entry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no match against an absent field")
	}
}

func TestMatches_RegexModifier(t *testing.T) {
	m := NewMatcher()
	rule := &ironcore.DetectionRule{ID: "r4"}
	rule.Detection.Conditions = []ironcore.FieldCondition{
		{FieldName: "message", Modifier: ironcore.ModifierRegex, Value: `from \d+\.\d+\.\d+\.\d+`},
	}
	ok, err := m.Matches(rule, entry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected regex match against IP-bearing message")
	}
}

func TestCompileGuardedRegex_RejectsForbiddenShapesAndLength(t *testing.T) {
	if _, err := compileGuardedRegex(`(.*)+`); err == nil {
		t.Fatal("expected rejection of nested-quantifier shape")
	}
	long := make([]byte, maxRegexPatternLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := compileGuardedRegex(string(long)); err == nil {
		t.Fatal("expected rejection of over-long pattern")
	}
	if _, err := compileGuardedRegex(`^[a-z]+$`); err != nil {
		t.Fatalf("expected a normal pattern to compile: %v", err)
	}
}

func TestMatcherCache_ReusesCompiledRegex(t *testing.T) {
	m := NewMatcher()
	re1, err := m.cache.compile("r5", 0, `^abc$`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	re2, err := m.cache.compile("r5", 0, `^abc$`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if re1 != re2 {
		t.Fatal("expected cached regex to be reused for the same (rule, condition) key")
	}
}
