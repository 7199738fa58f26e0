package ruleengine

import (
	"testing"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

func thresholdRule(groupField string, count uint64) *ironcore.DetectionRule {
	r := &ironcore.DetectionRule{ID: "thr-1", Title: "repeated login failure", Status: ironcore.RuleEnabled}
	r.Detection.Conditions = []ironcore.FieldCondition{
		{FieldName: "process", Modifier: ironcore.ModifierExact, Value: "sshd"},
	}
	r.Detection.Threshold = &ironcore.ThresholdConfig{GroupField: groupField, Count: count, TimeframeSec: 60}
	return r
}

func newTestEngine(rules []*ironcore.DetectionRule) (*Engine, chan ironcore.LogEvent, chan ironcore.AlertEvent) {
	in := make(chan ironcore.LogEvent, 4)
	out := make(chan ironcore.AlertEvent, 4)
	e := New(Config{}, zap.NewNop(), in, out)
	e.rules = rules
	return e, in, out
}

func TestEvaluate_ThresholdCrossedEmitsAlert(t *testing.T) {
	rule := thresholdRule("source_ip", 2)
	e, _, out := newTestEngine([]*ironcore.DetectionRule{rule})

	ev := ironcore.NewLogEvent("test", entry(ironcore.Field{Key: "source_ip", Value: "10.0.0.1"}))
	e.evaluate(ev)
	select {
	case <-out:
		t.Fatal("expected no alert on first observation below threshold")
	default:
	}

	e.evaluate(ev)
	select {
	case <-out:
	default:
		t.Fatal("expected alert once threshold count is reached")
	}

	if got := e.threshold.Len(); got != 1 {
		t.Errorf("threshold counters = %d, want 1", got)
	}
}

func TestEvaluate_MissingGroupFieldSkipsThresholdCounting(t *testing.T) {
	rule := thresholdRule("source_ip", 1)
	e, _, out := newTestEngine([]*ironcore.DetectionRule{rule})

	ev := ironcore.NewLogEvent("test", entry())
	e.evaluate(ev)

	select {
	case <-out:
		t.Fatal("expected no alert when the group field is absent from the entry")
	default:
	}
	if got := e.threshold.Len(); got != 0 {
		t.Errorf("threshold counters = %d, want 0 when the group field is absent", got)
	}

	e.evaluate(ev)
	select {
	case <-out:
		t.Fatal("expected repeated entries missing the group field to never cross the threshold")
	default:
	}
	if got := e.threshold.Len(); got != 0 {
		t.Errorf("threshold counters = %d, want 0 after repeated observation with an absent field", got)
	}
}

func TestEvaluate_NonThresholdRuleEmitsOnEveryMatch(t *testing.T) {
	rule := &ironcore.DetectionRule{ID: "single-1", Title: "accepted password", Status: ironcore.RuleEnabled}
	rule.Detection.Conditions = []ironcore.FieldCondition{
		{FieldName: "process", Modifier: ironcore.ModifierExact, Value: "sshd"},
	}
	e, _, out := newTestEngine([]*ironcore.DetectionRule{rule})

	ev := ironcore.NewLogEvent("test", entry())
	e.evaluate(ev)
	select {
	case <-out:
	default:
		t.Fatal("expected an alert for a matching non-threshold rule")
	}
}

func TestEvaluate_DisabledRuleNeverMatches(t *testing.T) {
	rule := thresholdRule("source_ip", 1)
	rule.Status = ironcore.RuleDisabled
	e, _, out := newTestEngine([]*ironcore.DetectionRule{rule})

	ev := ironcore.NewLogEvent("test", entry(ironcore.Field{Key: "source_ip", Value: "10.0.0.1"}))
	e.evaluate(ev)

	select {
	case <-out:
		t.Fatal("expected a disabled rule to never be evaluated")
	default:
	}
	if got := e.threshold.Len(); got != 0 {
		t.Errorf("threshold counters = %d, want 0 for a disabled rule", got)
	}
}
