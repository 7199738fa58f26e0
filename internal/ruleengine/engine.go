package ruleengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/observability"
)

// Config is the subset of the daemon configuration the rule engine
// needs at construction time.
type Config struct {
	RulesDir string
}

// Engine evaluates incoming LogEvents against the loaded rule set, in
// the rules' file order, and emits an AlertEvent for every rule that
// matches (single-shot rules) or whose threshold is crossed
// (threshold rules).
type Engine struct {
	cfg     Config
	logger  *zap.Logger
	in      <-chan ironcore.LogEvent
	out     chan<- ironcore.AlertEvent

	matcher   *Matcher
	threshold *ThresholdTracker
	metrics   *observability.Metrics

	mu    sync.RWMutex
	rules []*ironcore.DetectionRule

	state   ironcore.PluginState
	stateMu sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs an Engine reading LogEvents from in and writing
// AlertEvents to out. Rules are loaded lazily, on Init.
func New(cfg Config, logger *zap.Logger, in <-chan ironcore.LogEvent, out chan<- ironcore.AlertEvent) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		in:        in,
		out:       out,
		matcher:   NewMatcher(),
		threshold: NewThresholdTracker(),
		state:     ironcore.StateCreated,
	}
}

// WithMetrics attaches a metrics recorder. Optional: a nil or
// never-set recorder means the engine runs without instrumentation.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

func (e *Engine) Info() ironcore.PluginInfo {
	return ironcore.PluginInfo{Name: ironcore.ModuleRuleEngine, Description: "evaluates detection rules against parsed log entries"}
}

func (e *Engine) State() ironcore.PluginState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Engine) setState(s ironcore.PluginState) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

// Init loads and validates the rule set. A rule-file error here is
// fatal — the engine refuses to run with a partially-loaded rule set.
func (e *Engine) Init(ctx context.Context) error {
	rules, err := LoadRules(e.cfg.RulesDir)
	if err != nil {
		e.setState(ironcore.StateFailed)
		return err
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	e.logger.Info("rule engine loaded rules", zap.Int("count", len(rules)), zap.String("dir", e.cfg.RulesDir))
	e.setState(ironcore.StateInitialized)
	return nil
}

// Start begins consuming LogEvents in a background goroutine.
func (e *Engine) Start(ctx context.Context) error {
	if e.State() == ironcore.StateRunning {
		return ironcore.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(runCtx)

	e.setState(ironcore.StateRunning)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.in:
			if !ok {
				return
			}
			e.evaluate(ev)
		}
	}
}

// evaluate runs every enabled rule against ev's entry, in file order,
// and emits an alert for each rule that fires. A rule whose regex
// fails to evaluate is logged and skipped — it never blocks
// evaluation of the rules after it.
func (e *Engine) evaluate(ev ironcore.LogEvent) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	now := time.Now()
	for _, rule := range rules {
		if rule.Status != ironcore.RuleEnabled {
			continue
		}
		if e.metrics != nil {
			e.metrics.RulesEvaluatedTotal.Inc()
		}
		matched, err := e.matcher.Matches(rule, ev.Entry)
		if err != nil {
			e.logger.Warn("rule evaluation error", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		if !matched {
			continue
		}

		if rule.Detection.Threshold == nil {
			e.emitAlert(rule, ev, now)
			continue
		}

		groupKey, ok := ev.Entry.FieldValue(rule.Detection.Threshold.GroupField)
		if !ok {
			continue
		}
		crossed := e.threshold.Observe(rule.ID, groupKey, rule.Detection.Threshold.Count, rule.Detection.Threshold.TimeframeSec, now)
		if e.metrics != nil {
			e.metrics.ThresholdCountersActive.Set(float64(e.threshold.Len()))
		}
		if crossed {
			e.emitAlert(rule, ev, now)
		}
	}
}

func (e *Engine) emitAlert(rule *ironcore.DetectionRule, ev ironcore.LogEvent, now time.Time) {
	alert := ironcore.Alert{
		ID:          fmt.Sprintf("%s-%d", rule.ID, now.UnixNano()),
		Title:       rule.Title,
		Description: rule.Description,
		Severity:    rule.Severity,
		RuleName:    rule.Title,
		CreatedAt:   now,
	}
	if ip, ok := ev.Entry.FieldValue("source_ip"); ok {
		alert.SourceIP = ip
	}
	if ip, ok := ev.Entry.FieldValue("target_ip"); ok {
		alert.TargetIP = ip
	}

	alertEvent := ironcore.NewAlertEventWithTrace(ironcore.ModuleRuleEngine, ev.Meta.TraceID, alert, rule.Severity)
	select {
	case e.out <- alertEvent:
		if e.metrics != nil {
			e.metrics.AlertsRaisedTotal.WithLabelValues(rule.Severity.String()).Inc()
			e.metrics.EventsProcessedTotal.WithLabelValues(ironcore.EventTypeAlert).Inc()
		}
	default:
		e.logger.Warn("alert channel full, dropping alert", zap.String("rule_id", rule.ID))
		if e.metrics != nil {
			e.metrics.EventsDroppedTotal.WithLabelValues(ironcore.ModuleRuleEngine, ironcore.EventTypeAlert).Inc()
		}
	}
}

// Stop signals the consuming goroutine to exit and waits for it to
// drain.
func (e *Engine) Stop(ctx context.Context) error {
	if e.State() != ironcore.StateRunning {
		return nil
	}
	e.cancel()
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.setState(ironcore.StateStopped)
	return nil
}

func (e *Engine) HealthCheck(ctx context.Context) ironcore.HealthStatus {
	if e.State() == ironcore.StateFailed {
		return ironcore.Unhealthy("rule engine failed to initialize")
	}
	return ironcore.Healthy()
}

// Rules returns a snapshot of the currently loaded rule set, in
// evaluation order.
func (e *Engine) Rules() []*ironcore.DetectionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*ironcore.DetectionRule, len(e.rules))
	copy(out, e.rules)
	return out
}
