// Package observability — metrics.go
//
// Prometheus metrics for the ironpost daemon.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only by convention — no external exposure.
//
// Metric naming convention: ironpost_<subsystem>_<name>[_total|_seconds]
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Labels are drawn from closed, small domains only: event_type
//     (packet, log, alert, action), protocol (tcp, udp, icmp, other),
//     severity (info, low, medium, high, critical), module name, and
//     the fixed action_type strings.
//   - Container IDs, file paths, and CVE IDs are never used as labels.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for ironpost.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Event bus ────────────────────────────────────────────────────────────

	// EventsProcessedTotal counts events consumed off any bus channel.
	// Labels: event_type (packet, log, alert, action)
	EventsProcessedTotal *prometheus.CounterVec

	// EventsDroppedTotal counts events dropped on a non-blocking send to
	// a full channel. Labels: module, event_type
	EventsDroppedTotal *prometheus.CounterVec

	// ─── eBPF engine ──────────────────────────────────────────────────────────

	// PacketsCapturedTotal counts decoded ring-buffer records.
	// Labels: protocol (tcp, udp, icmp, other)
	PacketsCapturedTotal *prometheus.CounterVec

	// ─── Log pipeline ─────────────────────────────────────────────────────────

	// LogEntriesParsedTotal counts successfully parsed log lines.
	// Labels: format (syslog, json)
	LogEntriesParsedTotal *prometheus.CounterVec

	// LogParseErrorsTotal counts lines that failed to parse.
	LogParseErrorsTotal *prometheus.CounterVec

	// LogBufferDroppedTotal counts entries evicted or rejected by the
	// bounded log buffer's overflow policy.
	LogBufferDroppedTotal prometheus.Counter

	// LogBufferDepth is the current queued entry count in the log buffer.
	LogBufferDepth prometheus.Gauge

	// ─── Rule engine ──────────────────────────────────────────────────────────

	// RulesEvaluatedTotal counts rule evaluations performed against an
	// incoming log entry.
	RulesEvaluatedTotal prometheus.Counter

	// AlertsRaisedTotal counts alerts raised by the rule engine.
	// Labels: severity
	AlertsRaisedTotal *prometheus.CounterVec

	// ThresholdCountersActive is the current size of the threshold
	// counter table.
	ThresholdCountersActive prometheus.Gauge

	// ─── Container guard ──────────────────────────────────────────────────────

	// AlertsProcessedTotal counts alerts received by the guard.
	AlertsProcessedTotal prometheus.Counter

	// IsolationsExecutedTotal counts isolation actions attempted.
	// Labels: action_type, success (true, false)
	IsolationsExecutedTotal *prometheus.CounterVec

	// IsolationActionDuration records isolation action latency, including
	// retries.
	IsolationActionDuration prometheus.Histogram

	// ConcurrentActionsInFlight is the current number of in-flight
	// isolation actions.
	ConcurrentActionsInFlight prometheus.Gauge

	// ─── SBOM scanner ─────────────────────────────────────────────────────────

	// ScansCompletedTotal counts completed SBOM scans.
	ScansCompletedTotal prometheus.Counter

	// PackagesScannedTotal counts individual packages matched against the
	// vulnerability database.
	PackagesScannedTotal prometheus.Counter

	// VulnerabilitiesFoundTotal counts vulnerability findings emitted as
	// alerts. Labels: severity
	VulnerabilitiesFoundTotal *prometheus.CounterVec

	// ─── Daemon ────────────────────────────────────────────────────────────────

	// ModuleHealthy reports 1 for healthy, 0.5 for degraded, 0 for
	// unhealthy, per registered module. Labels: module
	ModuleHealthy *prometheus.GaugeVec

	// UptimeSeconds is the number of seconds since the daemon started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all ironpost Prometheus metrics on a
// dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		EventsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Total events consumed off the event bus, by event type.",
		}, []string{"event_type"}),

		EventsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total events dropped on a full downstream channel, by module and event type.",
		}, []string{"module", "event_type"}),

		PacketsCapturedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "ebpf",
			Name:      "packets_captured_total",
			Help:      "Total packets decoded from the ring buffer, by protocol.",
		}, []string{"protocol"}),

		LogEntriesParsedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "log_pipeline",
			Name:      "entries_parsed_total",
			Help:      "Total log lines successfully parsed, by format.",
		}, []string{"format"}),

		LogParseErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "log_pipeline",
			Name:      "parse_errors_total",
			Help:      "Total log lines that failed to parse, by format.",
		}, []string{"format"}),

		LogBufferDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "log_pipeline",
			Name:      "buffer_dropped_total",
			Help:      "Total log entries evicted or rejected by the bounded buffer's overflow policy.",
		}),

		LogBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "log_pipeline",
			Name:      "buffer_depth",
			Help:      "Current number of entries queued in the log buffer.",
		}),

		RulesEvaluatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "rule_engine",
			Name:      "evaluations_total",
			Help:      "Total rule evaluations performed against incoming log entries.",
		}),

		AlertsRaisedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "rule_engine",
			Name:      "alerts_raised_total",
			Help:      "Total alerts raised by the rule engine, by severity.",
		}, []string{"severity"}),

		ThresholdCountersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "rule_engine",
			Name:      "threshold_counters_active",
			Help:      "Current size of the threshold counter table.",
		}),

		AlertsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "container_guard",
			Name:      "alerts_processed_total",
			Help:      "Total alerts received by the container guard.",
		}),

		IsolationsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "container_guard",
			Name:      "isolations_executed_total",
			Help:      "Total isolation actions attempted, by action type and outcome.",
		}, []string{"action_type", "success"}),

		IsolationActionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ironpost",
			Subsystem: "container_guard",
			Name:      "isolation_action_duration_seconds",
			Help:      "Isolation action latency including retries, in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		ConcurrentActionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "container_guard",
			Name:      "concurrent_actions_in_flight",
			Help:      "Current number of in-flight isolation actions.",
		}),

		ScansCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "sbom_scanner",
			Name:      "scans_completed_total",
			Help:      "Total SBOM scans completed.",
		}),

		PackagesScannedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "sbom_scanner",
			Name:      "packages_scanned_total",
			Help:      "Total packages matched against the vulnerability database.",
		}),

		VulnerabilitiesFoundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "sbom_scanner",
			Name:      "vulnerabilities_found_total",
			Help:      "Total vulnerability findings emitted as alerts, by severity.",
		}, []string{"severity"}),

		ModuleHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "daemon",
			Name:      "module_healthy",
			Help:      "Per-module health: 1 healthy, 0.5 degraded, 0 unhealthy.",
		}, []string{"module"}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "daemon",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.EventsProcessedTotal,
		m.EventsDroppedTotal,
		m.PacketsCapturedTotal,
		m.LogEntriesParsedTotal,
		m.LogParseErrorsTotal,
		m.LogBufferDroppedTotal,
		m.LogBufferDepth,
		m.RulesEvaluatedTotal,
		m.AlertsRaisedTotal,
		m.ThresholdCountersActive,
		m.AlertsProcessedTotal,
		m.IsolationsExecutedTotal,
		m.IsolationActionDuration,
		m.ConcurrentActionsInFlight,
		m.ScansCompletedTotal,
		m.PackagesScannedTotal,
		m.VulnerabilitiesFoundTotal,
		m.ModuleHealthy,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}

// SetModuleHealth records a module's current health as a numeric gauge
// value: 1 for healthy, 0.5 for degraded, 0 for unhealthy.
func (m *Metrics) SetModuleHealth(module string, healthy, degraded bool) {
	switch {
	case !healthy:
		m.ModuleHealthy.WithLabelValues(module).Set(0)
	case degraded:
		m.ModuleHealthy.WithLabelValues(module).Set(0.5)
	default:
		m.ModuleHealthy.WithLabelValues(module).Set(1)
	}
}
