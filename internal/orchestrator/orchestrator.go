// Package orchestrator wires ironpost's modules into one daemon: it
// builds the event bus, constructs each module from its slice of
// configuration, registers them with an ironcore.Registry in a fixed
// order, and drives the init/start/stop sequence around a PID file and
// the control socket.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/config"
	"github.com/dongwonkwak/ironpost/internal/containerguard"
	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerclient"
	"github.com/dongwonkwak/ironpost/internal/controlsock"
	"github.com/dongwonkwak/ironpost/internal/ebpfengine"
	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/logpipeline"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/parser"
	"github.com/dongwonkwak/ironpost/internal/observability"
	"github.com/dongwonkwak/ironpost/internal/ruleengine"
	"github.com/dongwonkwak/ironpost/internal/sbomscanner"
)

// Bus channel capacities, per the daemon's fixed event-bus sizing:
// packet 1024, alert 256, action 256. Log events are sized to the
// configured log buffer capacity since both bound the same backlog.
const (
	actionChanCapacity = 256
)

// Orchestrator owns the daemon's full lifecycle: module construction,
// channel wiring, the registry, the PID file, and the control socket.
type Orchestrator struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	reg     *ironcore.Registry
	control *controlsock.Server

	actionCh chan ironcore.ActionEvent

	pidFilePath string
	startedAt   time.Time
}

// New constructs every configured module and registers it, in the
// fixed order eBPF, log pipeline, rule engine, SBOM scanner, container
// guard. A module whose config section is disabled is still
// constructed and registered — every module self-handles being
// disabled in Init/Start. The one conditionally wired channel is the
// packet channel, which feeds the log pipeline only when eBPF is
// enabled.
func New(cfg *config.Config, logger *zap.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:         cfg,
		logger:      logger,
		metrics:     observability.NewMetrics(),
		reg:         ironcore.NewRegistry(),
		actionCh:    make(chan ironcore.ActionEvent, actionChanCapacity),
		pidFilePath: cfg.General.PIDFilePath,
	}

	packetCh := make(chan ironcore.PacketEvent, 1024)
	logCh := make(chan ironcore.LogEvent, cfg.LogPipeline.BufferCapacity)
	alertCh := make(chan ironcore.AlertEvent, 256)

	ebpfEngine := ebpfengine.New(ebpfengine.Config{
		Enabled:       cfg.EBPF.Enabled,
		PinnedMapPath: cfg.EBPF.PinnedMapPath,
	}, logger.Named("ebpf-engine"), packetCh).WithMetrics(o.metrics)
	if err := o.reg.Register(ironcore.ModuleEBPFEngine, ebpfEngine); err != nil {
		return nil, err
	}

	sources := make([]logpipeline.SourceConfig, 0, len(cfg.LogPipeline.Sources))
	for _, src := range cfg.LogPipeline.Sources {
		sources = append(sources, logpipeline.SourceConfig{Path: src.Path, Format: parser.Format(src.Format)})
	}
	pipeline := logpipeline.New(logpipeline.Config{
		BufferCapacity: cfg.LogPipeline.BufferCapacity,
		OverflowPolicy: logpipeline.OverflowPolicy(cfg.LogPipeline.OverflowPolicy),
		Sources:        sources,
	}, logger.Named("log-pipeline"), logCh)
	pipeline = pipeline.WithMetrics(o.metrics)
	if cfg.EBPF.Enabled {
		pipeline = pipeline.WithPacketSource(packetCh)
	}
	if err := o.reg.Register(ironcore.ModuleLogPipeline, pipeline); err != nil {
		return nil, err
	}

	rules := ruleengine.New(ruleengine.Config{RulesDir: cfg.General.RulesDir}, logger.Named("rule-engine"), logCh, alertCh).WithMetrics(o.metrics)
	if err := o.reg.Register(ironcore.ModuleRuleEngine, rules); err != nil {
		return nil, err
	}

	sbomMinSeverity, err := ironcore.ParseSeverity(cfg.SBOM.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: sbom min_severity: %w", err)
	}
	scanner := sbomscanner.NewBuilder(sbomscanner.Config{
		ScanPaths:    cfg.SBOM.ScanPaths,
		VulnDBPath:   cfg.SBOM.VulnDBPath,
		ScanInterval: cfg.SBOM.ScanInterval(),
		MinSeverity:  sbomMinSeverity,
	}, logger.Named("sbom-scanner"), alertCh).WithMetrics(o.metrics).Build()
	if err := o.reg.Register(ironcore.ModuleSBOMScanner, scanner); err != nil {
		return nil, err
	}

	dockerCli, err := dockerclient.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: docker client: %w", err)
	}
	guard := containerguard.New(containerguard.Config{
		Enabled:    cfg.Container.Enabled,
		PolicyPath: cfg.Container.PolicyPath,
		MonitorTTL: cfg.Container.PollInterval(),
		Isolation: containerguard.IsolationConfig{
			MaxConcurrentActions: cfg.Container.MaxConcurrentActions,
			MaxRetries:           cfg.Container.MaxRetries,
			RetryBackoff:         cfg.Container.RetryBackoff(),
			ActionTimeout:        cfg.Container.ActionTimeout(),
			Networks:             cfg.Container.Networks,
		},
	}, logger.Named("container-guard"), dockerCli, alertCh, o.actionCh).WithMetrics(o.metrics)
	if err := o.reg.Register(ironcore.ModuleContainerGuard, guard); err != nil {
		return nil, err
	}

	o.control = controlsock.NewServer(cfg.General.ControlSocketPath, o, logger.Named("controlsock"))

	return o, nil
}

// Run executes the full startup sequence, blocks until SIGTERM/SIGINT,
// then runs the shutdown sequence. Returns the first fatal error, if
// any; a clean shutdown returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := writePIDFile(o.pidFilePath); err != nil {
		return err
	}
	defer func() {
		if err := removePIDFile(o.pidFilePath); err != nil {
			o.logger.Warn("failed to remove pid file", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.reg.InitAll(runCtx); err != nil {
		return fmt.Errorf("orchestrator: init: %w", err)
	}

	if err := o.reg.StartAll(runCtx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if stopErr := o.reg.StopAll(stopCtx); stopErr != nil {
			o.logger.Error("rollback after failed start also failed", zap.Error(stopErr))
		}
		return fmt.Errorf("orchestrator: start: %w", err)
	}
	o.startedAt = time.Now()

	go o.logActions(runCtx)
	go o.pollHealth(runCtx)
	go func() {
		if o.cfg.Metrics.Enabled {
			if err := o.metrics.ServeMetrics(runCtx, o.cfg.Metrics.Addr); err != nil {
				o.logger.Error("metrics server error", zap.Error(err))
			}
		}
	}()
	go func() {
		if err := o.control.ListenAndServe(runCtx); err != nil {
			o.logger.Error("control socket error", zap.Error(err))
		}
	}()

	o.logger.Info("ironpost started",
		zap.String("node_id", o.cfg.General.NodeID),
		zap.Int("modules", o.reg.Len()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		o.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		o.logger.Info("parent context cancelled")
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := o.reg.StopAll(stopCtx); err != nil {
		return fmt.Errorf("orchestrator: stop: %w", err)
	}

	o.logger.Info("ironpost shutdown complete")
	return nil
}

// logActions records every isolation outcome at info level, so an
// operator reading logs alone (no metrics scrape) can see what the
// container guard actually did.
func (o *Orchestrator) logActions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.actionCh:
			if !ok {
				return
			}
			o.logger.Info("isolation action completed",
				zap.String("action_type", ev.ActionType),
				zap.String("target", ev.Target),
				zap.Bool("success", ev.Success),
				zap.String("trace_id", ev.Meta.TraceID),
			)
		}
	}
}

// pollHealth periodically pushes every module's HealthCheck result into
// the ModuleHealthy gauge, so the metrics surface reflects health even
// between control-socket status queries.
func (o *Orchestrator) pollHealth(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, h := range o.reg.HealthAll(ctx) {
				o.metrics.SetModuleHealth(name, h.Healthy, h.Degraded)
			}
		}
	}
}

// Uptime implements controlsock.StatusProvider.
func (o *Orchestrator) Uptime() time.Duration {
	if o.startedAt.IsZero() {
		return 0
	}
	return time.Since(o.startedAt)
}

// ModuleStatuses implements controlsock.StatusProvider.
func (o *Orchestrator) ModuleStatuses(ctx context.Context) []controlsock.ModuleStatus {
	health := o.reg.HealthAll(ctx)
	names := o.reg.Names()
	out := make([]controlsock.ModuleStatus, 0, len(names))
	for _, name := range names {
		p, ok := o.reg.Lookup(name)
		if !ok {
			continue
		}
		h := health[name]
		out = append(out, controlsock.ModuleStatus{
			Name:     name,
			State:    p.State().String(),
			Healthy:  h.Healthy,
			Degraded: h.Degraded,
			Reason:   h.Reason,
		})
	}
	return out
}

// Registry exposes the underlying module registry. The CLI's `rules`
// and `scan` subcommands do not go through it; they load rules and
// build a scanner of their own.
func (o *Orchestrator) Registry() *ironcore.Registry { return o.reg }
