package containerguard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerclient"
	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/observability"
)

// Config is the subset of daemon configuration container-guard needs.
type Config struct {
	Enabled     bool
	PolicyPath  string
	MonitorTTL  time.Duration
	Isolation   IsolationConfig
}

// Guard wires the policy engine, the container monitor, and the
// isolation executor into an ironcore.Plugin that consumes AlertEvents
// and emits ActionEvents for every isolation action it takes.
type Guard struct {
	cfg    Config
	logger *zap.Logger
	client dockerclient.Client
	in     <-chan ironcore.AlertEvent
	out    chan<- ironcore.ActionEvent

	policies *PolicyEngine
	monitor  *DockerMonitor
	executor *IsolationExecutor
	metrics  *observability.Metrics

	state   ironcore.PluginState
	stateMu sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Guard. client is the Docker backend (production or a
// test fake); policies and the monitor are built during Init so a
// missing or invalid policy file fails Init rather than Start.
func New(cfg Config, logger *zap.Logger, client dockerclient.Client, in <-chan ironcore.AlertEvent, out chan<- ironcore.ActionEvent) *Guard {
	return &Guard{cfg: cfg, logger: logger, client: client, in: in, out: out, state: ironcore.StateCreated}
}

// WithMetrics attaches a metrics recorder, propagated to the isolation
// executor built during Init. Optional: a nil or never-set recorder
// means the guard runs without instrumentation.
func (g *Guard) WithMetrics(m *observability.Metrics) *Guard {
	g.metrics = m
	return g
}

func (g *Guard) Info() ironcore.PluginInfo {
	return ironcore.PluginInfo{Name: ironcore.ModuleContainerGuard, Description: "enforces isolation policies against alerting containers"}
}

func (g *Guard) State() ironcore.PluginState {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.state
}

func (g *Guard) setState(s ironcore.PluginState) {
	g.stateMu.Lock()
	g.state = s
	g.stateMu.Unlock()
}

func (g *Guard) Init(ctx context.Context) error {
	if !g.cfg.Enabled {
		g.setState(ironcore.StateInitialized)
		return nil
	}

	policies, err := LoadPolicies(g.cfg.PolicyPath)
	if err != nil {
		g.setState(ironcore.StateFailed)
		return err
	}
	g.policies = policies

	if err := g.client.Ping(ctx); err != nil {
		g.setState(ironcore.StateFailed)
		return &ironcore.ContainerError{Reason: "docker daemon unreachable: " + err.Error()}
	}

	g.monitor = NewDockerMonitor(g.client, g.cfg.MonitorTTL)
	g.executor = NewIsolationExecutor(g.client, g.logger, g.cfg.Isolation).WithMetrics(g.metrics)
	g.setState(ironcore.StateInitialized)
	return nil
}

// Start begins consuming AlertEvents. If container-guard is disabled,
// Start still transitions to Running but the consuming goroutine simply
// drains and discards every alert, so upstream producers never block on
// a full channel — the orchestrator doesn't special-case a disabled
// guard when wiring channels.
func (g *Guard) Start(ctx context.Context) error {
	if g.State() == ironcore.StateRunning {
		return ironcore.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go g.run(runCtx)

	g.setState(ironcore.StateRunning)
	return nil
}

func (g *Guard) run(ctx context.Context) {
	defer close(g.done)
	for {
		select {
		case <-ctx.Done():
			return
		case alert, ok := <-g.in:
			if !ok {
				return
			}
			if g.cfg.Enabled {
				g.handleAlert(ctx, alert)
			}
		}
	}
}

// handleAlert snapshots the current container list and evaluates
// policies against every container in it, independently. An alert
// carries no container identity of its own — it's a signal that
// something happened, not a pointer at one container — so a single
// alert can drive isolation actions against several containers at
// once, one per container whose name or image resolves to an enabled
// policy at or above the alert's severity.
func (g *Guard) handleAlert(ctx context.Context, alertEvent ironcore.AlertEvent) {
	if g.metrics != nil {
		g.metrics.AlertsProcessedTotal.Inc()
	}

	containers, err := g.monitor.List(ctx)
	if err != nil {
		g.logger.Warn("container list failed for alert", zap.Error(err))
		return
	}

	for _, info := range containers {
		policy, matched := g.policies.Resolve(info.Name, info.Image, alertEvent.Severity)
		if !matched {
			continue
		}

		actionEvent := g.executor.Execute(ctx, policy.Action, info.ID, alertEvent.Meta.TraceID)
		select {
		case g.out <- actionEvent:
			if g.metrics != nil {
				g.metrics.EventsProcessedTotal.WithLabelValues(ironcore.EventTypeAction).Inc()
			}
		default:
			g.logger.Warn("action event channel full, dropping event", zap.String("container_id", info.ID))
			if g.metrics != nil {
				g.metrics.EventsDroppedTotal.WithLabelValues(ironcore.ModuleContainerGuard, ironcore.EventTypeAction).Inc()
			}
		}
	}
}

func (g *Guard) Stop(ctx context.Context) error {
	if g.State() != ironcore.StateRunning {
		return nil
	}
	g.cancel()
	select {
	case <-g.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.setState(ironcore.StateStopped)
	return nil
}

func (g *Guard) HealthCheck(ctx context.Context) ironcore.HealthStatus {
	if !g.cfg.Enabled {
		return ironcore.DegradedHealth("container guard disabled by configuration")
	}
	if g.State() == ironcore.StateFailed {
		return ironcore.Unhealthy("container guard failed to initialize")
	}
	if g.client != nil {
		if err := g.client.Ping(ctx); err != nil {
			return ironcore.DegradedHealth("docker daemon unreachable: " + err.Error())
		}
	}
	return ironcore.Healthy()
}
