package ebpfengine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/observability"
)

// Config is the subset of daemon configuration the eBPF engine needs.
type Config struct {
	Enabled   bool
	PinnedMapPath string
}

// Engine reads raw packet records from a Source, decodes them, and
// publishes one ironcore.PacketEvent per record. Implements
// ironcore.Plugin.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	out    chan<- ironcore.PacketEvent

	newSource func(path string) (Source, error)
	source    Source
	metrics   *observability.Metrics

	state   ironcore.PluginState
	stateMu sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs an Engine. Production callers leave newSource nil (it
// defaults to OpenPinned); tests override it to inject a fake Source.
func New(cfg Config, logger *zap.Logger, out chan<- ironcore.PacketEvent) *Engine {
	return &Engine{cfg: cfg, logger: logger, out: out, newSource: OpenPinned, state: ironcore.StateCreated}
}

// WithMetrics attaches a metrics recorder. Optional: a nil or
// never-set recorder means the engine runs without instrumentation.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

func (e *Engine) Info() ironcore.PluginInfo {
	return ironcore.PluginInfo{Name: ironcore.ModuleEBPFEngine, Description: "decodes kernel-captured packet records from a pinned ring buffer"}
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

// Init attaches to the pinned ring buffer map. A disabled engine skips
// attachment entirely — useful for hosts without the capture program
// loaded, or for running the rest of the daemon in a container lacking
// CAP_BPF.
func (e *Engine) Init(ctx context.Context) error {
	if !e.cfg.Enabled {
		e.setState(ironcore.StateInitialized)
		return nil
	}
	if err := rlimitRemoveMemlock(); err != nil {
		e.logger.Warn("failed to raise memlock rlimit, continuing anyway", zap.Error(err))
	}
	source, err := e.newSource(e.cfg.PinnedMapPath)
	if err != nil {
		e.setState(ironcore.StateFailed)
		return err
	}
	e.source = source
	e.setState(ironcore.StateInitialized)
	return nil
}

func (e *Engine) Start(ctx context.Context) error {
	if e.State() == ironcore.StateRunning {
		return ironcore.ErrAlreadyRunning
	}
	_, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	if e.cfg.Enabled && e.source != nil {
		go e.run()
	} else {
		close(e.done)
	}

	e.setState(ironcore.StateRunning)
	return nil
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		raw, err := e.source.Read()
		if err != nil {
			if errors.Is(err, errSourceClosed) {
				return
			}
			e.logger.Warn("ring buffer read error", zap.Error(err))
			continue
		}
		info, err := DecodePacket(raw)
		if err != nil {
			e.logger.Warn("packet record decode error", zap.Error(err))
			continue
		}
		pkt := ironcore.NewPacketEvent(ironcore.PacketInfo{
			Protocol:   info.Protocol,
			SourceIP:   info.SourceIP,
			DestIP:     info.DestIP,
			SourcePort: info.SrcPort,
			DestPort:   info.DstPort,
			Length:     info.Length,
		}, raw)

		if e.metrics != nil {
			e.metrics.PacketsCapturedTotal.WithLabelValues(info.Protocol).Inc()
		}

		select {
		case e.out <- pkt:
			if e.metrics != nil {
				e.metrics.EventsProcessedTotal.WithLabelValues(ironcore.EventTypePacket).Inc()
			}
		default:
			e.logger.Warn("packet event channel full, dropping packet")
			if e.metrics != nil {
				e.metrics.EventsDroppedTotal.WithLabelValues(ironcore.ModuleEBPFEngine, ironcore.EventTypePacket).Inc()
			}
		}
	}
}

// errSourceClosed is returned by a Source's Read after Close, used by
// the run loop to exit quietly during shutdown instead of logging a
// spurious error.
var errSourceClosed = errors.New("ebpfengine: source closed")

func (e *Engine) Stop(ctx context.Context) error {
	if e.State() != ironcore.StateRunning {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.source != nil {
		_ = e.source.Close()
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.setState(ironcore.StateStopped)
	return nil
}

func (e *Engine) HealthCheck(ctx context.Context) ironcore.HealthStatus {
	if !e.cfg.Enabled {
		return ironcore.DegradedHealth("ebpf engine disabled by configuration")
	}
	if e.State() == ironcore.StateFailed {
		return ironcore.Unhealthy("ebpf engine failed to attach to ring buffer")
	}
	return ironcore.Healthy()
}
