package logpipeline

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/collector"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/parser"
	"github.com/dongwonkwak/ironpost/internal/observability"
)

// Config is the subset of daemon configuration the log pipeline needs.
type Config struct {
	BufferCapacity int
	OverflowPolicy OverflowPolicy
	Sources        []SourceConfig
}

// fieldProtocol and friends name the synthetic LogEntry fields a
// converted PacketEvent carries, so rules can match network-derived
// detections the same way they match file-tailed log lines.
const (
	fieldProtocol = "protocol"
	fieldSourceIP = "source_ip"
	fieldTargetIP = "target_ip"
	fieldSrcPort  = "src_port"
	fieldDstPort  = "dst_port"
	fieldLength   = "length"
)

// packetToEntry projects a decoded PacketEvent onto a LogEntry using the
// same fixed-then-generic field shape the file-tailed parsers produce,
// so the rule engine can evaluate network-derived detections through the
// identical FieldValue contract (spec: "that path is symmetric").
func packetToEntry(ev ironcore.PacketEvent) ironcore.LogEntry {
	return ironcore.LogEntry{
		Source:    ironcore.ModuleEBPFEngine,
		Timestamp: ev.Meta.Timestamp,
		Message:   ev.String(),
		Fields: []ironcore.Field{
			{Key: fieldProtocol, Value: ev.Packet.Protocol},
			{Key: fieldSourceIP, Value: ev.Packet.SourceIP},
			{Key: fieldTargetIP, Value: ev.Packet.DestIP},
			{Key: fieldSrcPort, Value: strconv.Itoa(int(ev.Packet.SourcePort))},
			{Key: fieldDstPort, Value: strconv.Itoa(int(ev.Packet.DestPort))},
			{Key: fieldLength, Value: strconv.Itoa(ev.Packet.Length)},
		},
	}
}

// SourceConfig names one file to tail and the format to parse it with.
type SourceConfig struct {
	Path   string
	Format parser.Format
}

// Pipeline runs one collector per configured source, buffers their
// output, parses each line, and forwards the resulting LogEvents to
// the rule engine. Implements ironcore.Plugin.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
	out    chan<- ironcore.LogEvent

	buffer     *Buffer
	collectors []collector.Collector
	lines      chan collector.Line
	packetIn   <-chan ironcore.PacketEvent
	metrics    *observability.Metrics

	state   ironcore.PluginState
	stateMu sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// New constructs a Pipeline. Collectors are built from cfg.Sources
// during Init.
func New(cfg Config, logger *zap.Logger, out chan<- ironcore.LogEvent) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger, out: out, state: ironcore.StateCreated}
}

// WithPacketSource attaches the eBPF engine's PacketEvent stream so the
// pipeline also evaluates network-derived detections, the symmetric path
// the spec describes alongside file-tailed log sources. Optional: a nil
// or never-set channel means the pipeline only ever sees tailed logs.
func (p *Pipeline) WithPacketSource(in <-chan ironcore.PacketEvent) *Pipeline {
	p.packetIn = in
	return p
}

// WithMetrics attaches a metrics recorder. Optional: a nil or
// never-set recorder means the pipeline runs without instrumentation.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

func (p *Pipeline) Info() ironcore.PluginInfo {
	return ironcore.PluginInfo{Name: ironcore.ModuleLogPipeline, Description: "collects, buffers, and parses log sources into rule-engine input"}
}

func (p *Pipeline) State() ironcore.PluginState {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s ironcore.PluginState) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

func (p *Pipeline) Init(ctx context.Context) error {
	p.buffer = NewBuffer(p.cfg.BufferCapacity, p.cfg.OverflowPolicy)
	p.lines = make(chan collector.Line, p.cfg.BufferCapacity)

	for _, src := range p.cfg.Sources {
		p.collectors = append(p.collectors, &collector.FileTail{Path: src.Path, Format: src.Format})
	}
	p.setState(ironcore.StateInitialized)
	return nil
}

func (p *Pipeline) Start(ctx context.Context) error {
	if p.State() == ironcore.StateRunning {
		return ironcore.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	for _, c := range p.collectors {
		p.wg.Add(1)
		go func(c collector.Collector) {
			defer p.wg.Done()
			if err := c.Run(runCtx, p.lines); err != nil {
				p.logger.Warn("collector exited with error", zap.Error(err))
			}
		}(c)
	}

	p.wg.Add(1)
	go p.drainAndParse(runCtx)

	if p.packetIn != nil {
		p.wg.Add(1)
		go p.drainPackets(runCtx)
	}

	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	p.setState(ironcore.StateRunning)
	return nil
}

// drainAndParse moves lines from the collector fan-in channel through
// the bounded buffer and the format parser, emitting one LogEvent per
// successfully parsed line onto out.
func (p *Pipeline) drainAndParse(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-p.lines:
			if !ok {
				return
			}
			entry, err := parser.Parse(line.Format, line.Source, line.Raw)
			if err != nil {
				p.logger.Warn("log line parse error", zap.String("source", line.Source), zap.Error(err))
				if p.metrics != nil {
					p.metrics.LogParseErrorsTotal.WithLabelValues(string(line.Format)).Inc()
				}
				continue
			}
			if p.metrics != nil {
				p.metrics.LogEntriesParsedTotal.WithLabelValues(string(line.Format)).Inc()
			}
			p.pushAndEmit(entry, line.Source)
		}
	}
}

// drainPackets converts each inbound PacketEvent into a LogEntry and
// pushes it through the same bounded buffer and emission path as
// file-tailed lines, so a single set of detection rules covers both.
func (p *Pipeline) drainPackets(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.packetIn:
			if !ok {
				return
			}
			p.pushAndEmit(packetToEntry(ev), ironcore.ModuleEBPFEngine)
		}
	}
}

// pushAndEmit pushes entry through the bounded buffer and, if accepted,
// pops the oldest queued entry and emits it as a LogEvent. source is
// used only for warning logs.
func (p *Pipeline) pushAndEmit(entry ironcore.LogEntry, source string) {
	droppedBefore := p.buffer.DroppedTotal()
	accepted := p.buffer.Push(entry)
	if p.metrics != nil {
		if dropped := p.buffer.DroppedTotal() - droppedBefore; dropped > 0 {
			p.metrics.LogBufferDroppedTotal.Add(float64(dropped))
		}
		p.metrics.LogBufferDepth.Set(float64(p.buffer.Len()))
	}
	if !accepted {
		p.logger.Warn("log buffer full, entry rejected", zap.String("source", source))
		return
	}
	buffered, ok := p.buffer.Pop()
	if !ok {
		return
	}
	if p.metrics != nil {
		p.metrics.LogBufferDepth.Set(float64(p.buffer.Len()))
	}
	event := ironcore.NewLogEvent(ironcore.ModuleLogPipeline, buffered)
	select {
	case p.out <- event:
		if p.metrics != nil {
			p.metrics.EventsProcessedTotal.WithLabelValues(ironcore.EventTypeLog).Inc()
		}
	default:
		p.logger.Warn("log event channel full, dropping event")
		if p.metrics != nil {
			p.metrics.EventsDroppedTotal.WithLabelValues(ironcore.ModuleLogPipeline, ironcore.EventTypeLog).Inc()
		}
	}
}

func (p *Pipeline) Stop(ctx context.Context) error {
	if p.State() != ironcore.StateRunning {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.setState(ironcore.StateStopped)
	return nil
}

func (p *Pipeline) HealthCheck(ctx context.Context) ironcore.HealthStatus {
	if p.State() == ironcore.StateFailed {
		return ironcore.Unhealthy("log pipeline failed to initialize")
	}
	if p.buffer != nil && p.buffer.DroppedTotal() > 0 {
		return ironcore.DegradedHealth("log buffer has dropped entries")
	}
	return ironcore.Healthy()
}
