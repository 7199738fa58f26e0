package ironcore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Module name constants used as EventMetadata.SourceModule. Kept as
// constants (not free-form strings) so every producer agrees on the
// label used in logs and metric attribution.
const (
	ModuleEBPFEngine     = "ebpf-engine"
	ModuleLogPipeline    = "log-pipeline"
	ModuleRuleEngine     = "rule-engine"
	ModuleContainerGuard = "container-guard"
	ModuleSBOMScanner    = "sbom-scanner"
	ModuleOrchestrator   = "orchestrator"
)

// Event type discriminants, used for logging and for any consumer that
// needs to branch on payload kind without a type switch.
const (
	EventTypePacket = "packet"
	EventTypeLog    = "log"
	EventTypeAlert  = "alert"
	EventTypeAction = "action"
)

// EventMetadata is the envelope every inter-module message carries
// alongside its payload.
type EventMetadata struct {
	Timestamp    time.Time
	SourceModule string
	TraceID      string
}

// NewMetadata builds metadata that propagates an existing trace_id —
// used by every module except the one that originates a causal chain.
func NewMetadata(sourceModule, traceID string) EventMetadata {
	return EventMetadata{
		Timestamp:    time.Now(),
		SourceModule: sourceModule,
		TraceID:      traceID,
	}
}

// NewMetadataWithTrace mints a fresh trace_id — used only by the module
// that originates a causal chain (e.g. the eBPF engine for a packet, or
// the SBOM scanner for a scan-triggered alert with no upstream event).
func NewMetadataWithTrace(sourceModule string) EventMetadata {
	return NewMetadata(sourceModule, uuid.NewString())
}

func (m EventMetadata) String() string {
	return fmt.Sprintf("%s@%s trace=%s", m.SourceModule, m.Timestamp.Format(time.RFC3339Nano), m.TraceID)
}

// Event is the capability every payload type implements so the bus and
// logging code can treat them uniformly without a type switch.
type Event interface {
	EventID() string
	Metadata() EventMetadata
	EventType() string
	fmt.Stringer
}

// PacketInfo is the narrow, already-decoded view of a captured packet
// the ebpf-engine external collaborator hands to the log pipeline.
type PacketInfo struct {
	Protocol  string // one of {tcp, udp, icmp, other} — closed label domain
	SourceIP  string
	DestIP    string
	SourcePort uint16
	DestPort   uint16
	Length     int
}

// PacketEvent carries a decoded packet plus its raw bytes for downstream
// protocol-specific inspection.
type PacketEvent struct {
	ID       string
	Meta     EventMetadata
	Packet   PacketInfo
	RawBytes []byte
}

func NewPacketEvent(packet PacketInfo, raw []byte) PacketEvent {
	return PacketEvent{ID: uuid.NewString(), Meta: NewMetadataWithTrace(ModuleEBPFEngine), Packet: packet, RawBytes: raw}
}

func (e PacketEvent) EventID() string          { return e.ID }
func (e PacketEvent) Metadata() EventMetadata   { return e.Meta }
func (e PacketEvent) EventType() string         { return EventTypePacket }
func (e PacketEvent) String() string {
	return fmt.Sprintf("PacketEvent[%s] %s %s:%d -> %s:%d (%d bytes)",
		shortID(e.ID), e.Packet.Protocol, e.Packet.SourceIP, e.Packet.SourcePort,
		e.Packet.DestIP, e.Packet.DestPort, e.Packet.Length)
}

// LogEvent carries one parsed LogEntry from collector/parser to the rule
// engine.
type LogEvent struct {
	ID    string
	Meta  EventMetadata
	Entry LogEntry
}

func NewLogEvent(sourceModule string, entry LogEntry) LogEvent {
	return LogEvent{ID: uuid.NewString(), Meta: NewMetadataWithTrace(sourceModule), Entry: entry}
}

func (e LogEvent) EventID() string        { return e.ID }
func (e LogEvent) Metadata() EventMetadata { return e.Meta }
func (e LogEvent) EventType() string       { return EventTypeLog }
func (e LogEvent) String() string {
	return fmt.Sprintf("LogEvent[%s] host=%s process=%s msg=%q", shortID(e.ID), e.Entry.Hostname, e.Entry.Process, e.Entry.Message)
}

// AlertEvent is raised by the rule engine or the SBOM scanner and
// consumed by the container guard.
type AlertEvent struct {
	ID       string
	Meta     EventMetadata
	Alert    Alert
	Severity Severity
}

// NewAlertEvent mints a fresh trace_id — used when the alert has no
// upstream event to propagate from (e.g. an SBOM finding).
func NewAlertEvent(sourceModule string, alert Alert, severity Severity) AlertEvent {
	return AlertEvent{ID: uuid.NewString(), Meta: NewMetadataWithTrace(sourceModule), Alert: alert, Severity: severity}
}

// NewAlertEventWithTrace propagates an existing trace_id from the
// upstream LogEvent/PacketEvent that caused this alert.
func NewAlertEventWithTrace(sourceModule, traceID string, alert Alert, severity Severity) AlertEvent {
	return AlertEvent{ID: uuid.NewString(), Meta: NewMetadata(sourceModule, traceID), Alert: alert, Severity: severity}
}

func (e AlertEvent) EventID() string        { return e.ID }
func (e AlertEvent) Metadata() EventMetadata { return e.Meta }
func (e AlertEvent) EventType() string       { return EventTypeAlert }
func (e AlertEvent) String() string {
	return fmt.Sprintf("AlertEvent[%s] rule=%s severity=%s title=%q", shortID(e.ID), e.Alert.RuleName, e.Severity, e.Alert.Title)
}

// ActionEvent.ActionType MUST be one of these three fixed strings; never
// embed a network list or container ID to keep metric-label cardinality
// closed.
const (
	ActionTypePause             = "container_pause"
	ActionTypeStop              = "container_stop"
	ActionTypeNetworkDisconnect = "container_network_disconnect"
)

// ActionEvent reports the outcome of one isolation action, regardless of
// success.
type ActionEvent struct {
	ID         string
	Meta       EventMetadata
	ActionType string
	Target     string // container ID
	Success    bool
}

func NewActionEvent(actionType, target string, success bool, traceID string) ActionEvent {
	return ActionEvent{
		ID:         uuid.NewString(),
		Meta:       NewMetadata(ModuleContainerGuard, traceID),
		ActionType: actionType,
		Target:     target,
		Success:    success,
	}
}

func (e ActionEvent) EventID() string        { return e.ID }
func (e ActionEvent) Metadata() EventMetadata { return e.Meta }
func (e ActionEvent) EventType() string       { return EventTypeAction }
func (e ActionEvent) String() string {
	status := "FAILED"
	if e.Success {
		status = "OK"
	}
	return fmt.Sprintf("ActionEvent[%s] type=%s target=%s status=%s", shortID(e.ID), e.ActionType, e.Target, status)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
