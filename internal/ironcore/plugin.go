package ironcore

import (
	"context"
	"fmt"
)

// PluginState is a module's position in the Created -> Initialized ->
// Running -> Stopped machine. Failed is reachable from any state.
type PluginState uint8

const (
	StateCreated PluginState = iota
	StateInitialized
	StateRunning
	StateStopped
	StateFailed
)

func (s PluginState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// HealthStatus is the result of a plugin's HealthCheck. Healthy carries
// no detail; Unhealthy carries the failure reason, and Degraded the
// reason an essential external dependency is unreachable.
type HealthStatus struct {
	Healthy bool
	Degraded bool
	Reason   string
}

func Healthy() HealthStatus   { return HealthStatus{Healthy: true} }
func Unhealthy(reason string) HealthStatus { return HealthStatus{Reason: reason} }
func DegradedHealth(reason string) HealthStatus {
	return HealthStatus{Healthy: true, Degraded: true, Reason: reason}
}

func (h HealthStatus) String() string {
	switch {
	case h.Degraded:
		return fmt.Sprintf("degraded: %s", h.Reason)
	case h.Healthy:
		return "healthy"
	default:
		return fmt.Sprintf("unhealthy: %s", h.Reason)
	}
}

// PluginInfo is static identifying metadata a module reports.
type PluginInfo struct {
	Name        string
	Description string
}

// Plugin is the capability set every orchestrated module implements.
// The registry holds a heterogeneous, ordered sequence of these behind
// this single interface — ironpost's equivalent of a vtable over owned
// trait objects.
type Plugin interface {
	Info() PluginInfo
	State() PluginState
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck(ctx context.Context) HealthStatus
}
