package ironcore

import (
	"context"
	"errors"
	"fmt"
)

// Registry stores plugins in registration order and drives lifecycle
// transitions uniformly across all of them. n is expected to be small
// (tens of modules), so lookups are plain linear scans rather than a
// map — that also makes iteration order (registration order) free.
type Registry struct {
	names   []string
	plugins []Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a plugin under name, in registration order. Returns
// ErrAlreadyRegistered if name is already taken.
func (r *Registry) Register(name string, p Plugin) error {
	for _, n := range r.names {
		if n == name {
			return ErrAlreadyRegistered(name)
		}
	}
	r.names = append(r.names, name)
	r.plugins = append(r.plugins, p)
	return nil
}

// Unregister removes a plugin by name. No-op (no error) if the name is
// not present.
func (r *Registry) Unregister(name string) {
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
			return
		}
	}
}

// Lookup returns the plugin registered under name, if any.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	for i, n := range r.names {
		if n == name {
			return r.plugins[i], true
		}
	}
	return nil, false
}

// Names returns the registration-order list of plugin names. Used by the
// CLI's `status` subcommand to render per-module state in a stable order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// InitAll calls Init on every plugin in registration order. Fail-fast:
// the first error stops the pass and is returned immediately, naming the
// module that failed. Earlier plugins remain in whatever state their own
// Init left them; the caller is expected to call StopAll to roll back.
func (r *Registry) InitAll(ctx context.Context) error {
	for i, p := range r.plugins {
		if err := p.Init(ctx); err != nil {
			return fmt.Errorf("init %s: %w", r.names[i], err)
		}
	}
	return nil
}

// StartAll calls Start on every plugin in registration order. Fail-fast,
// same contract as InitAll.
func (r *Registry) StartAll(ctx context.Context) error {
	for i, p := range r.plugins {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", r.names[i], err)
		}
	}
	return nil
}

// StopAll calls Stop on every plugin in registration order — the same
// order as startup, so producers stop emitting before their consumers
// exit and drain. Unlike InitAll/StartAll, StopAll is resilient: every
// plugin is given a chance to stop regardless of earlier failures, and
// all per-module errors are joined into one returned error naming every
// failing module. Returns nil if every plugin stopped cleanly.
func (r *Registry) StopAll(ctx context.Context) error {
	var errs []error
	for i, p := range r.plugins {
		if err := p.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", r.names[i], err))
		}
	}
	return errors.Join(errs...)
}

// HealthAll returns the health status of every registered plugin, keyed
// by name. The map carries no order; Names gives registration order.
func (r *Registry) HealthAll(ctx context.Context) map[string]HealthStatus {
	out := make(map[string]HealthStatus, len(r.names))
	for i, p := range r.plugins {
		out[r.names[i]] = p.HealthCheck(ctx)
	}
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int { return len(r.plugins) }
