package containerguard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerclient"
	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// maxCachedContainers bounds the monitor's cache so a host running an
// unexpectedly large container count never grows it without limit; past
// the cap, lookups fall back to a direct (uncached) API call.
const maxCachedContainers = 10_000

// DockerMonitor maintains a TTL-gated cache of container listings so the
// policy engine and isolation executor don't issue a full ContainerList
// on every lookup.
type DockerMonitor struct {
	client dockerclient.Client
	ttl    time.Duration

	mu          sync.RWMutex
	byID        map[string]dockerclient.ContainerInfo
	lastRefresh time.Time
}

// NewDockerMonitor returns a monitor backed by client, refreshing its
// cache at most once per ttl.
func NewDockerMonitor(client dockerclient.Client, ttl time.Duration) *DockerMonitor {
	return &DockerMonitor{client: client, ttl: ttl, byID: make(map[string]dockerclient.ContainerInfo)}
}

// refresh repopulates the cache from the Docker API if ttl has elapsed
// since the last refresh. Holds no lock across the API call.
func (m *DockerMonitor) refresh(ctx context.Context) error {
	m.mu.RLock()
	stale := time.Since(m.lastRefresh) >= m.ttl
	m.mu.RUnlock()
	if !stale {
		return nil
	}

	containers, err := m.client.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("containerguard: refresh: %w", err)
	}

	byID := make(map[string]dockerclient.ContainerInfo, len(containers))
	for _, c := range containers {
		if len(byID) >= maxCachedContainers {
			break
		}
		byID[c.ID] = c
	}

	m.mu.Lock()
	m.byID = byID
	m.lastRefresh = time.Now()
	m.mu.Unlock()
	return nil
}

// Lookup resolves id to a ContainerInfo: exact cache match first, then a
// unique-prefix cache match, then a direct (uncached) API call as a
// fallback for an ID the cache hasn't seen yet or evicted past the cap.
// A prefix that matches more than one cached container fails closed
// with a ContainerError rather than guessing.
func (m *DockerMonitor) Lookup(ctx context.Context, id string) (dockerclient.ContainerInfo, error) {
	if err := dockerclient.ValidateID(id); err != nil {
		return dockerclient.ContainerInfo{}, err
	}
	if err := m.refresh(ctx); err != nil {
		return dockerclient.ContainerInfo{}, err
	}

	m.mu.RLock()
	if c, ok := m.byID[id]; ok {
		m.mu.RUnlock()
		return c, nil
	}
	var prefixMatches []dockerclient.ContainerInfo
	for cid, c := range m.byID {
		if strings.HasPrefix(cid, id) {
			prefixMatches = append(prefixMatches, c)
		}
	}
	m.mu.RUnlock()

	switch len(prefixMatches) {
	case 1:
		return prefixMatches[0], nil
	case 0:
		c, err := m.client.InspectContainer(ctx, id)
		if err != nil {
			return dockerclient.ContainerInfo{}, &ironcore.ContainerError{ContainerID: id, NotFound: true}
		}
		return c, nil
	default:
		return dockerclient.ContainerInfo{}, &ironcore.ContainerError{ContainerID: id, Reason: "ambiguous id prefix matches multiple containers"}
	}
}

// List returns every currently cached container, refreshing first if
// the TTL has elapsed.
func (m *DockerMonitor) List(ctx context.Context) ([]dockerclient.ContainerInfo, error) {
	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dockerclient.ContainerInfo, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}
