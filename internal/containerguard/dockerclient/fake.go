package dockerclient

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Client for tests. Zero value is usable; populate
// Containers before use.
type Fake struct {
	mu         sync.Mutex
	Containers map[string]ContainerInfo // keyed by ID
	PingErr    error

	Paused       map[string]bool
	Stopped      map[string]bool
	Disconnected map[string]string // containerID -> networkID

	// DisconnectErrs, keyed by network ID, makes DisconnectNetwork fail
	// for that network while still attempting every other one.
	DisconnectErrs map[string]error
}

func NewFake() *Fake {
	return &Fake{
		Containers:   make(map[string]ContainerInfo),
		Paused:       make(map[string]bool),
		Stopped:      make(map[string]bool),
		Disconnected: make(map[string]string),
	}
}

func (f *Fake) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ContainerInfo, 0, len(f.Containers))
	for _, c := range f.Containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *Fake) InspectContainer(ctx context.Context, id string) (ContainerInfo, error) {
	if err := ValidateID(id); err != nil {
		return ContainerInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Containers[id]
	if !ok {
		return ContainerInfo{}, fmt.Errorf("dockerclient: container %s not found", id)
	}
	return c, nil
}

func (f *Fake) PauseContainer(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Paused[id] = true
	return nil
}

func (f *Fake) UnpauseContainer(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Paused, id)
	return nil
}

func (f *Fake) StopContainer(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped[id] = true
	return nil
}

func (f *Fake) DisconnectNetwork(ctx context.Context, networkID, containerID string) error {
	if err := ValidateID(containerID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnected[containerID] = networkID
	if err, ok := f.DisconnectErrs[networkID]; ok {
		return err
	}
	return nil
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.PingErr
}
