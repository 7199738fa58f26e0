package containerguard

import (
	"context"
	"testing"
	"time"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerclient"
)

func TestDockerMonitor_ExactMatch(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc123"] = dockerclient.ContainerInfo{ID: "abc123", Name: "web-1", Status: "running"}

	m := NewDockerMonitor(fake, time.Minute)
	c, err := m.Lookup(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.Name != "web-1" {
		t.Fatalf("got name %q, want web-1", c.Name)
	}
}

func TestDockerMonitor_UniquePrefixMatch(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abcdef0000"] = dockerclient.ContainerInfo{ID: "abcdef0000", Name: "web-1"}

	m := NewDockerMonitor(fake, time.Minute)
	c, err := m.Lookup(context.Background(), "abcdef")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.ID != "abcdef0000" {
		t.Fatalf("got id %q, want abcdef0000", c.ID)
	}
}

func TestDockerMonitor_AmbiguousPrefixFailsClosed(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc111"] = dockerclient.ContainerInfo{ID: "abc111", Name: "a"}
	fake.Containers["abc222"] = dockerclient.ContainerInfo{ID: "abc222", Name: "b"}

	m := NewDockerMonitor(fake, time.Minute)
	if _, err := m.Lookup(context.Background(), "abc"); err == nil {
		t.Fatal("expected ambiguous prefix to fail closed")
	}
}

func TestDockerMonitor_RejectsInvalidID(t *testing.T) {
	fake := dockerclient.NewFake()
	m := NewDockerMonitor(fake, time.Minute)
	if _, err := m.Lookup(context.Background(), "not valid!"); err == nil {
		t.Fatal("expected invalid id to be rejected")
	}
}
