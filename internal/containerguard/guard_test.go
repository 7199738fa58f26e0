package containerguard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerclient"
	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

func writeTestPolicy(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")
	content := `
[[policy]]
name = "pause-on-high"
priority = 1
action = "pause"
min_severity = "high"
[policy.target]
name_patterns = ["*"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestGuard_EndToEnd_AlertTriggersAction(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc123"] = dockerclient.ContainerInfo{ID: "abc123", Name: "web-1", Image: "nginx:latest", Status: "running"}

	in := make(chan ironcore.AlertEvent, 1)
	out := make(chan ironcore.ActionEvent, 1)

	cfg := Config{
		Enabled:    true,
		PolicyPath: writeTestPolicy(t),
		MonitorTTL: time.Minute,
		Isolation: IsolationConfig{
			MaxConcurrentActions: 2,
			ActionTimeout:        time.Second,
			RetryBackoff:         time.Millisecond,
		},
	}
	g := New(cfg, zap.NewNop(), fake, in, out)

	ctx := context.Background()
	if err := g.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	alert := ironcore.Alert{Title: "test alert"}
	in <- ironcore.NewAlertEvent(ironcore.ModuleEBPFEngine, alert, ironcore.SeverityHigh)

	select {
	case ev := <-out:
		if !ev.Success || ev.ActionType != ironcore.ActionTypePause || ev.Target != "abc123" {
			t.Fatalf("unexpected action event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action event")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := g.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGuard_EndToEnd_AlertActsOnEveryMatchingContainer(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc123"] = dockerclient.ContainerInfo{ID: "abc123", Name: "web-1", Image: "nginx:latest", Status: "running"}
	fake.Containers["def456"] = dockerclient.ContainerInfo{ID: "def456", Name: "web-2", Image: "nginx:latest", Status: "running"}

	in := make(chan ironcore.AlertEvent, 1)
	out := make(chan ironcore.ActionEvent, 2)

	cfg := Config{
		Enabled:    true,
		PolicyPath: writeTestPolicy(t),
		MonitorTTL: time.Minute,
		Isolation: IsolationConfig{
			MaxConcurrentActions: 2,
			ActionTimeout:        time.Second,
			RetryBackoff:         time.Millisecond,
		},
	}
	g := New(cfg, zap.NewNop(), fake, in, out)

	ctx := context.Background()
	if err := g.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	in <- ironcore.NewAlertEvent(ironcore.ModuleEBPFEngine, ironcore.Alert{Title: "test alert"}, ironcore.SeverityHigh)

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-out:
			seen[ev.Target] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for action events")
		}
	}
	if !seen["abc123"] || !seen["def456"] {
		t.Fatalf("expected an action for every matching container, got %v", seen)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := g.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGuard_Disabled_DrainsWithoutAction(t *testing.T) {
	in := make(chan ironcore.AlertEvent, 1)
	out := make(chan ironcore.ActionEvent, 1)
	g := New(Config{Enabled: false}, zap.NewNop(), nil, in, out)

	ctx := context.Background()
	if err := g.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	in <- ironcore.NewAlertEvent(ironcore.ModuleEBPFEngine, ironcore.Alert{}, ironcore.SeverityCritical)

	select {
	case ev := <-out:
		t.Fatalf("expected no action event from a disabled guard, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := g.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	health := g.HealthCheck(ctx)
	if !health.Degraded {
		t.Fatal("expected disabled guard health to report degraded")
	}
}
