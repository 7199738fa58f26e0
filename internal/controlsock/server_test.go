package controlsock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeProvider struct {
	uptime  time.Duration
	modules []ModuleStatus
}

func (f *fakeProvider) Uptime() time.Duration { return f.uptime }
func (f *fakeProvider) ModuleStatuses(ctx context.Context) []ModuleStatus {
	return f.modules
}

func TestServer_StatusRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "control.sock")

	provider := &fakeProvider{
		uptime: 42 * time.Second,
		modules: []ModuleStatus{
			{Name: "ebpf-engine", State: "running", Healthy: true},
			{Name: "container-guard", State: "running", Healthy: true, Degraded: true, Reason: "docker daemon slow"},
		},
	}
	srv := NewServer(sockPath, provider, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForSocket(t, sockPath)

	resp, err := QueryStatus(sockPath, 2*time.Second)
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected OK response, got %+v", resp)
	}
	if resp.UptimeSecs != 42 {
		t.Fatalf("expected uptime_secs=42, got %v", resp.UptimeSecs)
	}
	if len(resp.Modules) != 2 || resp.Modules[0].Name != "ebpf-engine" {
		t.Fatalf("unexpected modules: %+v", resp.Modules)
	}
	if !resp.Modules[1].Degraded || resp.Modules[1].Reason == "" {
		t.Fatalf("expected second module to report degraded with reason: %+v", resp.Modules[1])
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ListenAndServe returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ListenAndServe to return")
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "control.sock")
	srv := NewServer(sockPath, &fakeProvider{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ListenAndServe(ctx) }()
	waitForSocket(t, sockPath)

	resp := srv.dispatch(Request{Cmd: "bogus"})
	if resp.OK {
		t.Fatalf("expected unknown command to fail, got %+v", resp)
	}
}

func TestServer_RemovesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "control.sock")
	if err := os.WriteFile(sockPath, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seed stale socket file: %v", err)
	}

	srv := NewServer(sockPath, &fakeProvider{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.ListenAndServe(ctx) }()
	waitForSocket(t, sockPath)
	cancel()
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %q never appeared", path)
}
