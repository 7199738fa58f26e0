package ironcore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// fakePlugin is a minimal Plugin whose Init/Start/Stop behavior is
// scripted per-test.
type fakePlugin struct {
	name       string
	state      ironcore.PluginState
	failInit   bool
	failStart  bool
	failStop   bool
	startCalls int
	stopCalls  int
}

func (f *fakePlugin) Info() ironcore.PluginInfo {
	return ironcore.PluginInfo{Name: f.name}
}
func (f *fakePlugin) State() ironcore.PluginState { return f.state }
func (f *fakePlugin) Init(ctx context.Context) error {
	if f.failInit {
		f.state = ironcore.StateFailed
		return errors.New("init failed")
	}
	f.state = ironcore.StateInitialized
	return nil
}
func (f *fakePlugin) Start(ctx context.Context) error {
	f.startCalls++
	if f.failStart {
		f.state = ironcore.StateFailed
		return errors.New("start failed")
	}
	f.state = ironcore.StateRunning
	return nil
}
func (f *fakePlugin) Stop(ctx context.Context) error {
	f.stopCalls++
	if f.failStop {
		return errors.New("stop failed")
	}
	f.state = ironcore.StateStopped
	return nil
}
func (f *fakePlugin) HealthCheck(ctx context.Context) ironcore.HealthStatus {
	return ironcore.Healthy()
}

func TestRegister_DuplicateNameFails(t *testing.T) {
	r := ironcore.NewRegistry()
	if err := r.Register("a", &fakePlugin{name: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register("a", &fakePlugin{name: "a"})
	if err == nil {
		t.Fatal("expected AlreadyRegistered error, got nil")
	}
}

func TestInitAll_StartAll_FailFast(t *testing.T) {
	r := ironcore.NewRegistry()
	p1 := &fakePlugin{name: "p1"}
	p2 := &fakePlugin{name: "p2", failStart: true}
	p3 := &fakePlugin{name: "p3"}
	for _, p := range []*fakePlugin{p1, p2, p3} {
		if err := r.Register(p.name, p); err != nil {
			t.Fatalf("register %s: %v", p.name, err)
		}
	}

	ctx := context.Background()
	if err := r.InitAll(ctx); err != nil {
		t.Fatalf("init_all: %v", err)
	}
	if p1.state != ironcore.StateInitialized || p2.state != ironcore.StateInitialized || p3.state != ironcore.StateInitialized {
		t.Fatal("expected all modules initialized")
	}

	if err := r.StartAll(ctx); err == nil {
		t.Fatal("expected start_all to fail on p2")
	}

	// Scenario 8: third module's start is never called, state unchanged.
	if p3.startCalls != 0 {
		t.Errorf("p3.Start called %d times, want 0", p3.startCalls)
	}
	if p3.state != ironcore.StateInitialized {
		t.Errorf("p3 state = %s, want initialized", p3.state)
	}

	// Roll back via stop_all: p1 (started) gets stopped.
	if err := r.StopAll(ctx); err != nil {
		t.Fatalf("stop_all after rollback: %v", err)
	}
	if p1.stopCalls != 1 {
		t.Errorf("p1.Stop called %d times, want 1", p1.stopCalls)
	}
}

func TestStopAll_ResilientAggregatesErrors(t *testing.T) {
	r := ironcore.NewRegistry()
	p1 := &fakePlugin{name: "p1"}
	p2 := &fakePlugin{name: "p2", failStop: true}
	p3 := &fakePlugin{name: "p3"}
	for _, p := range []*fakePlugin{p1, p2, p3} {
		_ = r.Register(p.name, p)
	}

	ctx := context.Background()
	_ = r.InitAll(ctx)
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("start_all: %v", err)
	}

	err := r.StopAll(ctx)
	if err == nil {
		t.Fatal("expected aggregated error naming p2")
	}
	if p1.stopCalls != 1 || p2.stopCalls != 1 || p3.stopCalls != 1 {
		t.Fatal("expected every module's Stop to be attempted despite p2 failing")
	}
	if p1.state != ironcore.StateStopped || p3.state != ironcore.StateStopped {
		t.Fatal("expected non-failing modules to reach Stopped")
	}
}

func TestLookup_And_Unregister(t *testing.T) {
	r := ironcore.NewRegistry()
	p := &fakePlugin{name: "solo"}
	_ = r.Register("solo", p)

	if _, ok := r.Lookup("solo"); !ok {
		t.Fatal("expected to find registered plugin")
	}
	r.Unregister("solo")
	if _, ok := r.Lookup("solo"); ok {
		t.Fatal("expected plugin to be gone after unregister")
	}
	// Unregistering a missing name is a no-op, not an error.
	r.Unregister("missing")
}
