package containerguard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerclient"
	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

func testExecutor(client dockerclient.Client, cfg IsolationConfig) *IsolationExecutor {
	if cfg.MaxConcurrentActions == 0 {
		cfg.MaxConcurrentActions = 4
	}
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	return NewIsolationExecutor(client, zap.NewNop(), cfg)
}

func TestExecute_Pause(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc123"] = dockerclient.ContainerInfo{ID: "abc123"}
	x := testExecutor(fake, IsolationConfig{})

	ev := x.Execute(context.Background(), ActionPause, "abc123", "trace-1")
	if !ev.Success {
		t.Fatal("expected pause to succeed")
	}
	if ev.ActionType != ironcore.ActionTypePause {
		t.Fatalf("got action type %q", ev.ActionType)
	}
	if !fake.Paused["abc123"] {
		t.Fatal("expected container to be marked paused")
	}
}

func TestExecute_NetworkDisconnect_TriesAllNetworksDespitePartialFailure(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc123"] = dockerclient.ContainerInfo{ID: "abc123"}
	fake.DisconnectErrs = map[string]error{"net-a": errors.New("net-a unreachable")}
	x := testExecutor(fake, IsolationConfig{Networks: []string{"net-a", "net-b"}, MaxRetries: 0})

	ev := x.Execute(context.Background(), ActionNetworkDisconnect, "abc123", "trace-1")
	if ev.Success {
		t.Fatal("expected disconnect to fail when one of its networks fails")
	}
	if fake.Disconnected["abc123"] != "net-b" {
		t.Fatalf("expected net-b to be attempted after net-a failed, got %q", fake.Disconnected["abc123"])
	}
}

func TestExecute_NetworkDisconnect_AggregatesEveryFailure(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc123"] = dockerclient.ContainerInfo{ID: "abc123"}
	fake.DisconnectErrs = map[string]error{
		"net-a": errors.New("net-a unreachable"),
		"net-b": errors.New("net-b unreachable"),
	}
	x := testExecutor(fake, IsolationConfig{Networks: []string{"net-a", "net-b"}, MaxRetries: 0})

	err := x.disconnectAllNetworks(context.Background(), "abc123")
	if err == nil {
		t.Fatal("expected an aggregated error when every network disconnect fails")
	}
	msg := err.Error()
	if !strings.Contains(msg, "net-a unreachable") || !strings.Contains(msg, "net-b unreachable") {
		t.Fatalf("expected both network failures in the aggregated error, got %q", msg)
	}
}

func TestExecute_ConcurrencyLimitRejectsOverCapacity(t *testing.T) {
	fake := dockerclient.NewFake()
	fake.Containers["abc123"] = dockerclient.ContainerInfo{ID: "abc123"}
	limiter := newConcurrencyLimiter(1)

	if !limiter.tryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}
	if limiter.tryAcquire() {
		t.Fatal("expected second acquire to be rejected at capacity 1")
	}
	limiter.release()
	if !limiter.tryAcquire() {
		t.Fatal("expected acquire to succeed again after release")
	}
}

func TestActionTypeName_FixedStrings(t *testing.T) {
	cases := map[ActionKind]string{
		ActionPause:             ironcore.ActionTypePause,
		ActionStop:              ironcore.ActionTypeStop,
		ActionNetworkDisconnect: ironcore.ActionTypeNetworkDisconnect,
	}
	for action, want := range cases {
		if got := actionTypeName(action); got != want {
			t.Errorf("actionTypeName(%s) = %s, want %s", action, got, want)
		}
	}
}
