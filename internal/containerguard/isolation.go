package containerguard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerclient"
	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/observability"
)

// IsolationConfig controls the executor's retry and timeout behavior.
type IsolationConfig struct {
	MaxConcurrentActions int
	MaxRetries           int
	RetryBackoff         time.Duration
	ActionTimeout        time.Duration
	Networks             []string // networks checked by network_disconnect
}

// IsolationExecutor carries out the action a matched Policy prescribes
// against a real container, bounded by a concurrency limiter and a
// fixed linear-backoff retry policy.
type IsolationExecutor struct {
	client  dockerclient.Client
	logger  *zap.Logger
	cfg     IsolationConfig
	limiter *concurrencyLimiter
	metrics *observability.Metrics
}

// WithMetrics attaches a metrics recorder. Optional: a nil or
// never-set recorder means the executor runs without instrumentation.
func (x *IsolationExecutor) WithMetrics(m *observability.Metrics) *IsolationExecutor {
	x.metrics = m
	return x
}

// NewIsolationExecutor returns an executor backed by client.
func NewIsolationExecutor(client dockerclient.Client, logger *zap.Logger, cfg IsolationConfig) *IsolationExecutor {
	return &IsolationExecutor{
		client:  client,
		logger:  logger,
		cfg:     cfg,
		limiter: newConcurrencyLimiter(cfg.MaxConcurrentActions),
	}
}

// Execute runs action against containerID and reports the outcome as an
// ActionEvent. A rejection by the concurrency limiter is reported as a
// failed action rather than silently dropped, so the caller's alert
// isn't lost without a trace.
func (x *IsolationExecutor) Execute(ctx context.Context, action ActionKind, containerID, traceID string) ironcore.ActionEvent {
	actionType := actionTypeName(action)

	if !x.limiter.tryAcquire() {
		x.logger.Warn("isolation action rejected: concurrency limit reached",
			zap.String("container_id", containerID), zap.String("action", string(action)))
		return ironcore.NewActionEvent(actionType, containerID, false, traceID)
	}
	defer x.limiter.release()

	if x.metrics != nil {
		x.metrics.ConcurrentActionsInFlight.Set(float64(x.limiter.inUse()))
		defer x.metrics.ConcurrentActionsInFlight.Set(float64(x.limiter.inUse()))
	}

	start := time.Now()
	success := x.executeWithRetry(ctx, action, containerID)
	if x.metrics != nil {
		x.metrics.IsolationActionDuration.Observe(time.Since(start).Seconds())
		x.metrics.IsolationsExecutedTotal.WithLabelValues(actionType, strconv.FormatBool(success)).Inc()
	}
	return ironcore.NewActionEvent(actionType, containerID, success, traceID)
}

func actionTypeName(action ActionKind) string {
	switch action {
	case ActionPause:
		return ironcore.ActionTypePause
	case ActionStop:
		return ironcore.ActionTypeStop
	case ActionNetworkDisconnect:
		return ironcore.ActionTypeNetworkDisconnect
	default:
		return "container_" + string(action)
	}
}

// executeWithRetry retries the underlying action up to MaxRetries times
// with a fixed linear backoff (attempt * RetryBackoff), giving up and
// reporting failure if every attempt errors or ctx is canceled first.
func (x *IsolationExecutor) executeWithRetry(ctx context.Context, action ActionKind, containerID string) bool {
	for attempt := 0; attempt <= x.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * x.cfg.RetryBackoff):
			case <-ctx.Done():
				return false
			}
		}

		actionCtx, cancel := context.WithTimeout(ctx, x.cfg.ActionTimeout)
		err := x.runOnce(actionCtx, action, containerID)
		cancel()

		if err == nil {
			return true
		}
		x.logger.Warn("isolation action attempt failed",
			zap.String("container_id", containerID), zap.String("action", string(action)),
			zap.Int("attempt", attempt), zap.Error(err))
	}
	return false
}

func (x *IsolationExecutor) runOnce(ctx context.Context, action ActionKind, containerID string) error {
	switch action {
	case ActionPause:
		return x.client.PauseContainer(ctx, containerID)
	case ActionStop:
		return x.client.StopContainer(ctx, containerID)
	case ActionNetworkDisconnect:
		return x.disconnectAllNetworks(ctx, containerID)
	default:
		return fmt.Errorf("containerguard: unknown action %q", action)
	}
}

// disconnectAllNetworks attempts to disconnect containerID from every
// configured network, trying all of them even if an earlier one fails,
// so a single misconfigured network doesn't leave the container
// reachable on the others. Aggregates every failure into one error, if
// any, after every network has been attempted.
func (x *IsolationExecutor) disconnectAllNetworks(ctx context.Context, containerID string) error {
	var errs []error
	for _, network := range x.cfg.Networks {
		if err := x.client.DisconnectNetwork(ctx, network, containerID); err != nil {
			errs = append(errs, err)
			x.logger.Warn("network disconnect failed, continuing to remaining networks",
				zap.String("container_id", containerID), zap.String("network", network), zap.Error(err))
		}
	}
	return errors.Join(errs...)
}
