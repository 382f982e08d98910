// Package reachability watches whether the finance service can be reached and
// reports it to the mode controller. It never changes the mode itself.
package reachability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/atinyakov/FinKeeper/internal/client/api"
	"go.uber.org/zap"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultInterval  = 30 * time.Second
	DefaultTimeout   = 5 * time.Second
	DefaultThreshold = 3
)

// Prober checks the service liveness endpoint.
type Prober interface {
	Health(ctx context.Context) error
}

// Controller receives reachability events.
type Controller interface {
	NetworkChanged(ctx context.Context, up bool) error
	Escalate(ctx context.Context, reason string) error
	Online() bool
}

// NetworkSignal reports host connectivity transitions. The channel is closed
// when ctx is done.
type NetworkSignal interface {
	Changes(ctx context.Context) <-chan bool
}

// Config tunes a Monitor.
type Config struct {
	Interval  time.Duration
	Timeout   time.Duration
	Threshold int
	Logger    *zap.Logger
}

// Monitor combines the passive network signal with an active heartbeat.
type Monitor struct {
	prober Prober
	ctrl   Controller
	signal NetworkSignal
	cfg    Config
	log    *zap.Logger

	failures atomic.Int32
}

// New returns a Monitor. signal may be nil, in which case only the heartbeat runs.
func New(prober Prober, ctrl Controller, signal NetworkSignal, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Monitor{
		prober: prober,
		ctrl:   ctrl,
		signal: signal,
		cfg:    cfg,
		log:    cfg.Logger,
	}
}

// Failures returns the number of consecutive network-class heartbeat failures.
func (m *Monitor) Failures() int { return int(m.failures.Load()) }

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	var changes <-chan bool
	if m.signal != nil {
		changes = m.signal.Changes(ctx)
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.networkChanged(ctx, up)
		case <-ticker.C:
			if m.ctrl.Online() {
				m.beat(ctx)
			}
		}
	}
}

func (m *Monitor) networkChanged(ctx context.Context, up bool) {
	m.failures.Store(0)
	m.log.Info("network signal changed", zap.Bool("up", up))
	if err := m.ctrl.NetworkChanged(ctx, up); err != nil {
		m.log.Warn("network change handling failed", zap.Bool("up", up), zap.Error(err))
	}
}

// beat runs one heartbeat probe and escalates once the threshold is reached.
func (m *Monitor) beat(ctx context.Context) {
	hctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.prober.Health(hctx)
	cancel()

	switch {
	case err == nil:
		m.failures.Store(0)
		return
	case ctx.Err() != nil:
		return
	case !api.IsNetworkError(err):
		m.log.Warn("heartbeat failed", zap.Error(err))
		return
	}

	n := int(m.failures.Add(1))
	m.log.Debug("heartbeat unreachable", zap.Int("failures", n), zap.Error(err))
	if n < m.cfg.Threshold {
		return
	}
	m.failures.Store(0)
	reason := fmt.Sprintf("server unreachable after %d health checks: %v", n, err)
	if err := m.ctrl.Escalate(ctx, reason); err != nil {
		m.log.Warn("escalation failed", zap.Error(err))
	}
}
