package connectivity

import (
	"context"
	"log/slog"
	"time"

	"github.com/chukwu07/savings-sensei/internal/remote"
)

// Prober is an Observer driven by periodic health checks against the
// hosted store. It starts offline until the first successful probe.
type Prober struct {
	state    *Manual
	pinger   remote.Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProber creates a Prober polling pinger every interval.
func NewProber(pinger remote.Pinger, interval time.Duration, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := interval / 2
	if timeout <= 0 || timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &Prober{
		state:    NewManual(false),
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "connectivity"),
	}
}

// IsOnline reports the result of the latest probe.
func (p *Prober) IsOnline() bool {
	return p.state.IsOnline()
}

// OnOnline registers fn for offline-to-online transitions.
func (p *Prober) OnOnline(fn func()) func() {
	return p.state.OnOnline(fn)
}

// Probe performs one health check and updates the state.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	online := err == nil
	if was := p.state.IsOnline(); was != online {
		p.logger.Info("connectivity changed",
			"action", "probe",
			"online", online,
			"error", err,
		)
	}
	p.state.SetOnline(online)
	return online
}

// Run probes immediately and then every interval. Blocks until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("prober stopped", "reason", "context_cancelled")
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
