// Package housekeeping runs the periodic maintenance timer: a database health
// check, rate limiter sweeping and optional access token pruning.
package housekeeping

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Pinger checks a dependency's health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper drops expired in-memory state and reports how much it dropped.
type Sweeper interface {
	Sweep() int
}

// Pruner deletes access tokens expired for longer than retention.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

type Runner struct {
	Logger    *zap.Logger
	Clock     clockwork.Clock
	Interval  time.Duration
	DB        Pinger
	Sweepers  []Sweeper
	Tokens    Pruner
	Retention time.Duration
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ticker := clock.NewTicker(r.Interval)
	defer ticker.Stop()

	r.Logger.Info("housekeeping started", zap.Duration("interval", r.Interval))
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("housekeeping stopped")
			return
		case <-ticker.Chan():
			r.Tick(ctx)
		}
	}
}

// Tick performs one maintenance pass.
func (r *Runner) Tick(ctx context.Context) {
	if r.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.DB.Ping(pingCtx)
		cancel()
		if err != nil {
			r.Logger.Error("health check failed", zap.Error(err))
		} else {
			r.Logger.Debug("health check ok")
		}
	}

	swept := 0
	for _, s := range r.Sweepers {
		swept += s.Sweep()
	}
	if swept > 0 {
		r.Logger.Debug("rate limiter swept", zap.Int("entries", swept))
	}

	if r.Tokens != nil && r.Retention > 0 {
		n, err := r.Tokens.Prune(ctx, r.Retention)
		if err != nil {
			r.Logger.Error("access token prune failed", zap.Error(err))
		} else if n > 0 {
			r.Logger.Info("pruned expired access tokens", zap.Int64("deleted", n))
		}
	}
}
