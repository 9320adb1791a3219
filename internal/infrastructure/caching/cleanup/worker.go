// Package cleanup provides the background worker that evicts idle visitor
// engines and purges expired verification and client state rows.
package cleanup

import (
	"context"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
)

// VisitorEvictor drops engines that have been idle longer than maxIdle.
type VisitorEvictor interface {
	EvictIdle(maxIdle time.Duration) int
}

// ExpiredPurger removes expired codes and magic links.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StatePurger removes client state rows not written since cutoff.
type StatePurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Worker handles background cleanup operations. Any dependency may be nil.
type Worker struct {
	visitors VisitorEvictor
	expired  ExpiredPurger
	state    StatePurger
	clock    clock.Clock
	config   *Config
	logger   *logging.ChanneledLogger
	reporter *Reporter
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(visitors VisitorEvictor, expired ExpiredPurger, state StatePurger, clk clock.Clock, config *Config, logger *logging.ChanneledLogger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Worker{
		visitors: visitors,
		expired:  expired,
		state:    state,
		clock:    clk,
		config:   config,
		logger:   logger,
		reporter: NewReporter(nil),
	}
}

// Start begins the cleanup worker routine, using the configured interval.
// It returns when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.System().Info("Cleanup worker started",
		"interval", w.config.CleanupInterval, "visitorIdleTTL", w.config.VisitorIdleTTL, "verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown().Info("Cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Result reports what one cleanup pass removed.
type Result struct {
	Evicted       int
	ExpiredTokens int64
	StaleState    int64
	Duration      time.Duration
}

// RunOnce performs a single cleanup pass.
func (w *Worker) RunOnce(ctx context.Context) Result {
	start := time.Now()
	var res Result

	if w.visitors != nil && w.config.VisitorIdleTTL > 0 {
		res.Evicted = w.visitors.EvictIdle(w.config.VisitorIdleTTL)
	}

	if w.expired != nil {
		n, err := w.expired.PurgeExpired(ctx)
		if err != nil {
			w.logger.System().Error("Failed to purge expired verification tokens", "error", err.Error())
		}
		res.ExpiredTokens = n
	}

	if w.state != nil && w.config.StateRetention > 0 {
		n, err := w.state.PurgeOlderThan(ctx, w.clock.Now().Add(-w.config.StateRetention))
		if err != nil {
			w.logger.System().Error("Failed to purge stale client state", "error", err.Error())
		}
		res.StaleState = n
	}

	res.Duration = time.Since(start)
	total := int64(res.Evicted) + res.ExpiredTokens + res.StaleState
	if total > 0 {
		w.logger.System().Info("Cleanup finished",
			"evictedVisitors", res.Evicted, "expiredTokens", res.ExpiredTokens, "staleState", res.StaleState, "duration", res.Duration)
	}
	if w.config.VerboseReporting {
		w.reporter.Report(res)
	}
	return res
}
