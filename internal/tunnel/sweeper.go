package tunnel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
)

// Sweeper runs the registry health sweep on a fixed interval. Ticks that
// land while a sweep is still running are skipped rather than queued.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	logger   *logging.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(registry *Registry, interval time.Duration, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep task in the background.
func (sw *Sweeper) Start() {
	go sw.runPeriodically()
}

// Stop halts future sweeps. A sweep already in flight finishes on its own.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() { close(sw.stop) })
}

func (sw *Sweeper) runPeriodically() {
	// Run once at startup, then on every tick.
	sw.runOnce()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.runOnce()
		case <-sw.stop:
			return
		}
	}
}

// runOnce performs a single sweep unless one is already in progress.
func (sw *Sweeper) runOnce() {
	if !sw.running.CompareAndSwap(false, true) {
		sw.logger.Warn("Health sweep still running, skipping this tick")
		return
	}
	defer sw.running.Store(false)

	result := sw.registry.Sweep()
	if result.Removed > 0 {
		sw.logger.Info("Health sweep removed %d of %d sessions (%d remain)",
			result.Removed, result.Before, result.After)
	}
}
