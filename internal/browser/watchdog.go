package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/timmy/linkwatch/internal/logger"
)

// Watchdog periodically looks for browser processes that no tracked session
// owns and force-releases everything when it finds any.
type Watchdog struct {
	mgr     *Manager
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

// NewWatchdog schedules orphan checks on spec (a cron expression or "@every 1m").
func NewWatchdog(mgr *Manager, spec string) (*Watchdog, error) {
	w := &Watchdog{
		mgr:     mgr,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: 30 * time.Second,
	}
	if _, err := w.cron.AddFunc(spec, w.run); err != nil {
		return nil, fmt.Errorf("invalid watchdog schedule %q: %w", spec, err)
	}
	return w, nil
}

// Start begins running scheduled checks in the background.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.cron.Start()
}

// Stop halts scheduling and waits for a running check to finish.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()
	<-w.cron.Stop().Done()
}

func (w *Watchdog) run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	ctx = logger.SetComponent(ctx, "browser-watchdog")

	if _, err := w.Check(ctx); err != nil {
		logger.CtxError(ctx, "Watchdog check failed: %v", err)
	}
}

// Check compares discovered browser processes with tracked sessions and calls
// ForceReleaseAll when untracked ones exist. Returns the number of orphans seen.
func (w *Watchdog) Check(ctx context.Context) (int, error) {
	orphans, err := w.mgr.Orphans(ctx)
	if err != nil {
		return 0, err
	}
	if orphans == 0 {
		return 0, nil
	}

	logger.CtxWarn(ctx, "Found %d orphaned browser processes, tracked sessions: %d", orphans, w.mgr.Outstanding())
	if _, err := w.mgr.ForceReleaseAll(ctx); err != nil {
		return orphans, err
	}
	return orphans, nil
}
