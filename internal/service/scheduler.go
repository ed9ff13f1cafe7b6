package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/repository"
)

const workerScheduler = "scheduler"

// ForceReleaser tears down every browser session, tracked or not.
type ForceReleaser interface {
	ForceReleaseAll(ctx context.Context) (int, error)
}

// SchedulerObserver receives scheduler state changes.
type SchedulerObserver interface {
	SetSchedulerRunning(running bool)
	SchedulerCycleCompleted()
}

// SchedulerConfig holds configuration for the round-robin scheduler.
type SchedulerConfig struct {
	// Interval is the idle wait when no account is eligible.
	Interval time.Duration
	// AccountPacing is the wait after every account.
	AccountPacing time.Duration
	StopTimeout   time.Duration
	FetchTimeout  time.Duration
	// MaxItems returns the per-fetch item cap of a provider.
	MaxItems func(domain.Provider) int
	// OnFatal receives persistence failures. The worker exits after calling it.
	OnFatal func(error)
}

// SchedulerStatus is a snapshot of the scheduler state.
type SchedulerStatus struct {
	Running         bool                           `json:"running"`
	PersistedStatus string                         `json:"persisted_status"`
	Cycles          int64                          `json:"cycles"`
	LastCycleAt     *time.Time                     `json:"last_cycle_at,omitempty"`
	CurrentAccount  string                         `json:"current_account,omitempty"`
	Accounts        map[domain.AccountStatus]int64 `json:"accounts"`
}

// Scheduler visits every eligible account in a stable order, forever, until stopped.
// Its running flag is persisted so that a restarted process resumes it.
type Scheduler struct {
	accounts  *repository.AccountRepository
	settings  *repository.SettingRepository
	collector *Collector
	sessions  ForceReleaser
	observer  SchedulerObserver
	cfg       SchedulerConfig
	logger    *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	cycles    atomic.Int64
	lastCycle atomic.Pointer[time.Time]
	current   atomic.Pointer[string]
}

// NewScheduler creates a scheduler.
// Parameters:
//   - accounts: account repository.
//   - settings: setting repository holding the persisted run flag.
//   - collector: shared collection step.
//   - sessions: session manager force-released on Stop.
//   - observer: optional metrics, may be nil.
//   - log: fallback logger.
//   - cfg: pacing, timeouts and item caps.
//
// Returns:
//   - *Scheduler: stopped scheduler.
func NewScheduler(
	accounts *repository.AccountRepository,
	settings *repository.SettingRepository,
	collector *Collector,
	sessions ForceReleaser,
	observer SchedulerObserver,
	log *logger.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.MaxItems == nil {
		cfg.MaxItems = func(domain.Provider) int { return 20 }
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.OnFatal == nil {
		cfg.OnFatal = func(err error) {
			log.WithError(err).Fatal("Scheduler lost its database")
		}
	}
	return &Scheduler{
		accounts:  accounts,
		settings:  settings,
		collector: collector,
		sessions:  sessions,
		observer:  observer,
		cfg:       cfg,
		logger:    log,
	}
}

// Running reports whether the worker loop is active in this process.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start persists the running flag and launches the worker. Starting a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.settings.Set(ctx, domain.SettingSchedulerStatus, domain.SchedulerRunning); err != nil {
		return domain.NewPersistenceError("persist scheduler status", err)
	}

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	if s.observer != nil {
		s.observer.SetSchedulerRunning(true)
	}

	go s.loop(s.stopCh, s.done)

	logger.FromContext(ctx).Info("Scheduler started")
	return nil
}

// Stop signals the worker, force-releases every browser session so an
// in-flight fetch cannot hold the worker, persists the stopped flag and waits
// up to StopTimeout for the worker to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.stop(ctx, true)
}

// Halt stops the worker like Stop but leaves the persisted flag untouched, so
// a scheduler that was running resumes when the process starts again.
func (s *Scheduler) Halt(ctx context.Context) error {
	return s.stop(ctx, false)
}

func (s *Scheduler) stop(ctx context.Context, persist bool) error {
	log := logger.FromContext(ctx)

	s.mu.Lock()
	wasRunning := s.running
	stopCh, done := s.stopCh, s.done
	if wasRunning {
		close(stopCh)
		s.running = false
	}
	s.mu.Unlock()

	if wasRunning {
		if _, err := s.sessions.ForceReleaseAll(ctx); err != nil {
			log.WithError(err).Warn("Force release during scheduler stop failed")
		}
	}

	var persistErr error
	if persist {
		persistErr = s.settings.Set(ctx, domain.SettingSchedulerStatus, domain.SchedulerStopped)
	}
	if s.observer != nil {
		s.observer.SetSchedulerRunning(false)
	}

	if wasRunning {
		select {
		case <-done:
			log.Info("Scheduler stopped")
		case <-time.After(s.cfg.StopTimeout):
			log.WithField("timeout", s.cfg.StopTimeout.String()).Warn("Scheduler worker did not exit in time")
		}
	}

	return domain.NewPersistenceError("persist scheduler status", persistErr)
}

// ResumeIfRunning starts the scheduler when the persisted flag says it was
// running before the process exited.
func (s *Scheduler) ResumeIfRunning(ctx context.Context) (bool, error) {
	status, ok, err := s.settings.Get(ctx, domain.SettingSchedulerStatus)
	if err != nil {
		return false, domain.NewPersistenceError("read scheduler status", err)
	}
	if !ok || status != domain.SchedulerRunning {
		return false, nil
	}
	if err := s.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns the in-process and persisted scheduler state.
func (s *Scheduler) Status(ctx context.Context) (*SchedulerStatus, error) {
	persisted, ok, err := s.settings.Get(ctx, domain.SettingSchedulerStatus)
	if err != nil {
		return nil, domain.NewPersistenceError("read scheduler status", err)
	}
	if !ok {
		persisted = domain.SchedulerStopped
	}

	counts, err := s.accounts.CountByStatus(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("count accounts", err)
	}

	st := &SchedulerStatus{
		Running:         s.Running(),
		PersistedStatus: persisted,
		Cycles:          s.cycles.Load(),
		LastCycleAt:     s.lastCycle.Load(),
		Accounts:        counts,
	}
	if cur := s.current.Load(); cur != nil {
		st.CurrentAccount = *cur
	}
	return st, nil
}

// RunOnce performs one full pass over the eligible accounts in the calling
// goroutine. Returns the number of accounts visited.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.runCycle(ctx, nil)
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx := logger.SetComponent(context.Background(), workerScheduler)
	for {
		if isClosed(stop) {
			return
		}

		visited, err := s.runCycle(ctx, stop)
		if err != nil {
			s.cfg.OnFatal(err)
			return
		}
		pause := s.cfg.AccountPacing
		if visited == 0 {
			pause = s.cfg.Interval
		}
		if !sleep(stop, pause) {
			return
		}
	}
}

// runCycle visits each eligible account once. stop may be nil.
// Only persistence failures are returned; account failures are recorded on
// the account and the cycle moves on.
func (s *Scheduler) runCycle(ctx context.Context, stop <-chan struct{}) (int, error) {
	accounts, err := s.accounts.ListEligible(ctx)
	if err != nil {
		return 0, domain.NewPersistenceError("list eligible accounts", err)
	}
	if len(accounts) == 0 {
		logger.CtxDebug(ctx, "No eligible accounts")
		return 0, nil
	}

	visited := 0
	for i := range accounts {
		if isClosed(stop) {
			return visited, nil
		}

		if err := s.visit(ctx, &accounts[i], stop); err != nil {
			return visited, err
		}
		visited++

		if i < len(accounts)-1 && !sleep(stop, s.cfg.AccountPacing) {
			return visited, nil
		}
	}

	now := time.Now().UTC()
	s.lastCycle.Store(&now)
	s.cycles.Add(1)
	if s.observer != nil {
		s.observer.SchedulerCycleCompleted()
	}
	logger.With(logger.Fields{logger.FieldCount: visited}).Info(ctx, "Scheduler cycle completed")
	return visited, nil
}

func (s *Scheduler) visit(ctx context.Context, account *domain.Account, stop <-chan struct{}) error {
	s.current.Store(&account.URL)
	defer s.current.Store(nil)

	stopping := func() bool { return isClosed(stop) }
	_, err := s.collector.Collect(ctx, CollectRequest{
		Account:  account,
		Limit:    s.cfg.MaxItems(account.Provider),
		Timeout:  s.cfg.FetchTimeout,
		Worker:   workerScheduler,
		Stopping: stopping,
	})
	if domain.IsPersistence(err) {
		return err
	}
	if errors.Is(err, ErrSessionRevoked) || (err != nil && stopping()) {
		// Interrupted by a forced cleanup or Stop; the account is retried on the next run.
		logger.CtxWarn(ctx, "Account check interrupted: %v", err)
		return nil
	}

	if recErr := s.accounts.RecordCheck(ctx, account.ID, err, time.Now().UTC()); recErr != nil {
		return domain.NewPersistenceError("record account check", recErr)
	}
	return nil
}

// isClosed reports whether ch is closed. A nil channel is never closed.
func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// sleep waits for d or until stop is closed. Returns false when stopped.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return !isClosed(stop)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
