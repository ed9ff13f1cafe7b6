// Package browser owns the lifecycle of headless browser sessions.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/logger"
)

// SessionDirPrefix marks the user-data directories of sessions started by this
// service, which is how their processes are found again after a crash.
const SessionDirPrefix = "linkwatch-session-"

// Observer is notified of session lifecycle events.
type Observer interface {
	SessionOpened(strategy string)
	SessionClosed()
	LaunchFailed(strategy string)
	ProcessesReaped(n int)
}

// Session is an acquired browser session.
type Session struct {
	ID       string
	Strategy string
	Dir      string

	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	revoked atomic.Bool
}

// Context returns the context that drives the session's browser. It is
// cancelled when the session is released.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Revoked reports whether the session was torn down by ForceReleaseAll while
// still in use. Work failing on a revoked session says nothing about the
// credential that was used with it.
func (s *Session) Revoked() bool {
	return s.revoked.Load()
}

// Manager creates and tracks browser sessions.
type Manager struct {
	launcher   Launcher
	strategies []Strategy
	root       string
	reaper     Reaper
	observer   Observer

	mu       sync.Mutex
	sessions map[string]*Session
	// launching holds ids whose browser is starting but not yet tracked.
	launching map[string]struct{}
	// generation changes at the start and end of every ForceReleaseAll.
	generation uint64
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Launcher   Launcher
	Strategies []Strategy
	// SessionRoot is the directory under which per-session user-data dirs are created.
	SessionRoot string
	Reaper      Reaper
	Observer    Observer
}

// NewManager creates a session manager.
// Parameters:
//   - cfg: launcher, strategies, session root and optional reaper/observer.
// Returns:
//   - *Manager: initialized manager.
//   - error: non-nil if the session root cannot be prepared.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	root, err := filepath.Abs(cfg.SessionRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("at least one launch strategy is required")
	}
	return &Manager{
		launcher:   cfg.Launcher,
		strategies: cfg.Strategies,
		root:       root,
		reaper:     cfg.Reaper,
		observer:   cfg.Observer,
		sessions:   make(map[string]*Session),
		launching:  make(map[string]struct{}),
	}, nil
}

// Root returns the absolute session root.
func (m *Manager) Root() string {
	return m.root
}

// Acquire starts a browser session, trying each strategy in order.
// Returns *domain.ResourceCreationError when every strategy fails.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	failure := &domain.ResourceCreationError{}

	for _, strategy := range m.strategies {
		if err := ctx.Err(); err != nil {
			failure.Attempts = append(failure.Attempts, domain.StrategyFailure{Strategy: strategy.Name, Err: err})
			break
		}

		id := uuid.New().String()
		dir := filepath.Join(m.root, SessionDirPrefix+id)
		generation := m.beginLaunch(id)
		if err := os.MkdirAll(dir, 0700); err != nil {
			m.endLaunch(id)
			failure.Attempts = append(failure.Attempts, domain.StrategyFailure{Strategy: strategy.Name, Err: err})
			continue
		}

		browserCtx, cancel, err := m.launcher.Launch(ctx, strategy, dir)
		if err != nil {
			m.endLaunch(id)
			_ = os.RemoveAll(dir)
			failure.Attempts = append(failure.Attempts, domain.StrategyFailure{Strategy: strategy.Name, Err: err})
			if m.observer != nil {
				m.observer.LaunchFailed(strategy.Name)
			}
			logger.FromContext(ctx).WithError(err).WithField("strategy", strategy.Name).Warn("Browser launch strategy failed")
			continue
		}

		s := &Session{
			ID:       id,
			Strategy: strategy.Name,
			Dir:      dir,
			ctx:      browserCtx,
			cancel:   cancel,
		}
		m.mu.Lock()
		delete(m.launching, id)
		m.sessions[id] = s
		raced := m.generation != generation
		m.mu.Unlock()

		if m.observer != nil {
			m.observer.SessionOpened(strategy.Name)
		}
		if raced {
			// A force release overlapped the launch and may have killed the
			// browser. The caller gets a revoked, already released session.
			s.revoked.Store(true)
			m.Release(s)
			logger.FromContext(ctx).WithField(logger.FieldSessionID, id).Warn("Browser session force-released during launch")
			return s, nil
		}
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldSessionID: id,
			"strategy":            strategy.Name,
		}).Debug("Browser session acquired")
		return s, nil
	}

	return nil, failure
}

func (m *Manager) beginLaunch(id string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launching[id] = struct{}{}
	return m.generation
}

func (m *Manager) endLaunch(id string) {
	m.mu.Lock()
	delete(m.launching, id)
	m.mu.Unlock()
}

// Release tears down a session. It is idempotent and safe on nil.
func (m *Manager) Release(s *Session) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
		if err := os.RemoveAll(s.Dir); err != nil {
			logger.GetDefault().WithError(err).WithField(logger.FieldSessionID, s.ID).Warn("Failed to remove session directory")
		}
		if m.observer != nil {
			m.observer.SessionClosed()
		}
	})
}

// With acquires a session, runs fn with it and releases it on every exit path,
// including a panic inside fn.
func (m *Manager) With(ctx context.Context, fn func(*Session) error) error {
	s, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer m.Release(s)
	return fn(s)
}

// Outstanding returns the number of acquired, not yet released sessions.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ForceReleaseAll releases every tracked session, which clears the tracking
// table, then terminates every browser process carrying this service's session
// marker, including processes left behind by a previous run, and removes stale
// session directories.
// Returns the number of processes terminated by the reaper.
func (m *Manager) ForceReleaseAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	m.generation++
	tracked := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		tracked = append(tracked, s)
	}
	m.mu.Unlock()

	for _, s := range tracked {
		s.revoked.Store(true)
		m.Release(s)
	}

	killed := 0
	var reapErr error
	if m.reaper != nil {
		killed, reapErr = m.reaper.Reap(ctx, m.root)
		if m.observer != nil && killed > 0 {
			m.observer.ProcessesReaped(killed)
		}
	}

	m.removeStaleDirs()

	// Launches that overlapped the reap see the second bump.
	m.mu.Lock()
	m.generation++
	m.mu.Unlock()

	logger.FromContext(ctx).WithFields(logger.Fields{
		"released": len(tracked),
		"reaped":   killed,
	}).Info("Force-released browser sessions")

	if reapErr != nil {
		return killed, fmt.Errorf("failed to reap browser processes: %w", reapErr)
	}
	return killed, nil
}

// Orphans returns the number of marked browser processes that are not backed
// by a tracked session.
func (m *Manager) Orphans(ctx context.Context) (int, error) {
	if m.reaper == nil {
		return 0, nil
	}
	procs, err := m.reaper.Discover(ctx, m.root)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	orphans := 0
	for _, p := range procs {
		if m.owns(p.SessionID) {
			continue
		}
		orphans++
	}
	return orphans, nil
}

// removeStaleDirs deletes session directories no tracked session owns.
func (m *Manager) removeStaleDirs() {
	dirs, err := filepath.Glob(filepath.Join(m.root, SessionDirPrefix+"*"))
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dir := range dirs {
		id := strings.TrimPrefix(filepath.Base(dir), SessionDirPrefix)
		if m.owns(id) {
			continue
		}
		_ = os.RemoveAll(dir)
	}
}

// owns reports whether id is a tracked or launching session. Callers hold m.mu.
func (m *Manager) owns(id string) bool {
	if _, ok := m.sessions[id]; ok {
		return true
	}
	_, ok := m.launching[id]
	return ok
}
