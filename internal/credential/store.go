// Package credential rotates and burns provider credentials (cookie files).
//
// Credential files live under <dir>/<provider>/active/*.txt. Their health
// (failure counter, burnt flag) is kept in the database so that it survives
// restarts; a burnt credential's file is moved to <dir>/<provider>/burnt/.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/timmy/linkwatch/internal/credential/cookiefile"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/repository"
)

const (
	activeDir = "active"
	burntDir  = "burnt"
	fileExt   = ".txt"

	// DefaultBurnThreshold is the number of consecutive failures that burn a credential.
	DefaultBurnThreshold = 3
)

// Repository is the persistence the store needs.
type Repository interface {
	Register(ctx context.Context, cred *domain.Credential) (bool, error)
	ListActive(ctx context.Context, provider domain.Provider) ([]domain.Credential, error)
	ListByProvider(ctx context.Context, provider domain.Provider) ([]domain.Credential, error)
	RecordSuccess(ctx context.Context, id uint, at time.Time) error
	RecordFailure(ctx context.Context, id uint, threshold int, at time.Time) (*domain.Credential, bool, error)
	UpdatePath(ctx context.Context, id uint, path string) error
}

// Observer is notified of credential events. Implementations must be cheap.
type Observer interface {
	CredentialSelected(provider domain.Provider)
	CredentialFailed(provider domain.Provider)
	CredentialBurnt(provider domain.Provider)
}

// Handle identifies a selected credential.
type Handle struct {
	ID       uint
	Provider domain.Provider
	Name     string
	Path     string
}

// Cookies loads the credential's cookie jar.
func (h *Handle) Cookies(now time.Time) (*cookiefile.Jar, error) {
	return cookiefile.Load(h.Path, now)
}

// Stats summarises the credential pool of one provider.
type Stats struct {
	Provider    domain.Provider `json:"provider"`
	ActiveCount int             `json:"active_count"`
	BurntCount  int             `json:"burnt_count"`
	Active      []string        `json:"active"`
	Burnt       []string        `json:"burnt"`
	Failures    map[string]int  `json:"failures"`
}

// Store selects credentials and tracks their health.
// Select and ReportOutcome are serialised so concurrent workers never observe
// a half-applied update.
type Store struct {
	repo      Repository
	dir       string
	threshold int
	observer  Observer
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithBurnThreshold overrides DefaultBurnThreshold.
func WithBurnThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a credential store rooted at dir.
// Parameters:
//   - repo: durable credential state.
//   - dir: root directory holding <provider>/active and <provider>/burnt.
//   - opts: optional settings.
// Returns:
//   - *Store: initialized store.
func NewStore(repo Repository, dir string, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		dir:       dir,
		threshold: DefaultBurnThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the number of consecutive failures that burn a credential.
func (s *Store) Threshold() int {
	return s.threshold
}

// Sync creates the pool directories and registers credential files found in
// every provider's active directory. Already known credentials keep their state.
// Returns the number of newly registered credentials.
func (s *Store) Sync(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered := 0
	for _, p := range domain.Providers {
		for _, sub := range []string{activeDir, burntDir} {
			if err := os.MkdirAll(filepath.Join(s.dir, string(p), sub), 0755); err != nil {
				return registered, fmt.Errorf("failed to create credential directory: %w", err)
			}
		}

		files, err := filepath.Glob(filepath.Join(s.dir, string(p), activeDir, "*"+fileExt))
		if err != nil {
			return registered, fmt.Errorf("failed to list credentials: %w", err)
		}
		sort.Strings(files)

		for _, path := range files {
			created, err := s.repo.Register(ctx, &domain.Credential{
				Provider: p,
				Name:     filepath.Base(path),
				Path:     path,
				Status:   domain.CredentialStatusActive,
			})
			if err != nil {
				return registered, domain.NewPersistenceError("register credential", err)
			}
			if created {
				registered++
			}
		}
	}

	logger.GetDefault().WithFields(logger.Fields{
		logger.FieldComponent: "credentials",
		logger.FieldCount:     registered,
	}).Info("Credential pool synced")
	return registered, nil
}

// Select returns the healthiest active credential of provider: lowest failure
// count first, ties broken by name. Credentials whose file has disappeared are
// skipped.
// Returns domain.ErrCredentialExhausted when none is available.
func (s *Store) Select(ctx context.Context, provider domain.Provider) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.repo.ListActive(ctx, provider)
	if err != nil {
		return nil, domain.NewPersistenceError("list credentials", err)
	}

	for _, c := range creds {
		if _, err := os.Stat(c.Path); err != nil {
			logger.CtxWarn(ctx, "Skipping credential %s/%s: %v", provider, c.Name, err)
			continue
		}
		if s.observer != nil {
			s.observer.CredentialSelected(provider)
		}
		return &Handle{ID: c.ID, Provider: c.Provider, Name: c.Name, Path: c.Path}, nil
	}
	return nil, fmt.Errorf("%w for %s", domain.ErrCredentialExhausted, provider)
}

// ReportOutcome records the result of using a credential. A success resets the
// failure counter; a failure increments it and burns the credential when it
// reaches the threshold. The update is durable before ReportOutcome returns.
// Reports for a credential that was burnt in the meantime are ignored.
func (s *Store) ReportOutcome(ctx context.Context, h *Handle, success bool) error {
	if h == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now().UTC()
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldProvider:   string(h.Provider),
		logger.FieldCredential: h.Name,
	})

	if success {
		err := s.repo.RecordSuccess(ctx, h.ID, at)
		if errors.Is(err, repository.ErrCredentialNotActive) {
			log.Debug("Ignoring success report for inactive credential")
			return nil
		}
		if err != nil {
			return domain.NewPersistenceError("record credential success", err)
		}
		return nil
	}

	cred, burnt, err := s.repo.RecordFailure(ctx, h.ID, s.threshold, at)
	if errors.Is(err, repository.ErrCredentialNotActive) {
		log.Debug("Ignoring failure report for inactive credential")
		return nil
	}
	if err != nil {
		return domain.NewPersistenceError("record credential failure", err)
	}
	if s.observer != nil {
		s.observer.CredentialFailed(h.Provider)
	}

	if !burnt {
		log.WithField("failure_count", cred.FailureCount).Warn("Credential failure recorded")
		return nil
	}

	if s.observer != nil {
		s.observer.CredentialBurnt(h.Provider)
	}
	log.Warn("Credential burnt")

	// The burnt state is already durable; moving the file only keeps the pool
	// directory tidy, so a failure here is logged and not returned.
	dest := filepath.Join(s.dir, string(h.Provider), burntDir, h.Name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		log.WithError(err).Error("Failed to create burnt directory")
		return nil
	}
	if err := os.Rename(cred.Path, dest); err != nil {
		log.WithError(err).Error("Failed to move burnt credential file")
		return nil
	}
	if err := s.repo.UpdatePath(ctx, h.ID, dest); err != nil {
		return domain.NewPersistenceError("update credential path", err)
	}
	return nil
}

// Stats returns the pool statistics of provider.
func (s *Store) Stats(ctx context.Context, provider domain.Provider) (*Stats, error) {
	creds, err := s.repo.ListByProvider(ctx, provider)
	if err != nil {
		return nil, domain.NewPersistenceError("list credentials", err)
	}

	stats := &Stats{
		Provider: provider,
		Active:   []string{},
		Burnt:    []string{},
		Failures: map[string]int{},
	}
	for _, c := range creds {
		switch c.Status {
		case domain.CredentialStatusActive:
			stats.ActiveCount++
			stats.Active = append(stats.Active, c.Name)
			if c.FailureCount > 0 {
				stats.Failures[c.Name] = c.FailureCount
			}
		case domain.CredentialStatusBurnt:
			stats.BurntCount++
			stats.Burnt = append(stats.Burnt, c.Name)
		}
	}
	return stats, nil
}

// AllStats returns Stats for every supported provider.
func (s *Store) AllStats(ctx context.Context) ([]*Stats, error) {
	out := make([]*Stats, 0, len(domain.Providers))
	for _, p := range domain.Providers {
		st, err := s.Stats(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
