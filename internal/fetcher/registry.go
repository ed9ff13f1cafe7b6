package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/domain"
	"golang.org/x/time/rate"
)

// Registry maps providers to fetchers and throttles outbound fetches per provider.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[domain.Provider]Fetcher
	limiters map[domain.Provider]*rate.Limiter
	perMin   int
}

// NewRegistry creates a registry allowing requestsPerMinute fetches per provider
// (unlimited when <= 0).
func NewRegistry(requestsPerMinute int) *Registry {
	return &Registry{
		fetchers: make(map[domain.Provider]Fetcher),
		limiters: make(map[domain.Provider]*rate.Limiter),
		perMin:   requestsPerMinute,
	}
}

// Register adds or replaces the fetcher for its provider.
func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchers[f.Provider()] = f
	if r.perMin > 0 {
		r.limiters[f.Provider()] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMin)), 1)
	}
}

// Get returns the fetcher for p.
func (r *Registry) Get(p domain.Provider) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fetchers[p]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for %s", domain.ErrUnsupportedProvider, p)
	}
	return f, nil
}

// Providers returns the providers with a registered fetcher.
func (r *Registry) Providers() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, 0, len(r.fetchers))
	for _, p := range domain.Providers {
		if _, ok := r.fetchers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Fetch waits for the provider's rate limit, runs f and normalises its result:
// errors become *domain.FetchError and the result is capped at limit.
func (r *Registry) Fetch(ctx context.Context, f Fetcher, session *browser.Session, accountURL string, cred *credential.Handle, limit int) ([]string, error) {
	r.mu.RLock()
	limiter := r.limiters[f.Provider()]
	r.mu.RUnlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &domain.FetchError{Provider: f.Provider(), AccountURL: accountURL, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	links, err := f.Fetch(ctx, session, accountURL, cred, limit)
	if err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &domain.FetchError{Provider: f.Provider(), AccountURL: accountURL, Err: err}
	}
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}
