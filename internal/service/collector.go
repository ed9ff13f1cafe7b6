package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/dedup"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/fetcher"
	"github.com/timmy/linkwatch/internal/logger"
)

// ErrSessionRevoked is returned when the browser session was force-released
// while the collection was using it.
var ErrSessionRevoked = errors.New("browser session was force-released")

// CredentialPool hands out credentials and records how they fared.
type CredentialPool interface {
	Select(ctx context.Context, provider domain.Provider) (*credential.Handle, error)
	ReportOutcome(ctx context.Context, h *credential.Handle, success bool) error
}

// SessionScope runs work inside an acquired browser session and releases it afterwards.
type SessionScope interface {
	With(ctx context.Context, fn func(*browser.Session) error) error
}

// CollectionObserver receives the outcome of every collection.
type CollectionObserver interface {
	ObserveCollection(worker string, p domain.Provider, err error, found, fresh int, elapsed time.Duration)
}

// Collector runs one fetch-and-record pass for an account. It is shared by
// the scheduler and the operation queue.
type Collector struct {
	credentials CredentialPool
	sessions    SessionScope
	fetchers    *fetcher.Registry
	dedup       *dedup.Deduplicator
	observer    CollectionObserver
	logger      *logger.Logger
}

// NewCollector creates a collector.
// Parameters:
//   - credentials: credential pool used for providers that need a login.
//   - sessions: browser session scope used for providers that render pages.
//   - fetchers: provider fetchers.
//   - dd: deduplicator recording discovered items.
//   - observer: optional collection metrics, may be nil.
//   - log: fallback logger.
//
// Returns:
//   - *Collector: the collector.
func NewCollector(
	credentials CredentialPool,
	sessions SessionScope,
	fetchers *fetcher.Registry,
	dd *dedup.Deduplicator,
	observer CollectionObserver,
	log *logger.Logger,
) *Collector {
	return &Collector{
		credentials: credentials,
		sessions:    sessions,
		fetchers:    fetchers,
		dedup:       dd,
		observer:    observer,
		logger:      log,
	}
}

// CollectRequest describes one collection.
type CollectRequest struct {
	Account *domain.Account
	Limit   int
	Timeout time.Duration
	// Worker labels metrics and logs ("scheduler", "queue", "cli").
	Worker string
	// Stopping reports whether the owning worker is shutting down. Failures
	// observed while stopping are not held against the credential.
	Stopping func() bool
}

// CollectResult is the outcome of a successful collection.
type CollectResult struct {
	// Links are the canonical URLs the fetcher returned, newest first.
	Links []string
	// New are the links recorded for the first time by this collection.
	New        []string
	Credential string
	Elapsed    time.Duration
}

func (c *Collector) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return c.logger
}

// Collect selects a credential, fetches the account's recent posts inside a
// browser session when the provider needs one, records every link through the
// deduplicator and reports the credential outcome.
// Errors are domain.ErrCredentialExhausted, *domain.ResourceCreationError,
// *domain.FetchError, or *domain.PersistenceError which callers must treat as fatal.
func (c *Collector) Collect(ctx context.Context, req CollectRequest) (*CollectResult, error) {
	account := req.Account
	start := time.Now()
	ctx = logger.SetAccount(ctx, account.ID, account.URL, string(account.Provider))

	res, err := c.collect(ctx, req)
	elapsed := time.Since(start)

	found, fresh := 0, 0
	if res != nil {
		res.Elapsed = elapsed
		found, fresh = len(res.Links), len(res.New)
	}
	if c.observer != nil {
		c.observer.ObserveCollection(req.Worker, account.Provider, err, found, fresh, elapsed)
	}

	entry := logger.With(logger.Fields{"worker": req.Worker}).
		WithDuration(elapsed).
		WithCount(found).
		WithNewCount(fresh)
	if err != nil {
		entry.WithError(err).Warn(ctx, "Collection failed")
		return nil, err
	}
	entry.WithCredential(res.Credential).Info(ctx, "Collection completed")
	return res, nil
}

func (c *Collector) collect(ctx context.Context, req CollectRequest) (*CollectResult, error) {
	account := req.Account

	f, err := c.fetchers.Get(account.Provider)
	if err != nil {
		return nil, err
	}

	var cred *credential.Handle
	if f.NeedsCredential() {
		cred, err = c.credentials.Select(ctx, account.Provider)
		if err != nil {
			return nil, err
		}
		ctx = logger.WithField(ctx, logger.FieldCredential, cred.Name)
	}

	fetchCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	res := &CollectResult{}
	if cred != nil {
		res.Credential = cred.Name
	}

	var session *browser.Session
	run := func(s *browser.Session) error {
		session = s
		links, err := c.fetchers.Fetch(fetchCtx, f, s, account.URL, cred, req.Limit)
		if err != nil {
			return err
		}
		return c.record(ctx, account.ID, links, res)
	}

	if f.NeedsSession() {
		err = c.sessions.With(fetchCtx, run)
	} else {
		err = run(nil)
	}

	if domain.IsPersistence(err) {
		return nil, err
	}

	if cred != nil && c.countsAgainstCredential(ctx, req, session, err) {
		if reportErr := c.credentials.ReportOutcome(ctx, cred, err == nil); reportErr != nil {
			return nil, reportErr
		}
	}

	if err != nil {
		if session != nil && session.Revoked() {
			return nil, fmt.Errorf("%w: %v", ErrSessionRevoked, err)
		}
		return nil, err
	}
	return res, nil
}

// record runs every fetched link through the deduplicator. Links that cannot
// be canonicalized are skipped.
func (c *Collector) record(ctx context.Context, accountID uint, links []string, res *CollectResult) error {
	for _, link := range links {
		r, err := c.dedup.RecordIfNew(ctx, accountID, link, nil)
		if errors.Is(err, dedup.ErrInvalidURL) {
			c.log(ctx).WithError(err).WithField("url", link).Debug("Skipping malformed link")
			continue
		}
		if err != nil {
			return err
		}
		res.Links = append(res.Links, r.URL)
		if r.New {
			res.New = append(res.New, r.URL)
		}
	}
	return nil
}

// countsAgainstCredential decides whether an attempt is reported to the
// credential pool. Attempts cut short by a forced release or a stopping worker
// are not.
func (c *Collector) countsAgainstCredential(ctx context.Context, req CollectRequest, session *browser.Session, err error) bool {
	if err == nil {
		return true
	}
	if session != nil && session.Revoked() {
		c.log(ctx).Debug("Session was force-released, not reporting credential failure")
		return false
	}
	if req.Stopping != nil && req.Stopping() {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return true
}

