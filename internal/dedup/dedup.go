// Package dedup records discovered post URLs at most once per account.
package dedup

import (
	"context"
	"time"

	"github.com/timmy/linkwatch/internal/domain"
)

// ItemStore inserts items keyed by (account, fingerprint) atomically.
type ItemStore interface {
	InsertIfAbsent(ctx context.Context, item *domain.DiscoveredItem) (bool, error)
}

// Result reports the outcome of RecordIfNew.
type Result struct {
	New         bool
	URL         string
	Fingerprint string
}

// Deduplicator records post URLs once per account.
type Deduplicator struct {
	store ItemStore
	now   func() time.Time
}

// New creates a Deduplicator backed by store.
func New(store ItemStore) *Deduplicator {
	return &Deduplicator{store: store, now: time.Now}
}

// RecordIfNew records rawURL for accountID unless a canonically equivalent URL
// is already recorded. Exactly one of several concurrent callers with
// equivalent URLs observes New == true.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - accountID: owning account.
//   - rawURL: post URL as discovered.
//   - postDate: publication time when the fetcher knows it, else nil.
// Returns:
//   - Result: whether the URL was new, with its canonical form and fingerprint.
//   - error: ErrInvalidURL for malformed input, *domain.PersistenceError on store failure.
func (d *Deduplicator) RecordIfNew(ctx context.Context, accountID uint, rawURL string, postDate *time.Time) (Result, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return Result{}, err
	}
	res := Result{URL: canonical, Fingerprint: fingerprintOf(canonical)}

	inserted, err := d.store.InsertIfAbsent(ctx, &domain.DiscoveredItem{
		AccountID:    accountID,
		URL:          canonical,
		Fingerprint:  res.Fingerprint,
		DiscoveredAt: d.now().UTC(),
		PostDate:     postDate,
	})
	if err != nil {
		return Result{}, domain.NewPersistenceError("record item", err)
	}
	res.New = inserted
	return res, nil
}
