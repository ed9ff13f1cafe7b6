// Package fetcher defines the per-provider content fetchers and the registry
// that dispatches to them.
package fetcher

import (
	"context"

	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/domain"
)

// Fetcher retrieves the most recent post URLs of an account.
type Fetcher interface {
	// Provider returns the provider this fetcher serves.
	Provider() domain.Provider

	// NeedsSession reports whether Fetch requires a browser session.
	NeedsSession() bool

	// NeedsCredential reports whether Fetch requires a credential.
	NeedsCredential() bool

	// Fetch returns at most limit post URLs of the account, newest first.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - session: browser session, nil when NeedsSession is false.
	//   - accountURL: canonical account URL.
	//   - cred: credential to act as, nil when NeedsCredential is false.
	//   - limit: maximum number of URLs to return.
	// Returns:
	//   - []string: post URLs, newest first.
	//   - error: non-nil if the provider rejected or failed the request.
	Fetch(ctx context.Context, session *browser.Session, accountURL string, cred *credential.Handle, limit int) ([]string, error)
}
