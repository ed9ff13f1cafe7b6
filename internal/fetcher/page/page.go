// Package page fetches post links by rendering an account page in a browser
// session authenticated with credential cookies.
package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/credential/cookiefile"
	"github.com/timmy/linkwatch/internal/domain"
)

var (
	// ErrNoCookies is returned when a credential carries no usable cookie for the provider.
	ErrNoCookies = errors.New("credential has no cookies for provider")

	// ErrLoginWall is returned when the provider redirected to its login or checkpoint page.
	ErrLoginWall = errors.New("redirected to login wall")
)

// Options tunes page rendering.
type Options struct {
	MaxScrolls  int
	ScrollPause time.Duration
	// SettleDelay is the wait after navigation before the first read.
	SettleDelay time.Duration
}

// Fetcher renders account pages for one provider.
type Fetcher struct {
	profile Profile
	opts    Options
	now     func() time.Time
}

// New creates a page fetcher for provider p.
// Parameters:
//   - p: one of instagram, tiktok, x, facebook.
//   - opts: scroll and wait tuning.
//
// Returns:
//   - *Fetcher: the fetcher.
//   - error: domain.ErrUnsupportedProvider when p has no page profile.
func New(p domain.Provider, opts Options) (*Fetcher, error) {
	prof, ok := ProfileFor(p)
	if !ok {
		return nil, fmt.Errorf("%w: no page profile for %s", domain.ErrUnsupportedProvider, p)
	}
	if opts.MaxScrolls < 0 {
		opts.MaxScrolls = 0
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	return &Fetcher{profile: prof, opts: opts, now: time.Now}, nil
}

func (f *Fetcher) Provider() domain.Provider { return f.profile.Provider }

func (f *Fetcher) NeedsSession() bool { return true }

func (f *Fetcher) NeedsCredential() bool { return true }

// Fetch injects the credential cookies into the session, opens the account page,
// scrolls until enough post links are rendered and returns them in page order.
func (f *Fetcher) Fetch(ctx context.Context, session *browser.Session, accountURL string, cred *credential.Handle, limit int) ([]string, error) {
	if session == nil {
		return nil, errors.New("page fetch requires a browser session")
	}
	if cred == nil {
		return nil, errors.New("page fetch requires a credential")
	}

	jar, err := cred.Cookies(f.now())
	if err != nil {
		return nil, err
	}
	cookies := jar.ForDomain(f.profile.CookieDomains...)
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCookies, cred.Name)
	}

	tabCtx, cancel := chromedp.NewContext(session.Context())
	defer cancel()

	// Tie the tab to the caller's deadline as well as to the session.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetCookies(cookieParams(cookies)),
	); err != nil {
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}

	var location string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(accountURL),
		chromedp.Sleep(f.opts.SettleDelay),
		chromedp.Location(&location),
	); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if f.isLoginWall(location) {
		return nil, fmt.Errorf("%w: %s", ErrLoginWall, location)
	}

	var links []string
	for scroll := 0; ; scroll++ {
		var html string
		if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("failed to read page: %w", err)
		}
		links, err = ExtractLinks(html, accountURL, f.profile.PostPattern, f.profile.KeepQuery, limit)
		if err != nil {
			return nil, err
		}
		if (limit > 0 && len(links) >= limit) || scroll >= f.opts.MaxScrolls {
			break
		}
		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(f.opts.ScrollPause),
		); err != nil {
			return nil, fmt.Errorf("scroll failed: %w", err)
		}
	}

	return links, nil
}

func (f *Fetcher) isLoginWall(location string) bool {
	for _, marker := range f.profile.LoginMarkers {
		if strings.Contains(location, marker) {
			return true
		}
	}
	return false
}

func cookieParams(cookies []cookiefile.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Expires.IsZero() {
			expires := cdp.TimeSinceEpoch(c.Expires)
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return params
}
