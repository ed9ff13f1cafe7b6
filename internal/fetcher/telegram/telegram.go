// Package telegram reads public channel posts from the t.me web preview.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/domain"
)

const (
	defaultPreviewURL = "https://t.me/s/"
	postBaseURL       = "https://t.me/"
)

// ErrPrivateChannel is returned when the channel has no public preview.
var ErrPrivateChannel = errors.New("channel has no public preview")

// Options configures the fetcher.
type Options struct {
	HTTPTimeout time.Duration
	UserAgent   string
	Proxy       string
	// PreviewURL overrides the preview endpoint; the channel name is appended.
	PreviewURL string
}

// Fetcher scrapes public Telegram channels. It needs neither a browser
// session nor a credential.
type Fetcher struct {
	opts Options
}

// New creates a Telegram fetcher.
func New(opts Options) *Fetcher {
	if opts.PreviewURL == "" {
		opts.PreviewURL = defaultPreviewURL
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	return &Fetcher{opts: opts}
}

func (f *Fetcher) Provider() domain.Provider { return domain.ProviderTelegram }

func (f *Fetcher) NeedsSession() bool { return false }

func (f *Fetcher) NeedsCredential() bool { return false }

// Fetch returns the newest post links of the channel, newest first.
func (f *Fetcher) Fetch(ctx context.Context, _ *browser.Session, accountURL string, _ *credential.Handle, limit int) ([]string, error) {
	channel, err := channelName(accountURL)
	if err != nil {
		return nil, err
	}

	c := f.newCollector(ctx)

	var posts []string
	c.OnHTML("[data-post]", func(e *colly.HTMLElement) {
		post := strings.TrimSpace(e.Attr("data-post"))
		if post == "" || !strings.Contains(post, "/") {
			return
		}
		posts = append(posts, postBaseURL+post)
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("preview request failed: status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(f.opts.PreviewURL + url.PathEscape(channel)); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("preview request failed: %w", err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, visitErr
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPrivateChannel, channel)
	}

	// The preview lists posts oldest first.
	links := make([]string, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for i := len(posts) - 1; i >= 0; i-- {
		if _, dup := seen[posts[i]]; dup {
			continue
		}
		seen[posts[i]] = struct{}{}
		links = append(links, posts[i])
		if limit > 0 && len(links) >= limit {
			break
		}
	}
	return links, nil
}

func (f *Fetcher) newCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.MaxDepth(1),
		colly.IgnoreRobotsTxt(),
	}
	if f.opts.UserAgent != "" {
		opts = append(opts, colly.UserAgent(f.opts.UserAgent))
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(f.opts.HTTPTimeout)
	if f.opts.Proxy != "" {
		_ = c.SetProxy(f.opts.Proxy)
	}
	return c
}

func channelName(accountURL string) (string, error) {
	u, err := url.Parse(accountURL)
	if err != nil {
		return "", fmt.Errorf("invalid account url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && segments[0] == "s" {
		segments = segments[1:]
	}
	if len(segments) == 0 || segments[0] == "" {
		return "", fmt.Errorf("no channel in %q", accountURL)
	}
	return segments[0], nil
}
