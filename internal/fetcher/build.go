package fetcher

import (
	"fmt"

	"github.com/timmy/linkwatch/internal/config"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/fetcher/page"
	"github.com/timmy/linkwatch/internal/fetcher/telegram"
	"github.com/timmy/linkwatch/internal/fetcher/youtube"
)

// NewDefaultRegistry wires one fetcher per supported provider.
// Parameters:
//   - cfg: fetch configuration (rate limit, timeouts, proxy, yt-dlp path).
//
// Returns:
//   - *Registry: registry serving every provider in domain.Providers.
//   - error: non-nil if a fetcher could not be constructed.
func NewDefaultRegistry(cfg config.FetchConfig) (*Registry, error) {
	r := NewRegistry(cfg.RequestsPerMinute)

	pageOpts := page.Options{MaxScrolls: cfg.MaxScrolls, ScrollPause: cfg.ScrollPause}
	for _, p := range []domain.Provider{
		domain.ProviderInstagram,
		domain.ProviderTikTok,
		domain.ProviderX,
		domain.ProviderFacebook,
	} {
		f, err := page.New(p, pageOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s fetcher: %w", p, err)
		}
		r.Register(f)
	}

	r.Register(youtube.New(youtube.Options{
		YtDlpPath:   cfg.YtDlpPath,
		HTTPTimeout: cfg.HTTPTimeout,
		UserAgent:   cfg.UserAgent,
		Proxy:       cfg.Proxy,
		UseCookies:  cfg.YouTubeCookies,
	}))

	r.Register(telegram.New(telegram.Options{
		HTTPTimeout: cfg.HTTPTimeout,
		UserAgent:   cfg.UserAgent,
		Proxy:       cfg.Proxy,
	}))

	return r, nil
}
