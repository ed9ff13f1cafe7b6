// Package youtube lists a channel's most recent videos, either from the public
// channel feed or through the yt-dlp binary.
package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/domain"
)

const defaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

var channelIDPattern = regexp.MustCompile(`/channel/(UC[A-Za-z0-9_-]{22})`)

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Options configures the fetcher.
type Options struct {
	YtDlpPath   string
	HTTPTimeout time.Duration
	UserAgent   string
	Proxy       string
	// UseCookies passes the selected credential's cookie file to yt-dlp.
	// When false the fetcher runs without a credential.
	UseCookies bool
	// FeedURL overrides the channel feed endpoint.
	FeedURL string
	Runner  Runner
}

// Fetcher lists YouTube channel uploads.
type Fetcher struct {
	client  *resty.Client
	parser  *gofeed.Parser
	feedURL string
	ytdlp   string
	proxy   string
	cookies bool
	run     Runner
}

// New creates a YouTube fetcher.
func New(opts Options) *Fetcher {
	client := resty.New()
	if opts.HTTPTimeout > 0 {
		client.SetTimeout(opts.HTTPTimeout)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}

	f := &Fetcher{
		client:  client,
		parser:  gofeed.NewParser(),
		feedURL: opts.FeedURL,
		ytdlp:   opts.YtDlpPath,
		proxy:   opts.Proxy,
		cookies: opts.UseCookies,
		run:     opts.Runner,
	}
	if f.feedURL == "" {
		f.feedURL = defaultFeedURL
	}
	if f.ytdlp == "" {
		f.ytdlp = "yt-dlp"
	}
	if f.run == nil {
		f.run = execRunner
	}
	return f
}

func (f *Fetcher) Provider() domain.Provider { return domain.ProviderYouTube }

func (f *Fetcher) NeedsSession() bool { return false }

func (f *Fetcher) NeedsCredential() bool { return f.cookies }

// Fetch returns up to limit video URLs, newest first. Channel-id URLs are read
// from the public feed; handles and legacy names go through yt-dlp.
func (f *Fetcher) Fetch(ctx context.Context, _ *browser.Session, accountURL string, cred *credential.Handle, limit int) ([]string, error) {
	if m := channelIDPattern.FindStringSubmatch(accountURL); m != nil {
		return f.fetchFeed(ctx, m[1], limit)
	}
	return f.fetchYtDlp(ctx, accountURL, cred, limit)
}

func (f *Fetcher) fetchFeed(ctx context.Context, channelID string, limit int) ([]string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("channel_id", channelID).
		Get(f.feedURL)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("feed request failed: status %d", resp.StatusCode())
	}

	feed, err := f.parser.ParseString(resp.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := feed.Items
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedParsed, items[j].PublishedParsed
		if a == nil || b == nil {
			return false
		}
		return a.After(*b)
	})

	links := make([]string, 0, len(items))
	for _, item := range items {
		if item.Link == "" {
			continue
		}
		links = append(links, item.Link)
		if limit > 0 && len(links) >= limit {
			break
		}
	}
	return links, nil
}

func (f *Fetcher) fetchYtDlp(ctx context.Context, accountURL string, cred *credential.Handle, limit int) ([]string, error) {
	args := []string{"--flat-playlist", "--print", "url", "--no-warnings"}
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	if f.cookies {
		if cred == nil {
			return nil, errors.New("yt-dlp fetch requires a credential")
		}
		args = append(args, "--cookies", cred.Path)
	}
	if f.proxy != "" {
		args = append(args, "--proxy", f.proxy)
	}
	args = append(args, uploadsURL(accountURL))

	out, err := f.run(ctx, f.ytdlp, args...)
	if err != nil {
		return nil, err
	}

	var links []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "http") {
			continue
		}
		links = append(links, line)
		if limit > 0 && len(links) >= limit {
			break
		}
	}
	return links, nil
}

// uploadsURL points yt-dlp at the channel's uploads tab.
func uploadsURL(accountURL string) string {
	u := strings.TrimRight(accountURL, "/")
	if strings.HasSuffix(u, "/videos") {
		return u
	}
	return u + "/videos"
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}
