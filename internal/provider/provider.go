// Package provider resolves user-supplied account identifiers into canonical
// account URLs and providers.
package provider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/timmy/linkwatch/internal/domain"
)

// Target is a resolved account identifier.
type Target struct {
	URL      string
	Username string
	Provider domain.Provider
}

var hostProviders = []struct {
	host     string
	provider domain.Provider
}{
	{"instagram.com", domain.ProviderInstagram},
	{"tiktok.com", domain.ProviderTikTok},
	{"x.com", domain.ProviderX},
	{"twitter.com", domain.ProviderX},
	{"facebook.com", domain.ProviderFacebook},
	{"fb.com", domain.ProviderFacebook},
	{"youtube.com", domain.ProviderYouTube},
	{"youtu.be", domain.ProviderYouTube},
	{"t.me", domain.ProviderTelegram},
	{"telegram.me", domain.ProviderTelegram},
}

// Identify returns the provider an absolute URL belongs to, or ProviderUnknown.
func Identify(rawURL string) domain.Provider {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return domain.ProviderUnknown
	}
	return identifyHost(u.Hostname())
}

func identifyHost(host string) domain.Provider {
	host = strings.ToLower(host)
	for _, hp := range hostProviders {
		if host == hp.host || strings.HasSuffix(host, "."+hp.host) {
			return hp.provider
		}
	}
	return domain.ProviderUnknown
}

// Resolve turns a full URL, a scheme-less URL, or a bare username into a Target.
// A bare username (optionally prefixed with @) is treated as an Instagram account.
// Returns an error wrapping domain.ErrUnsupportedProvider when the identifier
// cannot be mapped to a supported provider and account name.
func Resolve(identifier string) (*Target, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", domain.ErrUnsupportedProvider)
	}

	raw := id
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if looksLikeHostPath(raw) {
			raw = "https://" + raw
		} else {
			name := strings.TrimPrefix(raw, "@")
			if name == "" || strings.ContainsAny(name, "/?# ") {
				return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, identifier)
			}
			raw = "https://www.instagram.com/" + name
		}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, identifier)
	}

	p := identifyHost(u.Hostname())
	segments := pathSegments(u.Path)

	var target *Target
	switch p {
	case domain.ProviderInstagram:
		target = simple(p, "https://www.instagram.com/", segments)
	case domain.ProviderX:
		target = simple(p, "https://x.com/", segments)
	case domain.ProviderTikTok:
		target = resolveTikTok(segments)
	case domain.ProviderFacebook:
		target = resolveFacebook(u, segments)
	case domain.ProviderYouTube:
		target = resolveYouTube(u, segments)
	case domain.ProviderTelegram:
		target = resolveTelegram(segments)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, identifier)
	}
	return target, nil
}

func looksLikeHostPath(s string) bool {
	host := s
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	return identifyHost(host) != domain.ProviderUnknown
}

func pathSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func simple(p domain.Provider, prefix string, segments []string) *Target {
	if len(segments) == 0 {
		return nil
	}
	name := strings.TrimPrefix(segments[0], "@")
	if name == "" {
		return nil
	}
	return &Target{URL: prefix + name, Username: name, Provider: p}
}

func resolveTikTok(segments []string) *Target {
	if len(segments) == 0 {
		return nil
	}
	name := strings.TrimPrefix(segments[0], "@")
	if name == "" {
		return nil
	}
	return &Target{URL: "https://www.tiktok.com/@" + name, Username: name, Provider: domain.ProviderTikTok}
}

func resolveFacebook(u *url.URL, segments []string) *Target {
	if len(segments) == 0 {
		return nil
	}
	if segments[0] == "profile.php" {
		id := u.Query().Get("id")
		if id == "" {
			return nil
		}
		return &Target{
			URL:      "https://www.facebook.com/profile.php?id=" + id,
			Username: id,
			Provider: domain.ProviderFacebook,
		}
	}
	return simple(domain.ProviderFacebook, "https://www.facebook.com/", segments)
}

func resolveYouTube(u *url.URL, segments []string) *Target {
	if strings.EqualFold(u.Hostname(), "youtu.be") || len(segments) == 0 {
		return nil
	}
	first := segments[0]
	switch {
	case strings.HasPrefix(first, "@"):
		return &Target{URL: "https://www.youtube.com/" + first, Username: strings.TrimPrefix(first, "@"), Provider: domain.ProviderYouTube}
	case first == "channel" || first == "user" || first == "c":
		if len(segments) < 2 {
			return nil
		}
		return &Target{URL: "https://www.youtube.com/" + first + "/" + segments[1], Username: segments[1], Provider: domain.ProviderYouTube}
	case first == "watch" || first == "shorts" || first == "playlist" || first == "feed":
		return nil
	default:
		return &Target{URL: "https://www.youtube.com/@" + first, Username: first, Provider: domain.ProviderYouTube}
	}
}

func resolveTelegram(segments []string) *Target {
	if len(segments) > 0 && segments[0] == "s" {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return nil
	}
	name := strings.TrimPrefix(segments[0], "@")
	if name == "" {
		return nil
	}
	return &Target{URL: "https://t.me/" + name, Username: name, Provider: domain.ProviderTelegram}
}
