package page

import (
	"regexp"

	"github.com/timmy/linkwatch/internal/domain"
)

// Profile describes how to read one provider's account page.
type Profile struct {
	Provider domain.Provider
	// CookieDomains selects which credential cookies are injected.
	CookieDomains []string
	// PostPattern matches the path of a post link. Only the matched prefix of
	// the path is kept, so trailing segments like /photo/1 collapse onto the post.
	PostPattern *regexp.Regexp
	// KeepQuery keeps the query string for providers that identify posts by it.
	KeepQuery bool
	// LoginMarkers are path fragments of the provider's login or checkpoint pages.
	LoginMarkers []string
}

var profiles = map[domain.Provider]Profile{
	domain.ProviderInstagram: {
		Provider:      domain.ProviderInstagram,
		CookieDomains: []string{"instagram.com"},
		PostPattern:   regexp.MustCompile(`^/(?:[A-Za-z0-9._]+/)?(?:p|reel|tv)/[A-Za-z0-9_-]+`),
		LoginMarkers:  []string{"/accounts/login", "/challenge/"},
	},
	domain.ProviderTikTok: {
		Provider:      domain.ProviderTikTok,
		CookieDomains: []string{"tiktok.com"},
		PostPattern:   regexp.MustCompile(`^/@[A-Za-z0-9._-]+/(?:video|photo)/\d+`),
		LoginMarkers:  []string{"/login"},
	},
	domain.ProviderX: {
		Provider:      domain.ProviderX,
		CookieDomains: []string{"x.com", "twitter.com"},
		PostPattern:   regexp.MustCompile(`^/[A-Za-z0-9_]+/status/\d+`),
		LoginMarkers:  []string{"/i/flow/login", "/login"},
	},
	domain.ProviderFacebook: {
		Provider:      domain.ProviderFacebook,
		CookieDomains: []string{"facebook.com"},
		PostPattern:   regexp.MustCompile(`^/(?:[A-Za-z0-9.]+/(?:posts|videos)/[A-Za-z0-9]+|reel/\d+|permalink\.php|story\.php|photo\.php|photo/?$)`),
		KeepQuery:     true,
		LoginMarkers:  []string{"/login", "/checkpoint"},
	},
}

// ProfileFor returns the page profile of p.
func ProfileFor(p domain.Provider) (Profile, bool) {
	prof, ok := profiles[p]
	return prof, ok
}
