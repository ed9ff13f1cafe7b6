package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// ErrInvalidURL is returned for URLs that cannot be canonicalized.
var ErrInvalidURL = errors.New("invalid item url")

// identityParams are the query parameters that identify a post rather than
// track the visitor. Everything else is dropped.
var identityParams = map[string]bool{
	"v":          true,
	"id":         true,
	"fbid":       true,
	"story_fbid": true,
}

var hostAliases = map[string]string{
	"twitter.com":          "x.com",
	"fb.com":               "facebook.com",
	"telegram.me":          "t.me",
	"music.youtube.com":    "youtube.com",
	"youtube-nocookie.com": "youtube.com",
}

// Canonicalize returns the canonical form of a post URL. Two URLs that refer to
// the same post on the same provider canonicalize to the same string.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}

	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "mobile."} {
		host = strings.TrimPrefix(host, prefix)
	}
	if alias, ok := hostAliases[host]; ok {
		host = alias
	}

	p := u.EscapedPath()
	if p != "" {
		p = path.Clean(p)
	}
	p = strings.TrimSuffix(p, "/")

	query := u.Query()
	if host == "youtu.be" {
		// youtu.be/<id> is the short form of youtube.com/watch?v=<id>.
		if id := strings.TrimPrefix(p, "/"); id != "" {
			host = "youtube.com"
			p = "/watch"
			query = url.Values{"v": {id}}
		}
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if identityParams[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(p)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(strings.ToLower(k)))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(query.Get(k)))
	}
	return b.String(), nil
}

// Fingerprint returns the hex SHA-256 of the canonical form of rawURL.
func Fingerprint(rawURL string) (string, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return "", err
	}
	return fingerprintOf(canonical), nil
}

func fingerprintOf(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
