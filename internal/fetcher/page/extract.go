package page

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the distinct post links in html, in document order,
// resolved against base and truncated to limit (no cap when limit <= 0).
func ExtractLinks(html, base string, pattern *regexp.Regexp, keepQuery bool, limit int) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		link, ok := postLink(baseURL, href, pattern, keepQuery)
		if !ok {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		links = append(links, link)
		return limit <= 0 || len(links) < limit
	})

	return links, nil
}

func postLink(base *url.URL, href string, pattern *regexp.Regexp, keepQuery bool) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if !sameSite(u.Hostname(), base.Hostname()) {
		return "", false
	}

	match := pattern.FindString(u.Path)
	if match == "" {
		return "", false
	}

	out := url.URL{Scheme: "https", Host: base.Host, Path: match}
	if keepQuery {
		out.RawQuery = u.RawQuery
	}
	return out.String(), true
}

func sameSite(host, base string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	base = strings.TrimPrefix(strings.ToLower(base), "www.")
	return host == base || strings.HasSuffix(host, "."+base) || strings.HasSuffix(base, "."+host)
}
