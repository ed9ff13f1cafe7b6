// Package cookiefile reads Netscape-format cookie files.
package cookiefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// Cookie is one entry of a Netscape cookie file.
type Cookie struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	HTTPOnly          bool
	// Expires is zero for session cookies.
	Expires time.Time
	Name    string
	Value   string
}

// Jar is the parsed content of a cookie file.
type Jar struct {
	Cookies []Cookie
	// Skipped counts malformed lines that were ignored.
	Skipped int
	// Expired counts well-formed cookies dropped because they expired.
	Expired int
}

// Load reads the cookie file at path, dropping cookies expired at now.
func Load(path string, now time.Time) (*Jar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer f.Close()

	return Parse(f, now)
}

// Parse reads tab-separated cookie lines from r. Comments and blank lines are
// ignored and malformed lines are skipped without aborting the load.
func Parse(r io.Reader, now time.Time) (*Jar, error) {
	jar := &Jar{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		cookie, ok := parseLine(line)
		if !ok {
			jar.Skipped++
			continue
		}
		cookie.HTTPOnly = httpOnly

		if !cookie.Expires.IsZero() && !cookie.Expires.After(now) {
			jar.Expired++
			continue
		}
		jar.Cookies = append(jar.Cookies, cookie)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return jar, nil
}

func parseLine(line string) (Cookie, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 7 {
		return Cookie{}, false
	}
	domain := strings.TrimSpace(fields[0])
	name := strings.TrimSpace(fields[5])
	if domain == "" || name == "" {
		return Cookie{}, false
	}

	cookie := Cookie{
		Domain:            domain,
		IncludeSubdomains: strings.EqualFold(fields[1], "TRUE"),
		Path:              fields[2],
		Secure:            strings.EqualFold(fields[3], "TRUE"),
		Name:              name,
		// Values may legitimately contain tabs; keep everything after the name.
		Value: strings.Join(fields[6:], "\t"),
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}

	// A non-numeric expiry is treated as a session cookie.
	if exp, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64); err == nil && exp > 0 {
		cookie.Expires = time.Unix(exp, 0)
	}
	return cookie, true
}

// ForDomain returns the cookies that apply to any of the given registrable domains.
// A cookie domain ".instagram.com" or "instagram.com" matches "instagram.com".
func (j *Jar) ForDomain(domains ...string) []Cookie {
	var out []Cookie
	for _, c := range j.Cookies {
		host := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		for _, d := range domains {
			d = strings.ToLower(d)
			if host == d || strings.HasSuffix(host, "."+d) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
