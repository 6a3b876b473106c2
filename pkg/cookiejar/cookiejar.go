// Package cookiejar defines the external cookie-store collaborator
// (§6) the HTTP driver consults on every request and update on every
// Set-Cookie response header, plus a reference in-memory implementation
// for tests and the CLI driver.
package cookiejar

import (
	"strings"
	"sync"
	"time"

	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

// Jar is the collaborator interface the HTTP driver calls through. A
// caller-supplied implementation may persist to disk or prompt the user;
// the driver only needs these two operations.
type Jar interface {
	// CookieHeader returns the Cookie request-header value to send for u
	// (empty string if there are none), given whether the connection is
	// TLS-protected (secure-only cookies are withheld over plaintext).
	CookieHeader(u *urlmodel.ParsedURL, isTLS bool) string

	// Store records one Set-Cookie header value received from u. serverDate
	// is the response's Date header (or the local clock if absent), used to
	// interpret a relative Max-Age consistently with the rest of the driver.
	Store(u *urlmodel.ParsedURL, setCookieValue string, serverDate time.Time)
}

type cookie struct {
	name, value string
	domain      string
	path        string
	expires     time.Time // zero means session-only
	secure      bool
}

func (c cookie) expired(now time.Time) bool {
	return !c.expires.IsZero() && now.After(c.expires)
}

func (c cookie) appliesTo(host, path string, isTLS bool) bool {
	if c.secure && !isTLS {
		return false
	}
	if !strings.HasSuffix(host, c.domain) {
		return false
	}
	return strings.HasPrefix(path, c.path)
}

// MemJar is a minimal in-process Jar, grouped by normalized cookie domain
// (the request host unless a Domain attribute named a parent domain).
type MemJar struct {
	mu     sync.Mutex
	byHost map[string][]cookie
}

// NewMemJar returns an empty in-memory cookie jar.
func NewMemJar() *MemJar {
	return &MemJar{byHost: make(map[string][]cookie)}
}

func (j *MemJar) CookieHeader(u *urlmodel.ParsedURL, isTLS bool) string {
	host := urlmodel.NormalizeHost(u.Host)
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()

	var parts []string
	for d := host; d != ""; {
		if cs, ok := j.byHost[d]; ok {
			kept := cs[:0]
			for _, c := range cs {
				if c.expired(now) {
					continue
				}
				kept = append(kept, c)
				if c.appliesTo(host, u.Path, isTLS) {
					parts = append(parts, c.name+"="+c.value)
				}
			}
			j.byHost[d] = kept
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return strings.Join(parts, "; ")
}

func (j *MemJar) Store(u *urlmodel.ParsedURL, setCookieValue string, serverDate time.Time) {
	c := parseSetCookie(setCookieValue, u, serverDate)
	if c == nil {
		return
	}
	host := c.domain

	j.mu.Lock()
	defer j.mu.Unlock()
	existing := j.byHost[host]
	for i, old := range existing {
		if old.name == c.name && old.path == c.path {
			existing[i] = *c
			j.byHost[host] = existing
			return
		}
	}
	j.byHost[host] = append(existing, *c)
}

// parseSetCookie interprets one Set-Cookie header value. Unrecognized
// attributes are ignored rather than rejected, matching how real servers'
// extra attributes (SameSite, HttpOnly, ...) are harmless to a client
// that doesn't act on them.
func parseSetCookie(raw string, u *urlmodel.ParsedURL, serverDate time.Time) *cookie {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return nil
	}
	nv := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nv) != 2 || nv[0] == "" {
		return nil
	}
	c := &cookie{name: nv[0], value: nv[1], domain: urlmodel.NormalizeHost(u.Host), path: "/"}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		kv := strings.SplitN(attr, "=", 2)
		key := strings.ToLower(kv[0])
		var val string
		if len(kv) == 2 {
			val = kv[1]
		}
		switch key {
		case "domain":
			if val != "" {
				c.domain = urlmodel.NormalizeHost(strings.TrimPrefix(val, "."))
			}
		case "path":
			if val != "" {
				c.path = val
			}
		case "secure":
			c.secure = true
		case "max-age":
			if secs, err := time.ParseDuration(val + "s"); err == nil {
				c.expires = serverDate.Add(secs)
			}
		case "expires":
			if t, err := time.Parse(time.RFC1123, val); err == nil {
				c.expires = t
			}
		}
	}
	return c
}
