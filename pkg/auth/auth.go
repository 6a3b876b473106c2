// Package auth implements HTTP Basic authentication bookkeeping (§4.9):
// realm-keyed credentials, the once-per-realm retry rule that turns a
// second 401/407 for the same realm into KindAuthFailed rather than a
// second prompt, and the Authorization/Proxy-Authorization header value.
package auth

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// Credentials is one username/password pair the caller's prompt supplied
// for a realm.
type Credentials struct {
	Username string
	Password string
}

// BasicHeader renders the Authorization/Proxy-Authorization header value
// for c.
func (c Credentials) BasicHeader() string {
	raw := c.Username + ":" + c.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Prompt asks the caller for credentials for (host, realm), proxy
// distinguishing a proxy challenge (Proxy-Authenticate) from an origin
// challenge (WWW-Authenticate). ok is false if the user cancels.
type Prompt func(host, realm string, proxy bool) (Credentials, bool)

// Tracker records which realms have already been prompted for during one
// FetchRequest, so a server that challenges again after accepting the
// first answer is treated as a failure rather than an infinite prompt
// loop (§4.9: "retry at most once per realm").
type Tracker struct {
	mu     sync.Mutex
	tried  map[string]bool
	prompt Prompt
}

// NewTracker returns a Tracker that calls prompt at most once per realm
// key for the lifetime of the Tracker (one FetchRequest).
func NewTracker(prompt Prompt) *Tracker {
	return &Tracker{tried: make(map[string]bool), prompt: prompt}
}

// Resolve returns credentials for (host, realm, proxy) the first time
// it's asked; a second call for the same key returns ok=false without
// re-prompting, signaling the driver to fail with KindAuthFailed /
// KindProxyAuthFailed instead of looping.
func (t *Tracker) Resolve(host, realm string, proxy bool) (Credentials, bool) {
	key := realmKey(host, realm, proxy)

	t.mu.Lock()
	if t.tried[key] {
		t.mu.Unlock()
		return Credentials{}, false
	}
	t.tried[key] = true
	t.mu.Unlock()

	if t.prompt == nil {
		return Credentials{}, false
	}
	return t.prompt(host, realm, proxy)
}

func realmKey(host, realm string, proxy bool) string {
	return fmt.Sprintf("%v|%s|%s", proxy, host, realm)
}
