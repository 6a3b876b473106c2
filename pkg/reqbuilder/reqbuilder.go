// Package reqbuilder composes the HTTP/1.1 request-line and header block
// a FetchRequest sends (§4.5): start-line, User-Agent (or a spoofed
// override), Accept/Accept-Encoding, Host, conditional and
// authentication headers, cookies, and request-body framing.
package reqbuilder

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

// DefaultUserAgent matches the original browser's identification string,
// carried forward as the default rather than adopting Go's net/http
// default (§4.5).
const DefaultUserAgent = "Mozilla/3.0 (compatible; netfetch/1.0)"

// Request holds everything reqbuilder needs to render one HTTP/1.1
// request message. Method/Body are empty for a GET.
type Request struct {
	Method         string
	URL            *urlmodel.ParsedURL
	ViaPlainProxy  bool // render an absolute-form request-target, no CONNECT tunnel
	UserAgentSpoof string
	Referer        string
	IfModifiedSince string
	IfNoneMatch    string
	Authorization  string // pre-rendered "Basic ..." value, empty if none
	ProxyAuth      string // pre-rendered Proxy-Authorization value, empty if none
	Cookie         string // pre-rendered Cookie header value, empty if none
	KeepAlive      bool
	ProxyConnKeepAlive bool // send Proxy-Connection instead of/alongside Connection when via a plain proxy
	Body           []byte
	ContentType    string
}

// Build renders the full request message, headers terminated by a blank
// line, ready to write to the connection.
func Build(r Request) []byte {
	var b strings.Builder

	method := r.Method
	if method == "" {
		method = "GET"
	}
	target := r.URL.RequestTarget(r.ViaPlainProxy)
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, target)

	fmt.Fprintf(&b, "Host: %s\r\n", r.URL.HostHeader())

	ua := DefaultUserAgent
	if r.UserAgentSpoof != "" {
		ua = fmt.Sprintf("%s (Spoofed by netfetch/1.0)", r.UserAgentSpoof)
	}
	fmt.Fprintf(&b, "User-Agent: %s\r\n", ua)

	b.WriteString("Accept: */*;q=1\r\n")
	b.WriteString("Accept-Encoding: gzip\r\n")

	if r.Referer != "" {
		fmt.Fprintf(&b, "Referer: %s\r\n", truncateReferer(r.Referer))
	}
	if r.IfModifiedSince != "" {
		fmt.Fprintf(&b, "If-Modified-Since: %s\r\n", r.IfModifiedSince)
	}
	if r.IfNoneMatch != "" {
		fmt.Fprintf(&b, "If-None-Match: %s\r\n", r.IfNoneMatch)
	}
	if r.Authorization != "" {
		fmt.Fprintf(&b, "Authorization: %s\r\n", r.Authorization)
	}
	if r.ProxyAuth != "" {
		fmt.Fprintf(&b, "Proxy-Authorization: %s\r\n", r.ProxyAuth)
	}
	if r.Cookie != "" {
		fmt.Fprintf(&b, "Cookie: %s\r\n", r.Cookie)
	}

	// A plain (non-CONNECT) proxy hop is told Proxy-Connection rather than
	// Connection for keep-alive, since some proxies strip Connection before
	// forwarding but respect the then-nonstandard Proxy-Connection header
	// (supplemented behavior, grounded on the original browser's proxy path).
	if r.ViaPlainProxy && r.ProxyConnKeepAlive {
		b.WriteString("Proxy-Connection: keep-alive\r\n")
	}
	if r.KeepAlive {
		b.WriteString("Connection: keep-alive\r\n")
	} else {
		b.WriteString("Connection: close\r\n")
	}

	if len(r.Body) > 0 {
		if r.ContentType != "" {
			fmt.Fprintf(&b, "Content-Type: %s\r\n", r.ContentType)
		}
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	}

	b.WriteString("\r\n")

	out := []byte(b.String())
	if len(r.Body) > 0 {
		out = append(out, r.Body...)
	}
	return out
}

// BasicAuthValue renders a "Basic <base64>" Authorization/Proxy-Authorization
// header value for the given credentials.
func BasicAuthValue(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// truncateReferer caps the Referer value length the same way the
// original browser's fixed-size header buffer did, rather than growing
// the request unbounded for a pathologically long prior URL.
func truncateReferer(ref string) string {
	const maxLen = 2048
	if len(ref) <= maxLen {
		return ref
	}
	return ref[:maxLen]
}
