// Package urlmodel implements the ParsedURL type shared by the HTTP and
// Gemini/Spartan drivers: parsing, host normalization, request-target
// rendering, and RFC 3986 relative resolution.
package urlmodel

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mossbrook/go-netfetch/pkg/errors"
	"golang.org/x/net/idna"
)

// ParsedURL is the shared URL representation for http(s), gemini, and
// spartan fetches (§3). Percent-encoding on Path/Query is preserved
// exactly as given; Host is percent-decoded before DNS resolution.
type ParsedURL struct {
	Raw      string
	Scheme   string
	User     string
	Password string
	HasUser  bool
	Host     string
	Port     int // 0 means "use scheme default"
	Path     string
	Query    string
}

// Parse parses raw into a ParsedURL, enforcing the §3 invariant that Host
// is non-empty and contains neither ':' nor '/'.
func Parse(raw string) (*ParsedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid URL %q: %v", raw, err))
	}
	if u.Host == "" {
		return nil, errors.NewValidationError(fmt.Sprintf("URL %q has no host", raw))
	}

	host := u.Hostname()
	if strings.ContainsAny(host, ":/") {
		return nil, errors.NewValidationError(fmt.Sprintf("host %q contains ':' or '/'", host))
	}

	decodedHost, err := url.PathUnescape(host)
	if err != nil {
		decodedHost = host
	}
	if ascii, err := idna.Lookup.ToASCII(decodedHost); err == nil {
		decodedHost = ascii
	}

	p := &ParsedURL{
		Raw:    raw,
		Scheme: strings.ToLower(u.Scheme),
		Host:   decodedHost,
		Path:   u.EscapedPath(),
		Query:  u.RawQuery,
	}
	if u.User != nil {
		p.HasUser = true
		p.User = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid port %q", portStr))
		}
		p.Port = port
	}
	if p.Path == "" {
		p.Path = "/"
	}
	return p, nil
}

// DefaultPort returns the scheme's conventional port.
func (p *ParsedURL) DefaultPort() int {
	switch p.Scheme {
	case "https":
		return 443
	case "http":
		return 80
	case "gemini":
		return 1965
	case "spartan":
		return 300
	default:
		return 0
	}
}

// EffectivePort returns Port if set, else DefaultPort.
func (p *ParsedURL) EffectivePort() int {
	if p.Port != 0 {
		return p.Port
	}
	return p.DefaultPort()
}

// IsDefaultPort reports whether EffectivePort equals the scheme default.
func (p *ParsedURL) IsDefaultPort() bool {
	return p.Port == 0 || p.Port == p.DefaultPort()
}

// PathAndQuery renders the absolute-path-with-query exactly as it appeared
// (percent-encoding preserved), used for the request-target of a direct
// connection and for Gemini/Spartan request lines.
func (p *ParsedURL) PathAndQuery() string {
	s := p.Path
	if s == "" {
		s = "/"
	}
	if p.Query != "" {
		s += "?" + p.Query
	}
	return s
}

// HostHeader renders "host[:port]" exactly as it would appear in a Host
// header: the port is included only when it is non-default.
func (p *ParsedURL) HostHeader() string {
	if p.IsDefaultPort() {
		return p.Host
	}
	return fmt.Sprintf("%s:%d", p.Host, p.EffectivePort())
}

// Absolute renders the full absolute URL, used as the request-target when
// fetching through a forward proxy without a TLS tunnel.
func (p *ParsedURL) Absolute() string {
	s := p.Scheme + "://" + p.HostHeader() + p.PathAndQuery()
	return s
}

// NormalizeHost lowercases host and strips a single leading "www." so
// "www.example.com" and "example.com" address the same pool bucket (§3,
// §8: normalize_host("www.X") == normalize_host("X") for any X != "www.").
func NormalizeHost(host string) string {
	h := strings.ToLower(host)
	const prefix = "www."
	if strings.HasPrefix(h, prefix) && h != prefix {
		return strings.TrimPrefix(h, prefix)
	}
	return h
}

// RequestTarget renders the request-target for the start-line: the
// absolute path+query for a direct connection, or the full absolute form
// when routed through a forward proxy without a TLS tunnel (§4.5, §8
// round-trip property).
func (p *ParsedURL) RequestTarget(viaPlainProxy bool) string {
	if viaPlainProxy {
		return p.Absolute()
	}
	return p.PathAndQuery()
}

// Resolve resolves ref against base per RFC 3986 §5.2, used by the
// HTTP redirect loop (relative Location headers) and the Gemini/Spartan
// driver's "=>" link resolution. A base with no path is treated as "/".
func (p *ParsedURL) Resolve(ref string) (*ParsedURL, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid reference URL %q: %v", ref, err))
	}
	if refURL.IsAbs() {
		return Parse(ref)
	}

	out := *p
	out.Raw = ref

	if refURL.Host != "" {
		out.Host = refURL.Hostname()
		out.Port = 0
		if portStr := refURL.Port(); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				out.Port = port
			}
		}
	}

	switch {
	case refURL.Path == "" && refURL.RawQuery == "":
		// Same path and query as base.
	case refURL.Path == "":
		out.Query = refURL.RawQuery
	case strings.HasPrefix(refURL.Path, "/"):
		out.Path = RemoveDotSegments(refURL.Path)
		out.Query = refURL.RawQuery
	default:
		out.Path = RemoveDotSegments(mergePaths(p.Path, refURL.Path))
		out.Query = refURL.RawQuery
	}
	if out.Path == "" {
		out.Path = "/"
	}
	return &out, nil
}

// mergePaths implements RFC 3986 §5.3's merge step for a relative-path
// reference against a base that has an authority component.
func mergePaths(basePath, refPath string) string {
	if basePath == "" {
		return "/" + refPath
	}
	idx := strings.LastIndexByte(basePath, '/')
	if idx < 0 {
		return refPath
	}
	return basePath[:idx+1] + refPath
}

// RemoveDotSegments implements RFC 3986 §5.2.4. It is idempotent:
// RemoveDotSegments(RemoveDotSegments(p)) == RemoveDotSegments(p) (§8).
func RemoveDotSegments(path string) string {
	var out []string
	input := path
	for input != "" {
		switch {
		case strings.HasPrefix(input, "../"):
			input = input[3:]
		case strings.HasPrefix(input, "./"):
			input = input[2:]
		case strings.HasPrefix(input, "/./"):
			input = "/" + input[3:]
		case input == "/.":
			input = "/"
		case strings.HasPrefix(input, "/../"):
			input = "/" + input[4:]
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case input == "/..":
			input = "/"
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case input == "." || input == "..":
			input = ""
		default:
			// Move the first path segment (including its leading "/", if
			// any) from input to the output buffer.
			rest := input
			if strings.HasPrefix(rest, "/") {
				rest = rest[1:]
			}
			idx := strings.IndexByte(rest, '/')
			var seg string
			if idx < 0 {
				seg = input
				input = ""
			} else {
				cut := len(input) - len(rest) + idx
				seg = input[:cut]
				input = input[cut:]
			}
			out = append(out, seg)
		}
	}
	return strings.Join(out, "")
}
