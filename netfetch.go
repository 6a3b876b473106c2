// Package netfetch is a multi-protocol fetch engine: HTTP/1.1 with
// keep-alive pooling and TLS, plus a Gemini/Spartan driver, all
// streaming progress to an observer.Sink as a classic browser's network
// core would (§1, §2).
package netfetch

import (
	"context"

	"github.com/mossbrook/go-netfetch/pkg/auth"
	"github.com/mossbrook/go-netfetch/pkg/certstore"
	"github.com/mossbrook/go-netfetch/pkg/cookiejar"
	"github.com/mossbrook/go-netfetch/pkg/errors"
	"github.com/mossbrook/go-netfetch/pkg/gemini"
	"github.com/mossbrook/go-netfetch/pkg/httpdriver"
	"github.com/mossbrook/go-netfetch/pkg/observer"
	"github.com/mossbrook/go-netfetch/pkg/timing"
	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

// Re-export the collaborator types a caller needs to construct a
// FetchRequest, so importing just this package is enough for the common
// case.
type (
	Sink          = observer.Sink
	Jar           = cookiejar.Jar
	TrustCallback = certstore.TrustCallback
	AuthPrompt    = auth.Prompt
	Error         = errors.Error
	Kind          = errors.Kind
	Metrics       = timing.Metrics
)

// Re-export the error kind constants callers branch on.
const (
	KindNoHost         = errors.KindNoHost
	KindNoConnect      = errors.KindNoConnect
	KindConnectTimeout = errors.KindConnectTimeout
	KindTLSHandshake   = errors.KindTLSHandshake
	KindCertDenied     = errors.KindCertDenied
	KindHeaderTooLarge = errors.KindHeaderTooLarge
	KindChunkParse     = errors.KindChunkParse
	KindGzipError      = errors.KindGzipError
	KindAuthFailed     = errors.KindAuthFailed
	KindRedirectLoop   = errors.KindRedirectLoop
	KindCancelled      = errors.KindCancelled
	KindProtocol       = errors.KindProtocol
)

// FetchRequest describes one fetch, for either the http(s):// or
// gemini://\spartan:// driver depending on the URL's scheme (§3).
type FetchRequest struct {
	URL            string
	Method         string
	Body           []byte
	ContentType    string
	Referer        string
	UserAgentSpoof string
	ProxyHost      string
	ProxyPort      int
	ProxyPlain     bool
	AuthPrompt     AuthPrompt
	TrustPrompt    TrustCallback
	Jar            Jar
}

// Result is the terminal outcome reported back to the caller in
// addition to whatever was already streamed to the Sink.
type Result struct {
	StatusCode int
	Headers    map[string][]string
	Timing     timing.Metrics
}

// Fetcher is the process-wide network core: one connection pool, one
// certificate trust store, shared across every FetchRequest it runs
// (§3, §5).
type Fetcher struct {
	http *httpdriver.Driver
}

// New returns a Fetcher with a fresh connection pool and trust store.
func New() *Fetcher {
	return &Fetcher{http: httpdriver.New()}
}

// Do runs req to completion on the calling goroutine (§5: one goroutine
// per FetchRequest, blocking I/O throughout), streaming progress to
// sink and returning the terminal Result or a *Error on failure.
func (f *Fetcher) Do(ctx context.Context, req FetchRequest, sink observer.Sink) (*Result, error) {
	if sink == nil {
		sink = observer.Discard
	}

	u, err := urlmodel.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		res, err := f.http.Fetch(ctx, httpdriver.Request{
			URL: req.URL, Method: req.Method, Body: req.Body, ContentType: req.ContentType,
			Referer: req.Referer, UserAgentSpoof: req.UserAgentSpoof,
			ProxyHost: req.ProxyHost, ProxyPort: req.ProxyPort, ProxyPlain: req.ProxyPlain,
			AuthPrompt: req.AuthPrompt, TrustPrompt: req.TrustPrompt, Jar: req.Jar,
		}, sink)
		if err != nil {
			return nil, err
		}
		return &Result{StatusCode: res.StatusCode, Headers: res.Headers, Timing: res.Timing}, nil

	case "gemini", "spartan":
		res, err := gemini.Fetch(ctx, req.URL, f.http.Trust, req.TrustPrompt, sink)
		if err != nil {
			return nil, err
		}
		return &Result{StatusCode: res.StatusCode}, nil

	default:
		return nil, errors.NewValidationError("unsupported scheme: " + u.Scheme)
	}
}

// PoolIdleCount reports the number of currently idle keep-alive
// connections, for diagnostics and tests.
func (f *Fetcher) PoolIdleCount() int {
	return f.http.Pool.Len()
}
