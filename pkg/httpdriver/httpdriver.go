// Package httpdriver runs one FetchRequest through the HTTP/1.1 state
// machine (§4.9): connection acquisition, send, response dispatch,
// redirects, authentication retries, and the keep-alive
// return-to-pool-or-destroy decision, streaming progress to an
// observer.Sink as it goes.
package httpdriver

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mossbrook/go-netfetch/pkg/auth"
	"github.com/mossbrook/go-netfetch/pkg/certstore"
	"github.com/mossbrook/go-netfetch/pkg/chunked"
	"github.com/mossbrook/go-netfetch/pkg/connpool"
	"github.com/mossbrook/go-netfetch/pkg/constants"
	"github.com/mossbrook/go-netfetch/pkg/cookiejar"
	"github.com/mossbrook/go-netfetch/pkg/errors"
	"github.com/mossbrook/go-netfetch/pkg/gzipstream"
	"github.com/mossbrook/go-netfetch/pkg/observer"
	"github.com/mossbrook/go-netfetch/pkg/reqbuilder"
	"github.com/mossbrook/go-netfetch/pkg/respreader"
	"github.com/mossbrook/go-netfetch/pkg/sockio"
	"github.com/mossbrook/go-netfetch/pkg/timing"
	"github.com/mossbrook/go-netfetch/pkg/tlssession"
	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

// Request describes one fetch from the caller's point of view.
type Request struct {
	URL            string
	Method         string
	Body           []byte
	ContentType    string
	Referer        string
	UserAgentSpoof string
	ProxyHost      string // empty means direct connection
	ProxyPort      int
	ProxyPlain     bool // true: plain forward proxy (no CONNECT tunnel); false: tunnel
	AuthPrompt     auth.Prompt
	TrustPrompt    certstore.TrustCallback
	Jar            cookiejar.Jar
}

// Driver owns the long-lived collaborators shared across FetchRequests:
// the connection pool and the certificate trust store. Both are safe for
// concurrent use by the one-goroutine-per-request model (§5).
type Driver struct {
	Pool  *connpool.Pool
	Trust *certstore.Store
}

// New returns a Driver with a fresh pool and trust store.
func New() *Driver {
	return &Driver{Pool: connpool.New(), Trust: certstore.New()}
}

// Result is the terminal outcome of Fetch, mirroring what the observer
// was already told via Sink.Update but convenient for a caller that just
// wants the final status.
type Result struct {
	StatusCode int
	Headers    map[string][]string
	Timing     timing.Metrics
}

// Fetch runs req to completion on the calling goroutine — one goroutine
// per FetchRequest, blocking on network I/O throughout (§5). sink
// receives every observer update; it may be observer.Discard.
func (d *Driver) Fetch(ctx context.Context, req Request, sink observer.Sink) (*Result, error) {
	u, err := urlmodel.Parse(req.URL)
	if err != nil {
		sink.Update(observer.Error, err.Error())
		return nil, err
	}

	var (
		redirects       int
		tracker         = auth.NewTracker(req.AuthPrompt)
		proxyTracker    = auth.NewTracker(req.AuthPrompt)
		referer         = req.Referer
		method          = req.Method
		body            = req.Body
		authHeader      string
		proxyAuthHeader string
		timer           = timing.NewTimer()
	)
	if method == "" {
		method = "GET"
	}

	for {
		out, err := d.attempt(ctx, attemptArgs{
			url: u, method: method, body: body, req: req, referer: referer,
			tracker: tracker, proxyTracker: proxyTracker,
			authHeader: authHeader, proxyAuthHeader: proxyAuthHeader,
			timer: timer,
		}, sink)
		if err != nil {
			sink.Update(observer.Error, err.Error())
			return nil, err
		}
		if !out.again {
			out.result.Timing = timer.GetMetrics()
			sink.Update(observer.Timing, out.result.Timing)
			sink.Update(observer.Eof, true)
			return out.result, nil
		}

		if out.isRetrySameURL {
			// Auth retries are bounded separately, by auth.Tracker's
			// once-per-realm map; they don't count against the redirect cap.
			authHeader = out.authHeader
			proxyAuthHeader = out.proxyAuthHeader
			continue
		}

		redirects++
		if redirects > constants.MaxRedirects {
			err := errors.NewRedirectLoop(redirects)
			sink.Update(observer.Error, err.Error())
			return nil, err
		}
		referer = u.Absolute()
		u = out.nextURL
		if out.resetToGet {
			method = "GET" // 303 rewrites method to GET and drops body (§4.9)
			body = nil
		}
		authHeader, proxyAuthHeader = "", ""
	}
}

type attemptArgs struct {
	url             *urlmodel.ParsedURL
	method          string
	body            []byte
	req             Request
	referer         string
	tracker         *auth.Tracker
	proxyTracker    *auth.Tracker
	authHeader      string
	proxyAuthHeader string
	timer           *timing.Timer
	forceFresh      bool // skip the pool: this is the one stale-reuse retry
}

type attemptOutcome struct {
	result          *Result
	again           bool
	nextURL         *urlmodel.ParsedURL
	resetToGet      bool // 303 only: redirected request drops to GET/no body
	isRetrySameURL  bool
	authHeader      string
	proxyAuthHeader string
}

// attempt performs one request/response round trip: acquire-or-dial a
// connection, send, read the response, and decide whether the driver
// should loop again (redirect or auth retry) or return a final Result.
func (d *Driver) attempt(ctx context.Context, a attemptArgs, sink observer.Sink) (attemptOutcome, error) {
	u, method, body, req, referer := a.url, a.method, a.body, a.req, a.referer
	tracker, proxyTracker := a.tracker, a.proxyTracker

	isTLS := u.Scheme == "https"
	connHost, connPort := u.Host, u.EffectivePort()
	viaPlainProxy := req.ProxyHost != "" && req.ProxyPlain
	if req.ProxyHost != "" && !req.ProxyPlain {
		connHost, connPort = req.ProxyHost, req.ProxyPort
	} else if viaPlainProxy {
		connHost, connPort = req.ProxyHost, req.ProxyPort
	}

	key := connpool.KeyFor(connHost, connPort, isTLS && !viaPlainProxy)
	var conn *connpool.Connection
	var reused bool
	if !a.forceFresh {
		conn, reused = d.Pool.Acquire(key)
	}

	var rawConn net.Conn
	if reused {
		rawConn = conn.Conn
		sink.Update(observer.NetStatus, observer.StatusSending)
	} else {
		sink.Update(observer.NetStatus, observer.StatusResolving)
		a.timer.StartTCP()
		nc, err := sockio.Connect(ctx, connHost, connPort)
		a.timer.EndTCP()
		if err != nil {
			return attemptOutcome{}, err
		}
		timed := sockio.NewTimedConn(nc)

		sink.Update(observer.NetStatus, observer.StatusConnecting)

		var meta interface{}
		var finalConn net.Conn = timed
		if isTLS && !viaPlainProxy {
			sink.Update(observer.NetStatus, observer.StatusHandshaking)
			a.timer.StartTLS()
			tlsConn, tlsMeta, err := tlssession.Dial(ctx, nc, u.Host, u.EffectivePort(), d.Trust, req.TrustPrompt)
			a.timer.EndTLS()
			if err != nil {
				_ = nc.Close()
				return attemptOutcome{}, err
			}
			sink.Update(observer.Cipher, tlsMeta.CipherSuite)
			sink.Update(observer.SSLLibrary, tlsMeta.Version)
			finalConn = sockio.NewTimedConn(tlsConn)
			meta = tlsMeta
		}
		conn = &connpool.Connection{Conn: finalConn, Key: key, Created: time.Now(), Meta: meta}
		rawConn = finalConn
		sink.Update(observer.NetStatus, observer.StatusSending)
	}

	cookieHeader := ""
	if req.Jar != nil {
		cookieHeader = req.Jar.CookieHeader(u, isTLS)
	}

	rendered := reqbuilder.Build(reqbuilder.Request{
		Method:             method,
		URL:                u,
		ViaPlainProxy:      viaPlainProxy,
		UserAgentSpoof:     req.UserAgentSpoof,
		Referer:            referer,
		Authorization:      a.authHeader,
		ProxyAuth:          a.proxyAuthHeader,
		Cookie:             cookieHeader,
		KeepAlive:          true,
		ProxyConnKeepAlive: viaPlainProxy,
		Body:               body,
		ContentType:        req.ContentType,
	})

	a.timer.StartTTFB()
	if _, err := rawConn.Write(rendered); err != nil {
		_ = rawConn.Close()
		if reused && !a.forceFresh {
			return d.retryFresh(ctx, a, sink)
		}
		return attemptOutcome{}, errors.NewIOError("write request", err)
	}

	sink.Update(observer.NetStatus, observer.StatusWaiting)
	br := bufio.NewReader(rawConn)
	st, err := respreader.Read(br)
	a.timer.EndTTFB()
	if err != nil {
		_ = rawConn.Close()
		if reused && !a.forceFresh && errors.IsEOF(err) {
			return d.retryFresh(ctx, a, sink)
		}
		return attemptOutcome{}, err
	}
	sink.Update(observer.NetStatus, observer.StatusReceiving)
	reportHeaders(st, sink)

	if req.Jar != nil {
		serverDate := parseServerDate(st.Get("Date"))
		for _, sc := range st.Values("Set-Cookie") {
			req.Jar.Store(u, sc, serverDate)
		}
	}

	keepAliveOK := !strings.EqualFold(st.Get("Connection"), "close") && st.HTTPVersion != "HTTP/1.0"

	switch {
	case st.StatusCode == 304:
		sink.Update(observer.NotModified, true)
		drainAndRelease(d, rawConn, conn, br, st, keepAliveOK, sink)
		return attemptOutcome{result: &Result{StatusCode: st.StatusCode, Headers: st.Headers}}, nil

	case st.StatusCode == 301 || st.StatusCode == 302 || st.StatusCode == 303 || st.StatusCode == 307 || st.StatusCode == 308:
		loc := st.Get("Location")
		drainAndRelease(d, rawConn, conn, br, st, keepAliveOK, sink)
		if loc == "" {
			return attemptOutcome{result: &Result{StatusCode: st.StatusCode, Headers: st.Headers}}, nil
		}
		next, err := u.Resolve(loc)
		if err != nil {
			return attemptOutcome{}, err
		}
		switch st.StatusCode {
		case 301, 308:
			sink.Update(observer.MovedTo, next.Absolute())
		case 302, 307:
			sink.Update(observer.TempMovedTo, next.Absolute())
		case 303:
			sink.Update(observer.SeeOther, next.Absolute())
		}
		// Only 303 rewrites the retry to GET with no body; 301/302/307/308
		// all preserve the original request's method and body (RFC 9110
		// §15.4 — 307/308 are defined specifically to do so).
		return attemptOutcome{again: true, nextURL: next, resetToGet: st.StatusCode == 303}, nil

	case st.StatusCode == 401 || st.StatusCode == 407:
		proxy := st.StatusCode == 407
		realm := parseRealm(st.Get(authChallengeHeader(proxy)))
		drainAndRelease(d, rawConn, conn, br, st, keepAliveOK, sink)

		t := tracker
		if proxy {
			t = proxyTracker
		}
		creds, ok := t.Resolve(u.Host, realm, proxy)
		if !ok {
			return attemptOutcome{}, errors.NewAuthFailed(proxy)
		}
		out := attemptOutcome{again: true, isRetrySameURL: true, authHeader: a.authHeader, proxyAuthHeader: a.proxyAuthHeader}
		if proxy {
			out.proxyAuthHeader = reqbuilder.BasicAuthValue(creds.Username, creds.Password)
		} else {
			out.authHeader = reqbuilder.BasicAuthValue(creds.Username, creds.Password)
		}
		return out, nil

	default:
		if method == "POST" && (st.StatusCode == 405 || st.StatusCode == 500 || st.StatusCode == 501) {
			sink.Update(observer.PostNoGood, st.StatusCode)
		}
		if err := streamBody(rawConn, br, st, sink); err != nil {
			_ = rawConn.Close()
			return attemptOutcome{}, err
		}
		releaseOrClose(d, rawConn, conn, keepAliveOK)
		return attemptOutcome{result: &Result{StatusCode: st.StatusCode, Headers: st.Headers}}, nil
	}
}

// retryFresh destroys a pooled connection that turned out to be dead
// (the peer closed it silently between requests) and replays the same
// attempt exactly once against a newly dialed Connection. forceFresh on
// the replay guarantees this never recurses past one retry.
func (d *Driver) retryFresh(ctx context.Context, a attemptArgs, sink observer.Sink) (attemptOutcome, error) {
	a.forceFresh = true
	return d.attempt(ctx, a, sink)
}

func authChallengeHeader(proxy bool) string {
	if proxy {
		return "Proxy-Authenticate"
	}
	return "WWW-Authenticate"
}

func parseRealm(challenge string) string {
	idx := strings.Index(strings.ToLower(challenge), "realm=")
	if idx < 0 {
		return ""
	}
	rest := challenge[idx+len("realm="):]
	rest = strings.TrimPrefix(rest, `"`)
	if end := strings.IndexByte(rest, '"'); end >= 0 {
		return rest[:end]
	}
	if end := strings.IndexByte(rest, ','); end >= 0 {
		return rest[:end]
	}
	return rest
}

func parseServerDate(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC1123, raw); err == nil {
		return t
	}
	return time.Now()
}

func reportHeaders(st *respreader.State, sink observer.Sink) {
	for name, values := range st.Headers {
		for _, v := range values {
			sink.Update(observer.Header, name+": "+v)
		}
	}
	if cl := st.Get("Content-Length"); cl != "" {
		sink.Update(observer.ContentLength, cl)
	}
	if ct := st.Get("Content-Type"); ct != "" {
		sink.Update(observer.ContentType, ct)
	}
	if d := st.Get("Date"); d != "" {
		sink.Update(observer.ServerDate, d)
	}
	if lm := st.Get("Last-Modified"); lm != "" {
		sink.Update(observer.LastModified, lm)
	}
	if exp := st.Get("Expires"); exp != "" {
		sink.Update(observer.Expires, exp)
	}
	if et := st.Get("ETag"); et != "" {
		sink.Update(observer.ETag, et)
	}
	if cc := st.Get("Cache-Control"); cc != "" {
		lower := strings.ToLower(cc)
		if strings.Contains(lower, "no-cache") || strings.Contains(lower, "no-store") {
			sink.Update(observer.NoCache, true)
		}
		if idx := strings.Index(lower, "max-age="); idx >= 0 {
			rest := lower[idx+len("max-age="):]
			end := strings.IndexAny(rest, ", ")
			if end < 0 {
				end = len(rest)
			}
			if secs, err := strconv.Atoi(rest[:end]); err == nil {
				sink.Update(observer.MaxAge, secs)
			}
		}
	}
	if cd := st.Get("Content-Disposition"); cd != "" {
		if idx := strings.Index(cd, "filename="); idx >= 0 {
			name := strings.Trim(cd[idx+len("filename="):], `"`)
			sink.Update(observer.Filename, name)
		}
	}
	if refresh := st.Get("Refresh"); refresh != "" {
		sink.Update(observer.ClientPull, refresh)
	}
}

// streamBody decodes the response body per its framing (chunked / fixed
// Content-Length / until-close) and gzip content-encoding if present,
// pushing each chunk to sink as observer.Data.
func streamBody(conn net.Conn, br *bufio.Reader, st *respreader.State, sink observer.Sink) error {
	if respreader.HasNoBody(st.StatusCode) && br.Buffered() == 0 {
		return nil
	}

	var bodyReader io.Reader
	transferEncoding := strings.ToLower(st.Get("Transfer-Encoding"))
	contentLength := st.Get("Content-Length")

	var framedSrc io.Reader // the framing reader gzip (if any) was built on
	declaredLen := int64(-1)
	switch {
	case strings.Contains(transferEncoding, "chunked"):
		cr := chunked.NewReader(br)
		framedSrc = cr
		bodyReader = cr
	case contentLength != "":
		n, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
		if err != nil || n < 0 || n > constants.MaxContentLength {
			return errors.NewProtocolError("invalid content-length", err)
		}
		declaredLen = n
		lr := io.LimitReader(br, n)
		framedSrc = lr
		bodyReader = lr
	default:
		bodyReader = br
	}

	var gz *gzipstream.Reader
	if strings.Contains(strings.ToLower(st.Get("Content-Encoding")), "gzip") {
		var err error
		gz, err = gzipstream.NewReader(bodyReader)
		if err != nil {
			return err
		}
		bodyReader = gz
		defer gz.Close()
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := bodyReader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			sink.Update(observer.DataLength, n)
			sink.Update(observer.Data, chunk)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if gz != nil && framedSrc != nil {
		// gzip.Reader reports io.EOF as soon as it has read its own trailer,
		// which can leave bytes unread on the framing below it: a chunked
		// terminator, or the remainder of a declared Content-Length. Drain
		// whichever framing wrapped it so the socket is left at the next
		// response's boundary. Drain pulls those bytes directly off
		// framedSrc, bypassing the Reader's own counting, so the compressed
		// total is the sum of what gzip had already counted plus what Drain
		// discarded afterward.
		alreadyCounted := gz.CompressedBytesRead()
		drained, err := gzipstream.Drain(framedSrc)
		if err != nil {
			return err
		}
		if total := alreadyCounted + drained; declaredLen >= 0 && total != declaredLen {
			return errors.NewContentLengthShort(declaredLen, total)
		}
	}
	return nil
}

func drainAndRelease(d *Driver, conn net.Conn, pc *connpool.Connection, br *bufio.Reader, st *respreader.State, keepAliveOK bool, sink observer.Sink) {
	_ = streamBody(conn, br, st, observer.Discard)
	releaseOrClose(d, conn, pc, keepAliveOK)
}

func releaseOrClose(d *Driver, conn net.Conn, pc *connpool.Connection, keepAliveOK bool) {
	if !keepAliveOK {
		_ = conn.Close()
		return
	}
	if evicted := d.Pool.Release(pc, true); evicted != nil {
		_ = evicted.Close()
	}
}
