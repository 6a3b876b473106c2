// Package gemini implements the Gemini and Spartan driver (§4.10): a
// single-line request, a two-digit status code plus META line, and a
// text/gemini-to-HTML streaming converter so the rest of the pipeline
// (render, history, links) can treat every fetch as HTML.
package gemini

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mossbrook/go-netfetch/pkg/certstore"
	"github.com/mossbrook/go-netfetch/pkg/constants"
	"github.com/mossbrook/go-netfetch/pkg/errors"
	"github.com/mossbrook/go-netfetch/pkg/observer"
	"github.com/mossbrook/go-netfetch/pkg/sockio"
	"github.com/mossbrook/go-netfetch/pkg/tlssession"
	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

// StatusBucket categorizes a Gemini/Spartan two-digit status code into
// the ranges the driver dispatches on (§4.10).
type StatusBucket int

const (
	BucketInput StatusBucket = iota
	BucketSuccess
	BucketRedirect
	BucketTempError
	BucketPermError
	BucketCertRequired
	BucketUnknown
)

func bucketOf(code int) StatusBucket {
	switch {
	case code >= 10 && code < 20:
		return BucketInput
	case code >= 20 && code < 30:
		return BucketSuccess
	case code >= 30 && code < 40:
		return BucketRedirect
	case code >= 40 && code < 50:
		return BucketTempError
	case code >= 50 && code < 60:
		return BucketPermError
	case code >= 60 && code < 70:
		return BucketCertRequired
	default:
		return BucketUnknown
	}
}

// Result is the outcome of one Fetch call.
type Result struct {
	StatusCode  int
	Meta        string
	ContentType string
}

// Fetch performs one Gemini or Spartan request and streams the
// (possibly converted-to-HTML) body to sink. Redirects are followed
// internally up to constants.MaxGeminiRedirects, matching the §4.10
// contract that a caller sees one terminal outcome.
func Fetch(ctx context.Context, rawURL string, trust *certstore.Store, prompt certstore.TrustCallback, sink observer.Sink) (*Result, error) {
	u, err := urlmodel.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	for redirects := 0; ; redirects++ {
		if redirects > constants.MaxGeminiRedirects {
			return nil, errors.NewRedirectLoop(redirects)
		}
		res, next, err := attempt(ctx, u, trust, prompt, sink)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return res, nil
		}
		u = next
	}
}

func attempt(ctx context.Context, u *urlmodel.ParsedURL, trust *certstore.Store, prompt certstore.TrustCallback, sink observer.Sink) (*Result, *urlmodel.ParsedURL, error) {
	isSpartan := u.Scheme == "spartan"

	sink.Update(observer.NetStatus, observer.StatusConnecting)
	nc, err := sockio.Connect(ctx, u.Host, u.EffectivePort())
	if err != nil {
		return nil, nil, err
	}
	conn := sockio.NewTimedConn(nc)
	defer conn.Close()

	var rw = struct {
		read  func([]byte) (int, error)
		write func([]byte) (int, error)
	}{conn.Read, conn.Write}

	if !isSpartan {
		sink.Update(observer.NetStatus, observer.StatusHandshaking)
		tlsConn, _, err := tlssession.Dial(ctx, nc, u.Host, u.EffectivePort(), trust, prompt)
		if err != nil {
			return nil, nil, err
		}
		defer tlsConn.Close()
		timedTLS := sockio.NewTimedConn(tlsConn)
		rw.read, rw.write = timedTLS.Read, timedTLS.Write
	}

	reqLine := requestLine(u, isSpartan)
	if _, err := rw.write([]byte(reqLine)); err != nil {
		return nil, nil, errors.NewIOError("write gemini request", err)
	}

	br := bufio.NewReaderSize(readerFunc(rw.read), 4096)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		return nil, nil, errors.NewProtocolError("reading gemini status line", err)
	}
	code, meta, err := parseStatusLine(strings.TrimRight(statusLine, "\r\n"), isSpartan)
	if err != nil {
		return nil, nil, err
	}

	switch bucketOf(code) {
	case BucketSuccess:
		contentType := meta
		if contentType == "" {
			contentType = "text/gemini"
		}
		isText := strings.HasPrefix(contentType, "text/gemini") || (isSpartan && strings.HasPrefix(contentType, "text/"))
		if isText {
			sink.Update(observer.ContentType, "text/html")
			sink.Update(observer.ContentScriptType, contentType)
			streamAsHTML(br, u, sink)
		} else {
			sink.Update(observer.ContentType, contentType)
			streamRaw(br, sink)
		}
		return &Result{StatusCode: code, Meta: meta, ContentType: contentType}, nil, nil

	case BucketRedirect:
		next, err := u.Resolve(meta)
		if err != nil {
			return nil, nil, errors.NewProtocolError("invalid gemini redirect target", err)
		}
		sink.Update(observer.TempMovedTo, next.Absolute())
		return nil, next, nil

	case BucketTempError, BucketPermError:
		sink.Update(observer.ContentType, "text/html")
		page := fmt.Sprintf(`<html><head><meta charset="utf-8"></head><body><h1>Gemini Error %d</h1><p>%s</p></body></html>`, code, htmlEscape(meta))
		sink.Update(observer.Data, []byte(page))
		return &Result{StatusCode: code, Meta: meta}, nil, nil

	case BucketCertRequired:
		sink.Update(observer.ContentType, "text/html")
		sink.Update(observer.Data, []byte(`<html><head><meta charset="utf-8"></head><body><h1>Client Certificate Required</h1></body></html>`))
		return &Result{StatusCode: code, Meta: meta}, nil, nil

	case BucketInput:
		// The caller must re-issue the request with the query appended; we
		// surface it as a terminal result rather than prompting here, since
		// the prompt UX is outside the network layer's concern (§4.10).
		return &Result{StatusCode: code, Meta: meta}, nil, nil

	default:
		return &Result{StatusCode: code, Meta: meta}, nil, nil
	}
}

func requestLine(u *urlmodel.ParsedURL, isSpartan bool) string {
	if isSpartan {
		path := u.PathAndQuery()
		return fmt.Sprintf("%s %s 0\r\n", u.HostHeader(), path)
	}
	return u.Absolute() + "\r\n"
}

// parseStatusLine parses "NN META" (Gemini) or "N META" (Spartan). A
// Spartan single-digit status is scaled by ten so it lands in the
// matching Gemini bucket (2 -> 20, 3 -> 30, ...).
func parseStatusLine(line string, isSpartan bool) (int, string, error) {
	sp := strings.IndexByte(line, ' ')
	var codeStr, meta string
	if sp < 0 {
		codeStr = line
	} else {
		codeStr, meta = line[:sp], strings.TrimSpace(line[sp+1:])
	}
	if len(meta) > constants.MaxMetaBytes {
		meta = meta[:constants.MaxMetaBytes]
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return 0, "", errors.NewProtocolError("invalid gemini status code", err)
	}
	if isSpartan && code >= 0 && code < 10 {
		code *= 10
	}
	return code, meta, nil
}

// streamAsHTML converts a text/gemini (or Spartan text/*) body to HTML
// line by line as it streams in, matching the original browser's
// preformatted/heading/link/list/blockquote/paragraph markup rules.
// inPre persists across the whole body the way it did against the
// original's page-scoped flag.
func streamAsHTML(br *bufio.Reader, base *urlmodel.ParsedURL, sink observer.Sink) {
	sink.Update(observer.Data, []byte(`<html><head><meta charset="utf-8"></head><body>`))

	inPre := false
	for {
		line, err := br.ReadString('\n')
		atEOF := err != nil
		line = strings.TrimRight(line, "\r\n")
		if line != "" || !atEOF {
			sink.Update(observer.Data, []byte(convertLine(line, base, &inPre)))
		}
		if atEOF {
			break
		}
	}
	sink.Update(observer.Data, []byte(`</body></html>`))
}

func convertLine(line string, base *urlmodel.ParsedURL, inPre *bool) string {
	switch {
	case strings.HasPrefix(line, "```"):
		if *inPre {
			*inPre = false
			return "</pre>"
		}
		*inPre = true
		return "<pre>"

	case *inPre:
		return htmlEscape(line) + "\n"

	case strings.HasPrefix(line, "###"):
		return wrapTrim("h3", strings.TrimPrefix(line, "###"))
	case strings.HasPrefix(line, "##"):
		return wrapTrim("h2", strings.TrimPrefix(line, "##"))
	case strings.HasPrefix(line, "#"):
		return wrapTrim("h1", strings.TrimPrefix(line, "#"))

	case strings.HasPrefix(line, "=>"):
		return convertLink(strings.TrimSpace(line[2:]), base)

	case strings.HasPrefix(line, "* "):
		text := strings.TrimSpace(line[2:])
		if text == "" {
			return ""
		}
		return "<li>" + htmlEscape(text) + "</li>"

	case strings.HasPrefix(line, ">"):
		text := strings.TrimSpace(strings.TrimPrefix(line, ">"))
		if text == "" {
			return ""
		}
		return "<blockquote><p>" + htmlEscape(text) + "</p></blockquote>"

	case line == "":
		return ""

	default:
		return "<p>" + htmlEscape(line) + "</p>"
	}
}

func wrapTrim(tag, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return "<" + tag + ">" + htmlEscape(text) + "</" + tag + ">"
}

// convertLink renders a Gemini "=> target [description]" line as an
// anchor. A relative target is resolved against the page's base URL the
// same way a redirect Location is, so the emitted href always carries
// the page's own gemini:// or spartan:// scheme (§4.10).
func convertLink(rest string, base *urlmodel.ParsedURL) string {
	target := rest
	desc := rest
	if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
		target = rest[:sp]
		desc = strings.TrimSpace(rest[sp+1:])
		if desc == "" {
			desc = target
		}
	}
	if target == "" {
		return ""
	}
	href := target
	if base != nil {
		if resolved, err := base.Resolve(target); err == nil {
			href = resolved.Absolute()
		}
	}
	return fmt.Sprintf(`<p><a href="%s">%s</a></p>`, htmlEscape(href), htmlEscape(desc))
}

func streamRaw(br *bufio.Reader, sink observer.Sink) {
	buf := make([]byte, 8192)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			sink.Update(observer.Data, chunk)
		}
		if err != nil {
			return
		}
	}
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// readerFunc adapts a bare Read function to io.Reader for bufio.NewReader.
type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
