package reqbuilder

import (
	"strings"
	"testing"

	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

func mustParse(t *testing.T, raw string) *urlmodel.ParsedURL {
	t.Helper()
	u, err := urlmodel.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return u
}

func TestBuildBasicGet(t *testing.T) {
	u := mustParse(t, "http://example.com/path?x=1")
	out := string(Build(Request{URL: u, KeepAlive: true}))

	if !strings.HasPrefix(out, "GET /path?x=1 HTTP/1.1\r\n") {
		t.Errorf("request line wrong: %q", out)
	}
	if !strings.Contains(out, "Host: example.com\r\n") {
		t.Errorf("missing Host header: %q", out)
	}
	if !strings.Contains(out, "Connection: keep-alive\r\n") {
		t.Errorf("missing Connection: keep-alive: %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\n") {
		t.Errorf("request must end with a blank line: %q", out)
	}
}

func TestBuildConnectionClose(t *testing.T) {
	u := mustParse(t, "http://example.com/")
	out := string(Build(Request{URL: u, KeepAlive: false}))
	if !strings.Contains(out, "Connection: close\r\n") {
		t.Errorf("expected Connection: close, got %q", out)
	}
}

func TestBuildUserAgentSpoof(t *testing.T) {
	u := mustParse(t, "http://example.com/")
	out := string(Build(Request{URL: u, UserAgentSpoof: "Mozilla/5.0 FakeBrowser"}))
	if !strings.Contains(out, "User-Agent: Mozilla/5.0 FakeBrowser (Spoofed by netfetch/1.0)\r\n") {
		t.Errorf("expected spoofed User-Agent header, got %q", out)
	}
}

func TestBuildDefaultUserAgent(t *testing.T) {
	u := mustParse(t, "http://example.com/")
	out := string(Build(Request{URL: u}))
	if !strings.Contains(out, "User-Agent: "+DefaultUserAgent+"\r\n") {
		t.Errorf("expected default User-Agent header, got %q", out)
	}
}

func TestBuildWithBodyIncludesContentLength(t *testing.T) {
	u := mustParse(t, "http://example.com/submit")
	body := []byte(`{"a":1}`)
	out := Build(Request{URL: u, Method: "POST", Body: body, ContentType: "application/json"})

	if !strings.Contains(string(out), "Content-Type: application/json\r\n") {
		t.Errorf("missing Content-Type header")
	}
	if !strings.Contains(string(out), "Content-Length: 7\r\n") {
		t.Errorf("missing or wrong Content-Length header")
	}
	if !strings.HasSuffix(string(out), string(body)) {
		t.Errorf("expected the body bytes appended after the header block")
	}
}

func TestBuildAbsoluteFormForPlainProxy(t *testing.T) {
	u := mustParse(t, "http://example.com/path")
	out := string(Build(Request{URL: u, ViaPlainProxy: true}))
	if !strings.HasPrefix(out, "GET http://example.com/path HTTP/1.1\r\n") {
		t.Errorf("expected absolute-form request target via a plain proxy, got %q", out)
	}
}

func TestBuildTruncatesLongReferer(t *testing.T) {
	u := mustParse(t, "http://example.com/")
	longRef := "http://example.com/" + strings.Repeat("a", 3000)
	out := string(Build(Request{URL: u, Referer: longRef}))

	idx := strings.Index(out, "Referer: ")
	if idx < 0 {
		t.Fatalf("missing Referer header")
	}
	line := out[idx:strings.Index(out[idx:], "\r\n")+idx]
	if len(line)-len("Referer: ") > 2048 {
		t.Errorf("Referer header value exceeds the 2048-byte cap: %d bytes", len(line)-len("Referer: "))
	}
}

func TestBasicAuthValue(t *testing.T) {
	got := BasicAuthValue("Aladdin", "open sesame")
	want := "Basic QWxhZGRpbjpvcGVuIHNlc2FtZQ=="
	if got != want {
		t.Errorf("BasicAuthValue = %q, want %q", got, want)
	}
}
