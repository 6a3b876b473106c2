package respreader

import (
	"bufio"
	"strings"
	"testing"
)

func TestReadParsesStatusLineAndHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello"
	st, err := Read(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if st.StatusCode != 200 || st.Reason != "OK" || st.HTTPVersion != "HTTP/1.1" {
		t.Errorf("got version=%q code=%d reason=%q", st.HTTPVersion, st.StatusCode, st.Reason)
	}
	if st.Get("Content-Type") != "text/html" {
		t.Errorf("Get(Content-Type) = %q, want text/html", st.Get("Content-Type"))
	}
}

func TestReadHandlesHeaderContinuation(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"X-Long: first\r\n" +
		" second\r\n" +
		"\r\n"
	st, err := Read(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := st.Get("X-Long"); got != "first second" {
		t.Errorf("Get(X-Long) = %q, want %q", got, "first second")
	}
}

func TestValuesReturnsRepeatedHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Set-Cookie: a=1\r\n" +
		"Set-Cookie: b=2\r\n" +
		"\r\n"
	st, err := Read(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	vs := st.Values("Set-Cookie")
	if len(vs) != 2 || vs[0] != "a=1" || vs[1] != "b=2" {
		t.Errorf("Values(Set-Cookie) = %v, want [a=1 b=2]", vs)
	}
}

func TestReadRejectsOversizedHeaderBlock(t *testing.T) {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	for i := 0; i < 2000; i++ {
		b.WriteString("X-Pad: 0123456789012345678901234567890123456789\r\n")
	}
	b.WriteString("\r\n")
	if _, err := Read(bufio.NewReader(strings.NewReader(b.String()))); err == nil {
		t.Fatalf("expected an error for a header block exceeding the size bound")
	}
}

func TestHasNoBody(t *testing.T) {
	for _, code := range []int{100, 101, 204, 304} {
		if !HasNoBody(code) {
			t.Errorf("HasNoBody(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 301, 404, 500} {
		if HasNoBody(code) {
			t.Errorf("HasNoBody(%d) = true, want false", code)
		}
	}
}

func TestIsMultipartMixedReplace(t *testing.T) {
	boundary, ok := IsMultipartMixedReplace(`multipart/x-mixed-replace;boundary="frame"`)
	if !ok || boundary != "frame" {
		t.Errorf("got boundary=%q ok=%v, want frame/true", boundary, ok)
	}
	if _, ok := IsMultipartMixedReplace("text/html"); ok {
		t.Errorf("expected text/html not to match multipart/x-mixed-replace")
	}
}
