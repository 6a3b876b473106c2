package gemini

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/mossbrook/go-netfetch/pkg/certstore"
	"github.com/mossbrook/go-netfetch/pkg/observer"
	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

func TestBucketOf(t *testing.T) {
	cases := map[int]StatusBucket{
		10: BucketInput, 19: BucketInput,
		20: BucketSuccess, 29: BucketSuccess,
		30: BucketRedirect, 39: BucketRedirect,
		40: BucketTempError, 49: BucketTempError,
		50: BucketPermError, 59: BucketPermError,
		60: BucketCertRequired, 69: BucketCertRequired,
		5: BucketUnknown, 99: BucketUnknown,
	}
	for code, want := range cases {
		if got := bucketOf(code); got != want {
			t.Errorf("bucketOf(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestParseStatusLine(t *testing.T) {
	code, meta, err := parseStatusLine("20 text/gemini", false)
	if err != nil {
		t.Fatalf("parseStatusLine: %v", err)
	}
	if code != 20 || meta != "text/gemini" {
		t.Errorf("got (%d, %q), want (20, text/gemini)", code, meta)
	}
}

func TestParseStatusLineRejectsNonNumericCode(t *testing.T) {
	if _, _, err := parseStatusLine("xx oops", false); err == nil {
		t.Fatalf("expected an error for a non-numeric status code")
	}
}

func TestParseStatusLineWithNoMeta(t *testing.T) {
	code, meta, err := parseStatusLine("51", false)
	if err != nil {
		t.Fatalf("parseStatusLine: %v", err)
	}
	if code != 51 || meta != "" {
		t.Errorf("got (%d, %q), want (51, \"\")", code, meta)
	}
}

func TestConvertLineHeadings(t *testing.T) {
	inPre := false
	if got := convertLine("# Title", nil, &inPre); got != "<h1>Title</h1>" {
		t.Errorf("h1: got %q", got)
	}
	if got := convertLine("## Sub", nil, &inPre); got != "<h2>Sub</h2>" {
		t.Errorf("h2: got %q", got)
	}
	if got := convertLine("### SubSub", nil, &inPre); got != "<h3>SubSub</h3>" {
		t.Errorf("h3: got %q", got)
	}
}

func TestConvertLineTogglesPreformatted(t *testing.T) {
	inPre := false
	if got := convertLine("```", nil, &inPre); got != "<pre>" || !inPre {
		t.Fatalf("expected entering preformatted mode, got %q inPre=%v", got, inPre)
	}
	if got := convertLine("raw <text>", nil, &inPre); got != "raw &lt;text&gt;\n" {
		t.Errorf("expected escaped preformatted content, got %q", got)
	}
	if got := convertLine("```", nil, &inPre); got != "</pre>" || inPre {
		t.Fatalf("expected leaving preformatted mode, got %q inPre=%v", got, inPre)
	}
}

func TestConvertLineListAndBlockquote(t *testing.T) {
	inPre := false
	if got := convertLine("* item one", nil, &inPre); got != "<li>item one</li>" {
		t.Errorf("list: got %q", got)
	}
	if got := convertLine("> a quote", nil, &inPre); got != "<blockquote><p>a quote</p></blockquote>" {
		t.Errorf("blockquote: got %q", got)
	}
}

func TestConvertLinePlainParagraph(t *testing.T) {
	inPre := false
	if got := convertLine("hello & <world>", nil, &inPre); got != "<p>hello &amp; &lt;world&gt;</p>" {
		t.Errorf("got %q", got)
	}
}

func TestConvertLink(t *testing.T) {
	if got := convertLink("gemini://example.com/ Example Site", nil); got != `<p><a href="gemini://example.com/">Example Site</a></p>` {
		t.Errorf("got %q", got)
	}
	if got := convertLink("gemini://example.com/", nil); got != `<p><a href="gemini://example.com/">gemini://example.com/</a></p>` {
		t.Errorf("link with no description: got %q", got)
	}
}

func TestConvertLinkResolvesRelativeTargetAgainstBase(t *testing.T) {
	base, err := urlmodel.Parse("gemini://example.com/dir/page.gmi")
	if err != nil {
		t.Fatalf("urlmodel.Parse: %v", err)
	}
	if got := convertLink("other.gmi Other Page", base); got != `<p><a href="gemini://example.com/dir/other.gmi">Other Page</a></p>` {
		t.Errorf("got %q", got)
	}
	if got := convertLink("/root.gmi", base); got != `<p><a href="gemini://example.com/root.gmi">/root.gmi</a></p>` {
		t.Errorf("absolute-path relative link: got %q", got)
	}

	spartanBase, err := urlmodel.Parse("spartan://example.com/dir/page.gmi")
	if err != nil {
		t.Fatalf("urlmodel.Parse: %v", err)
	}
	if got := convertLink("other.gmi", spartanBase); got != `<p><a href="spartan://example.com/dir/other.gmi">other.gmi</a></p>` {
		t.Errorf("spartan relative link: got %q", got)
	}
}

func TestStreamAsHTMLWrapsAndConvertsLines(t *testing.T) {
	var chunks []string
	sink := observer.Func(func(attr string, value interface{}) {
		if attr == observer.Data {
			chunks = append(chunks, string(value.([]byte)))
		}
	})
	br := bufio.NewReader(strings.NewReader("# Title\nsome text\n"))
	streamAsHTML(br, nil, sink)

	joined := strings.Join(chunks, "")
	if !strings.HasPrefix(joined, "<html>") || !strings.HasSuffix(joined, "</html>") {
		t.Errorf("expected an html wrapper, got %q", joined)
	}
	if !strings.Contains(joined, "<h1>Title</h1>") {
		t.Errorf("expected the heading to be converted, got %q", joined)
	}
	if !strings.Contains(joined, "<p>some text</p>") {
		t.Errorf("expected the paragraph to be converted, got %q", joined)
	}
}

// spartanServer starts a plaintext listener that replies with a fixed
// Spartan-style response once per connection, for exercising Fetch
// without needing a TLS handshake.
func spartanServer(t *testing.T, response string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 256)
				conn.Read(buf)
				conn.Write([]byte(response))
			}()
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestFetchSpartanSuccess(t *testing.T) {
	body := "20 application/octet-stream\r\nhello world"
	addr, stop := spartanServer(t, body)
	defer stop()

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}

	var chunks []string
	sink := observer.Func(func(attr string, value interface{}) {
		if attr == observer.Data {
			chunks = append(chunks, string(value.([]byte)))
		}
	})

	res, err := Fetch(context.Background(), "spartan://127.0.0.1:"+port+"/", certstore.New(), func(string, string) bool { return true }, sink)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != 20 {
		t.Errorf("StatusCode = %d, want 20", res.StatusCode)
	}
	if strings.Join(chunks, "") != "hello world" {
		t.Errorf("body = %q, want hello world", strings.Join(chunks, ""))
	}
}
