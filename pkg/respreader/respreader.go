// Package respreader parses an HTTP/1.1 status line and header block
// from a connection (§4.6), enforcing the HeaderBlock size bound and
// exposing the recognized headers the observer reports by name.
package respreader

import (
	"bufio"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/mossbrook/go-netfetch/pkg/constants"
	"github.com/mossbrook/go-netfetch/pkg/errors"
)

// State is the parsed status line plus header block for one response,
// before body decoding begins.
type State struct {
	HTTPVersion string
	StatusCode  int
	Reason      string
	Headers     map[string][]string
	RawHeaders  []byte
}

// Get returns the first value for a canonical header name, or "".
func (s *State) Get(name string) string {
	vs := s.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns every value for a canonical header name, in the order
// received — needed for Set-Cookie, which a server may repeat.
func (s *State) Values(name string) []string {
	return s.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// Read parses the status line and header block from br. The header
// block is bounded at constants.MinHeaderBlockSize bytes of accumulated
// raw header text; exceeding it yields KindHeaderTooLarge rather than
// growing without limit.
func Read(br *bufio.Reader) (*State, error) {
	statusLine, err := readLine(br)
	if err != nil {
		return nil, errors.NewProtocolError("reading status line", err)
	}

	st := &State{Headers: make(map[string][]string)}
	if err := parseStatusLine(statusLine, st); err != nil {
		return nil, err
	}

	raw, err := readHeaderBlock(br, st)
	if err != nil {
		return nil, err
	}
	st.RawHeaders = raw
	return st, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseStatusLine(line string, st *State) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return errors.NewProtocolError("invalid status line", nil)
	}
	st.HTTPVersion = parts[0]
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return errors.NewProtocolError("invalid status code", err)
	}
	st.StatusCode = code
	if len(parts) == 3 {
		st.Reason = parts[2]
	}
	return nil
}

func readHeaderBlock(br *bufio.Reader, st *State) ([]byte, error) {
	var raw strings.Builder
	var lastKey string

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, errors.NewProtocolError("reading headers", err)
		}
		if raw.Len()+len(line) > constants.MinHeaderBlockSize {
			return nil, errors.NewHeaderTooLarge(constants.MinHeaderBlockSize)
		}
		raw.WriteString(line)

		if line == "\r\n" || line == "\n" {
			break
		}
		trimmed := strings.TrimRight(line, "\r\n")

		// RFC 7230 §3.2.4 header continuation (obsolete but still sent by
		// some servers): a line starting with SP/HTAB extends the previous
		// header's value.
		if strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t") {
			if lastKey == "" {
				continue
			}
			vs := st.Headers[lastKey]
			idx := len(vs) - 1
			vs[idx] = vs[idx] + " " + strings.TrimSpace(trimmed)
			continue
		}

		kv := strings.SplitN(trimmed, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])
		st.Headers[key] = append(st.Headers[key], value)
		lastKey = key
	}
	return []byte(raw.String()), nil
}

// HasNoBody reports whether code is one of the statuses RFC 9110 forbids
// from carrying a message body (1xx, 204, 304), regardless of any
// Content-Length/Transfer-Encoding the server sent anyway.
func HasNoBody(code int) bool {
	return (code >= 100 && code < 200) || code == 204 || code == 304
}

// IsMultipartMixedReplace reports whether a Content-Type value is the
// multipart/x-mixed-replace "server push" framing (§4.6).
func IsMultipartMixedReplace(contentType string) (boundary string, ok bool) {
	const marker = "multipart/x-mixed-replace"
	lower := strings.ToLower(contentType)
	if !strings.HasPrefix(lower, marker) {
		return "", false
	}
	idx := strings.Index(lower, "boundary=")
	if idx < 0 {
		return "", true
	}
	b := contentType[idx+len("boundary="):]
	if semi := strings.IndexByte(b, ';'); semi >= 0 {
		b = b[:semi]
	}
	return strings.Trim(strings.TrimSpace(b), `"`), true
}
