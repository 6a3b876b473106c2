// Package chunked implements an io.Reader over HTTP/1.1 chunked transfer
// coding (§4.7). Reader is pull-based: Read blocks on the underlying
// *bufio.Reader exactly as far as it needs to produce the next byte, so a
// Reader composes transparently under compress/gzip.NewReader even when a
// chunk boundary falls in the middle of the gzip stream (§8 scenario 4).
package chunked

import (
	"bufio"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/mossbrook/go-netfetch/pkg/constants"
	"github.com/mossbrook/go-netfetch/pkg/errors"
)

// Reader decodes a chunked body read from an underlying *bufio.Reader.
// Once Read returns io.EOF, Trailer holds any trailer headers the server
// sent after the terminating zero-size chunk.
type Reader struct {
	tp      *textproto.Reader
	br      *bufio.Reader
	remain  int64 // bytes left in the chunk currently being read, -1 before first chunk-size line
	done    bool
	Trailer map[string][]string
}

// NewReader wraps br, which must be positioned at the first chunk-size
// line of the body.
func NewReader(br *bufio.Reader) *Reader {
	return &Reader{tp: textproto.NewReader(br), br: br, remain: -1}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if r.remain == 0 {
		if err := r.consumeChunkTrailerCRLF(); err != nil {
			return 0, err
		}
		r.remain = -1
	}
	if r.remain < 0 {
		size, err := r.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if err := r.readTrailers(); err != nil {
				return 0, err
			}
			r.done = true
			return 0, io.EOF
		}
		r.remain = size
	}

	if int64(len(p)) > r.remain {
		p = p[:r.remain]
	}
	n, err := r.br.Read(p)
	r.remain -= int64(n)
	if err != nil && err != io.EOF {
		return n, errors.NewIOError("read chunk body", err)
	}
	if err == io.EOF && r.remain > 0 {
		return n, errors.NewChunkParseError("connection closed mid-chunk", io.ErrUnexpectedEOF)
	}
	return n, nil
}

// readChunkSize reads one chunk-size line (optionally followed by
// ";extensions", which are ignored) and enforces the §4.7 bounds: the hex
// digit count must not exceed MaxChunkSizeHexDigits and the parsed size
// must not exceed MaxChunkSize.
func (r *Reader) readChunkSize() (int64, error) {
	line, err := r.tp.ReadLine()
	if err != nil {
		return 0, errors.NewChunkParseError("reading chunk size line", err)
	}
	hexPart := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
	if hexPart == "" {
		return 0, errors.NewChunkParseError("empty chunk size line", nil)
	}
	if len(hexPart) > constants.MaxChunkSizeHexDigits {
		return 0, errors.NewChunkParseError("chunk size line exceeds hex digit limit", nil)
	}
	size, err := strconv.ParseInt(hexPart, 16, 64)
	if err != nil {
		return 0, errors.NewChunkParseError("invalid chunk size", err)
	}
	if size < 0 || size > constants.MaxChunkSize {
		return 0, errors.NewChunkParseError("chunk size exceeds limit", nil)
	}
	return size, nil
}

// consumeChunkTrailerCRLF reads the CRLF (or bare LF, tolerated per §4.7)
// that terminates a non-empty chunk's data.
func (r *Reader) consumeChunkTrailerCRLF() error {
	b, err := r.br.ReadByte()
	if err != nil {
		return errors.NewIOError("reading chunk terminator", err)
	}
	if b == '\r' {
		b, err = r.br.ReadByte()
		if err != nil {
			return errors.NewIOError("reading chunk terminator", err)
		}
	}
	if b != '\n' {
		return errors.NewChunkParseError("malformed chunk terminator", nil)
	}
	return nil
}

func (r *Reader) readTrailers() error {
	trailer, err := r.tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return errors.NewChunkParseError("reading chunk trailers", err)
	}
	r.Trailer = map[string][]string(trailer)
	return nil
}
