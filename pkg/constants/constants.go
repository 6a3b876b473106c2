// Package constants defines the fixed magic numbers netfetch's components
// are specified against — pool sizing, staleness windows, header budgets.
// These are invariants, not tunables: tests assert against them directly.
package constants

import "time"

// Socket/TLS I/O (§4.1, §4.2).
const (
	// SocketIOTimeout is the per-operation send/recv timeout applied only
	// after the connection (and TLS handshake, if any) is established.
	SocketIOTimeout = 15 * time.Second

	// TLSHandshakeTimeout bounds the handshake itself, which must never
	// observe SocketIOTimeout (that would abort a handshake mid-flight).
	TLSHandshakeTimeout = 10 * time.Second

	// DefaultConnTimeout bounds DNS + TCP connect when the caller supplies
	// no FetchRequest-level override.
	DefaultConnTimeout = 10 * time.Second
)

// Connection pool (§3, §4.4).
const (
	// MaxIdleConnsTotal is the bound on idle entries across the whole pool.
	MaxIdleConnsTotal = 8

	// MaxIdleAge is the staleness window: an idle connection older than
	// this at the moment of acquisition is destroyed, not returned.
	MaxIdleAge = 15 * time.Second
)

// Request/response framing (§4.5, §4.6).
const (
	// HeaderSoftBudget is the request builder's preferred header size
	// before it falls back to a larger heap-allocated buffer.
	HeaderSoftBudget = 7000

	// MinHeaderBlockSize is the minimum bound for the response's header
	// accumulation buffer (§3 HeaderBlock).
	MinHeaderBlockSize = 16 * 1024

	// MaxChunkSizeHexDigits caps a chunk-size line per §4.7.
	MaxChunkSizeHexDigits = 16

	// MaxChunkSize caps an individual chunk payload per §4.7 (2 GiB).
	MaxChunkSize = 2 * 1024 * 1024 * 1024

	// GzipInputBufferSize is the minimum lifetime input buffer for the
	// inflate filter per §4.8.
	GzipInputBufferSize = 16 * 1024

	// MaxContentLength guards against a declared Content-Length so large
	// it can only be a protocol violation.
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
)

// HTTP driver control flow (§4.9).
const (
	// MaxRedirects is the loop guard: up to MaxRedirects redirects are
	// followed, and one more beyond that is redirect-loop.
	MaxRedirects = 10

	// MaxGeminiRedirects bounds the Gemini/Spartan driver (§4.10).
	MaxGeminiRedirects = 5
)

// Gemini/Spartan wire limits (§4.10, §6).
const (
	DefaultGeminiPort  = 1965
	DefaultSpartanPort = 300

	// MaxMetaBytes bounds the META field of a Gemini/Spartan status line.
	MaxMetaBytes = 1024
)
