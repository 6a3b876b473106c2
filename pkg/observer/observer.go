// Package observer defines the external update sink a FetchRequest
// streams progress into (§6): status transitions, header values, body
// data chunks, and terminal conditions, reported as key/value attributes
// rather than a typed callback per field, matching the wide and
// evolving attribute set the original browser's network core reports to
// its renderer.
package observer

// Attribute keys a Sink may receive via Update. Not every fetch reports
// every key — e.g. ContentScriptType only applies to Gemini/Spartan, and
// ServerPush only to a multipart x-mixed-replace response.
const (
	NetStatus         = "NetStatus"
	Header            = "Header"
	Data              = "Data"
	DataLength        = "DataLength"
	ContentLength     = "ContentLength"
	ContentType       = "ContentType"
	ServerDate        = "ServerDate"
	LastModified      = "LastModified"
	Expires           = "Expires"
	ETag              = "ETag"
	Filename          = "Filename"
	Cipher            = "Cipher"
	SSLLibrary        = "SSLLibrary"
	NotModified       = "NotModified"
	MovedTo           = "MovedTo"
	TempMovedTo       = "TempMovedTo"
	SeeOther          = "SeeOther"
	NoCache           = "NoCache"
	MaxAge            = "MaxAge"
	ClientPull        = "ClientPull"
	Foreign           = "Foreign"
	ContentScriptType = "ContentScriptType"
	Error             = "Error"
	Eof               = "Eof"
	Terminate         = "Terminate"
	ServerPush        = "ServerPush"
	PostNoGood        = "PostNoGood"
	Timing            = "Timing"
)

// NetStatus values reported under the NetStatus key.
const (
	StatusResolving   = "resolving"
	StatusConnecting  = "connecting"
	StatusHandshaking = "handshaking"
	StatusSending     = "sending"
	StatusWaiting     = "waiting"
	StatusReceiving   = "receiving"
	StatusDone        = "done"
)

// Sink receives a stream of attribute updates for one FetchRequest. A
// driver calls Update from the single goroutine servicing that request;
// implementations must not block on anything that could itself wait on
// another FetchRequest, since the driver's goroutine is blocked on the
// network while Update runs.
type Sink interface {
	Update(attr string, value interface{})
}

// DataChunk wraps a body chunk. The drivers send the value of a Data
// update as a plain []byte, not as a DataChunk.
type DataChunk struct {
	Bytes []byte
}

// Func adapts a plain function to the Sink interface.
type Func func(attr string, value interface{})

func (f Func) Update(attr string, value interface{}) { f(attr, value) }

// Discard is a Sink that ignores every update, useful in tests that only
// care about the returned error or final Result.
var Discard Sink = Func(func(string, interface{}) {})
