package tlssession

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync"

	"github.com/mossbrook/go-netfetch/pkg/certstore"
	"github.com/mossbrook/go-netfetch/pkg/constants"
	"github.com/mossbrook/go-netfetch/pkg/errors"
)

// creationMu serializes session *creation and teardown* only — never
// per-session I/O. §9 notes the source mutates a process-wide "current
// library base" pointer around every TLS call to work around a legacy
// shared-library ABI; a modern TLS stack has no such global, but §5 still
// asks for context/session creation to be serialized under one dedicated
// lock distinct from the connection pool's lock, taken one at a time and
// never nested with it. Read/Write on an established *tls.Conn does not
// take this lock: distinct Connections are independent.
var creationMu sync.Mutex

// Metadata captures what the observer needs to know about a negotiated
// session (§6: Cipher, SSLLibrary attributes).
type Metadata struct {
	Version     string
	CipherSuite string
	Resumed     bool
	ServerName  string
}

// Dial wraps an already-connected net.Conn in a TLS session: SNI from
// host, mandatory peer verification that falls through to the TrustStore
// and GUI callback on an unverifiable certificate (§4.2). On a denied or
// otherwise failed handshake the caller's conn is left open; closing it is
// the caller's responsibility so stale-reuse detection can tell apart a
// dial failure from a handshake failure.
func Dial(ctx context.Context, conn net.Conn, host string, port int, trust *certstore.Store, prompt certstore.TrustCallback) (*tls.Conn, *Metadata, error) {
	cfg := &tls.Config{
		ServerName:         host,
		MinVersion:         MinVersion,
		CipherSuites:       AllowedCipherSuites(),
		InsecureSkipVerify: true, // we run verification ourselves below, then fall back to the trust prompt
	}
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.NewCertDenied(host, "<no certificate>")
		}
		leaf := cs.PeerCertificates[0]
		opts := x509.VerifyOptions{DNSName: host, Intermediates: x509.NewCertPool()}
		for _, inter := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(inter)
		}
		if _, err := leaf.Verify(opts); err == nil {
			return nil
		}
		subject := leaf.Subject.String()
		if trust != nil && trust.Accept(host, subject, prompt) {
			return nil
		}
		return errors.NewCertDenied(host, subject)
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, constants.TLSHandshakeTimeout)
	defer cancel()

	creationMu.Lock()
	tlsConn := tls.Client(conn, cfg)
	creationMu.Unlock()

	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		if kind := errors.GetKind(err); kind == errors.KindCertDenied {
			return nil, nil, err
		}
		return nil, nil, errors.NewTLSError(host, port, err)
	}

	state := tlsConn.ConnectionState()
	meta := &Metadata{
		Version:     VersionName(state.Version),
		CipherSuite: tls.CipherSuiteName(state.CipherSuite),
		Resumed:     state.DidResume,
		ServerName:  host,
	}
	return tlsConn, meta, nil
}

// Shutdown performs the close_notify handshake before the caller closes
// the underlying socket (§4.2 shutdown discipline).
func Shutdown(conn *tls.Conn) {
	if conn == nil {
		return
	}
	creationMu.Lock()
	defer creationMu.Unlock()
	_ = conn.CloseWrite()
}
