// Package sockio implements the socket I/O layer (§4.1): DNS resolution,
// TCP connect, and a timed Conn wrapper whose read/write deadline only
// starts ticking once the connection (and any TLS handshake) is already
// established — the connect phase uses its own, shorter deadline.
package sockio

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/mossbrook/go-netfetch/pkg/constants"
	"github.com/mossbrook/go-netfetch/pkg/errors"
)

// Resolve looks up the IP addresses for host, surfacing DNS failure as a
// netfetch *errors.Error of KindNoHost.
func Resolve(ctx context.Context, host string) ([]net.IP, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, errors.NewDNSError(host, err)
	}
	return ips, nil
}

// Connect dials host:port with constants.DefaultConnTimeout, trying each
// resolved address in turn and returning the first that succeeds — the
// net package's own happy-eyeballs dialer already does this when given a
// bare hostname, so Connect dials the hostname directly and never calls
// Resolve; Resolve is a separate helper for a caller that wants the
// addresses themselves.
func Connect(ctx context.Context, host string, port int) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, constants.DefaultConnTimeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{}
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, errors.NewConnectError(host, port, err)
	}
	return conn, nil
}

// TimedConn wraps a net.Conn so every Read/Write call gets its own fresh
// constants.SocketIOTimeout deadline: each successful operation resets the
// window for the next one, rather than bounding the connection's whole
// lifetime with one deadline (§4.1: "a successful receive resets the
// timeout window for the next operation").
type TimedConn struct {
	net.Conn
}

// NewTimedConn wraps conn. It does not itself set a deadline; the first
// Read or Write call does that.
func NewTimedConn(conn net.Conn) *TimedConn {
	return &TimedConn{Conn: conn}
}

func (c *TimedConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(constants.SocketIOTimeout)); err != nil {
		return 0, errors.NewIOError("set-read-deadline", err)
	}
	n, err := c.Conn.Read(p)
	if err != nil {
		return n, classify("read", err)
	}
	return n, nil
}

func (c *TimedConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(constants.SocketIOTimeout)); err != nil {
		return 0, errors.NewIOError("set-write-deadline", err)
	}
	n, err := c.Conn.Write(p)
	if err != nil {
		return n, classify("write", err)
	}
	return n, nil
}

func classify(op string, err error) error {
	if errors.IsTimeoutError(err) {
		return errors.NewTimeoutError(op, constants.SocketIOTimeout)
	}
	return errors.NewIOError(op, err)
}
