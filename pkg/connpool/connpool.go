// Package connpool implements the keep-alive connection pool (§3, §4.4):
// at most constants.MaxIdleConnsTotal idle connections across the whole
// pool, keyed by (normalized host, port, TLS), MRU-ordered, each entry
// discarded once it has sat idle longer than constants.MaxIdleAge.
package connpool

import (
	"net"
	"sync"
	"time"

	"github.com/mossbrook/go-netfetch/pkg/constants"
	"github.com/mossbrook/go-netfetch/pkg/urlmodel"
)

// Key identifies a pool bucket. Two requests share a bucket iff their
// normalized host, port, and TLS-ness all match (§3).
type Key struct {
	Host string
	Port int
	TLS  bool
}

// KeyFor builds a Key from a raw host/port/tls triple, normalizing host
// the same way the HTTP driver does (strip a leading "www.").
func KeyFor(host string, port int, tls bool) Key {
	return Key{Host: urlmodel.NormalizeHost(host), Port: port, TLS: tls}
}

// Connection is one pooled transport: the raw net.Conn (already a
// *tls.Conn if Key.TLS), plus bookkeeping the driver and observer need.
type Connection struct {
	Conn     net.Conn
	Key      Key
	Created  time.Time
	lastUsed time.Time

	// Meta is opaque to the pool; the driver stores TLS/proxy metadata
	// here for the observer's Cipher/SSLLibrary attributes.
	Meta interface{}
}

type entry struct {
	conn     *Connection
	lastUsed time.Time
}

// Pool is the process-wide idle connection set. The zero value is not
// usable; construct with New.
type Pool struct {
	mu       sync.Mutex
	idle     []entry // MRU at the tail
	maxTotal int
	maxAge   time.Duration
}

// New returns an empty pool governed by the §3/§4.4 invariants.
func New() *Pool {
	return &Pool{maxTotal: constants.MaxIdleConnsTotal, maxAge: constants.MaxIdleAge}
}

// Acquire returns an idle Connection matching key if one is both present
// and fresh (now-lastUsed < MaxIdleAge), searching most-recently-used
// first. Stale entries encountered along the way are evicted and their
// net.Conn closed outside the pool's lock. Returns (nil, false) when no
// live match exists; the caller must then dial a new Connection.
func (p *Pool) Acquire(key Key) (*Connection, bool) {
	var stale []net.Conn
	var found *Connection

	p.mu.Lock()
	now := time.Now()
	kept := p.idle[:0]
	for i := len(p.idle) - 1; i >= 0; i-- {
		e := p.idle[i]
		if found == nil && e.conn.Key == key && now.Sub(e.lastUsed) < p.maxAge {
			found = e.conn
			continue
		}
		if now.Sub(e.lastUsed) >= p.maxAge {
			stale = append(stale, e.conn.Conn)
			continue
		}
		kept = append([]entry{e}, kept...)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, c := range stale {
		_ = c.Close()
	}
	if found != nil {
		return found, true
	}
	return nil, false
}

// Release returns conn to the idle pool if keepAlive is true; otherwise
// it is the caller's job to close conn. When the pool is already at
// MaxIdleConnsTotal, the least-recently-used idle entry is removed to make
// room and returned as evicted for the caller to close (§4.4: new entries
// displace the oldest once full).
func (p *Pool) Release(conn *Connection, keepAlive bool) (evicted net.Conn) {
	if !keepAlive {
		return nil
	}

	conn.lastUsed = time.Now()
	p.mu.Lock()
	if len(p.idle) >= p.maxTotal {
		evicted = p.idle[0].conn.Conn
		p.idle = p.idle[1:]
	}
	p.idle = append(p.idle, entry{conn: conn, lastUsed: conn.lastUsed})
	p.mu.Unlock()
	return evicted
}

// CloseIdleAll empties the pool, returning every connection that was
// idle so the caller can close them outside any lock.
func (p *Pool) CloseIdleAll() []net.Conn {
	p.mu.Lock()
	out := make([]net.Conn, 0, len(p.idle))
	for _, e := range p.idle {
		out = append(out, e.conn.Conn)
	}
	p.idle = nil
	p.mu.Unlock()
	return out
}

// Len reports the current idle count, for tests and diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
