// Package timing provides per-request performance measurement, mirroring
// the phase timers a browser's network panel reports.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures how long each phase of a single fetch took.
type Metrics struct {
	DNSLookup    time.Duration `json:"dns_lookup"`
	TCPConnect   time.Duration `json:"tcp_connect"`
	TLSHandshake time.Duration `json:"tls_handshake"`
	TTFB         time.Duration `json:"ttfb"`
	TotalTime    time.Duration `json:"total_time"`
}

// Timer accumulates the phase boundaries for one FetchRequest.
type Timer struct {
	start     time.Time
	dnsStart  time.Time
	dnsEnd    time.Time
	tcpStart  time.Time
	tcpEnd    time.Time
	tlsStart  time.Time
	tlsEnd    time.Time
	ttfbStart time.Time
	ttfbEnd   time.Time
}

// NewTimer starts a timing measurement session.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) StartDNS() { t.dnsStart = time.Now() }
func (t *Timer) EndDNS()   { t.dnsEnd = time.Now() }

func (t *Timer) StartTCP() { t.tcpStart = time.Now() }
func (t *Timer) EndTCP()   { t.tcpEnd = time.Now() }

func (t *Timer) StartTLS() { t.tlsStart = time.Now() }
func (t *Timer) EndTLS()   { t.tlsEnd = time.Now() }

func (t *Timer) StartTTFB() { t.ttfbStart = time.Now() }
func (t *Timer) EndTTFB()   { t.ttfbEnd = time.Now() }

// GetMetrics resolves whichever phases actually ran into a Metrics value.
// A phase never started (TLSHandshake on a plaintext fetch, DNSLookup on a
// pooled connection reuse) stays zero.
func (t *Timer) GetMetrics() Metrics {
	m := Metrics{TotalTime: time.Since(t.start)}
	if !t.dnsStart.IsZero() && !t.dnsEnd.IsZero() {
		m.DNSLookup = t.dnsEnd.Sub(t.dnsStart)
	}
	if !t.tcpStart.IsZero() && !t.tcpEnd.IsZero() {
		m.TCPConnect = t.tcpEnd.Sub(t.tcpStart)
	}
	if !t.tlsStart.IsZero() && !t.tlsEnd.IsZero() {
		m.TLSHandshake = t.tlsEnd.Sub(t.tlsStart)
	}
	if !t.ttfbStart.IsZero() && !t.ttfbEnd.IsZero() {
		m.TTFB = t.ttfbEnd.Sub(t.ttfbStart)
	}
	return m
}

// GetConnectionTime is the total time spent establishing the transport
// (DNS + TCP + TLS) before the request could be written.
func (m Metrics) GetConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect + m.TLSHandshake
}

func (m Metrics) String() string {
	return fmt.Sprintf("dns=%v tcp=%v tls=%v ttfb=%v total=%v",
		m.DNSLookup, m.TCPConnect, m.TLSHandshake, m.TTFB, m.TotalTime)
}
