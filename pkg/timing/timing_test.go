package timing

import (
	"strings"
	"testing"
	"time"
)

func TestGetMetricsLeavesUnstartedPhasesZero(t *testing.T) {
	timer := NewTimer()
	m := timer.GetMetrics()
	if m.DNSLookup != 0 || m.TCPConnect != 0 || m.TLSHandshake != 0 || m.TTFB != 0 {
		t.Fatalf("expected all phase durations to be zero, got %+v", m)
	}
	if m.TotalTime <= 0 {
		t.Errorf("expected a positive TotalTime, got %v", m.TotalTime)
	}
}

func TestGetMetricsResolvesStartedPhases(t *testing.T) {
	timer := NewTimer()

	timer.StartTCP()
	time.Sleep(time.Millisecond)
	timer.EndTCP()

	timer.StartTLS()
	time.Sleep(time.Millisecond)
	timer.EndTLS()

	timer.StartTTFB()
	time.Sleep(time.Millisecond)
	timer.EndTTFB()

	m := timer.GetMetrics()
	if m.DNSLookup != 0 {
		t.Errorf("DNSLookup = %v, want 0 (never started)", m.DNSLookup)
	}
	if m.TCPConnect <= 0 {
		t.Errorf("TCPConnect = %v, want > 0", m.TCPConnect)
	}
	if m.TLSHandshake <= 0 {
		t.Errorf("TLSHandshake = %v, want > 0", m.TLSHandshake)
	}
	if m.TTFB <= 0 {
		t.Errorf("TTFB = %v, want > 0", m.TTFB)
	}
}

func TestGetConnectionTimeSumsDNSTCPAndTLS(t *testing.T) {
	m := Metrics{DNSLookup: 10 * time.Millisecond, TCPConnect: 20 * time.Millisecond, TLSHandshake: 30 * time.Millisecond, TTFB: 100 * time.Millisecond}
	want := 60 * time.Millisecond
	if got := m.GetConnectionTime(); got != want {
		t.Errorf("GetConnectionTime() = %v, want %v", got, want)
	}
}

func TestStringIncludesAllPhases(t *testing.T) {
	m := Metrics{DNSLookup: time.Millisecond, TCPConnect: 2 * time.Millisecond, TLSHandshake: 3 * time.Millisecond, TTFB: 4 * time.Millisecond, TotalTime: 10 * time.Millisecond}
	s := m.String()
	for _, want := range []string{"dns=", "tcp=", "tls=", "ttfb=", "total="} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
