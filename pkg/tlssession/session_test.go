package tlssession

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/mossbrook/go-netfetch/pkg/certstore"
	"github.com/mossbrook/go-netfetch/pkg/errors"
)

// selfSignedServer starts a TLS listener with a self-signed certificate
// for "localhost" and accepts connections until stopped, handing the raw
// tls.Certificate back for the caller's trust prompt to inspect.
func selfSignedServer(t *testing.T) (addr string, cert tls.Certificate, stop func()) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	tlsCert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{tlsCert}})
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 64)
				conn.Read(buf)
			}()
		}
	}()
	return ln.Addr().String(), tlsCert, func() { ln.Close() }
}

func dialPlain(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	return conn
}

func TestDialAcceptsViaTrustPrompt(t *testing.T) {
	addr, _, stop := selfSignedServer(t)
	defer stop()

	trust := certstore.New()

	conn := dialPlain(t, addr)
	defer conn.Close()

	tlsConn, meta, err := Dial(context.Background(), conn, "localhost", 0, trust, func(host, subject string) bool {
		return true
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tlsConn.Close()
	if meta.ServerName != "localhost" {
		t.Errorf("meta.ServerName = %q, want localhost", meta.ServerName)
	}
}

func TestDialDeniedTrustFailsWithCertDenied(t *testing.T) {
	addr, _, stop := selfSignedServer(t)
	defer stop()

	conn := dialPlain(t, addr)
	defer conn.Close()

	trust := certstore.New()
	_, _, err := Dial(context.Background(), conn, "localhost", 0, trust, func(host, subject string) bool {
		return false
	})
	if err == nil {
		t.Fatalf("expected Dial to fail when the trust prompt denies the certificate")
	}
	if errors.GetKind(err) != errors.KindCertDenied {
		t.Errorf("GetKind = %v, want %v", errors.GetKind(err), errors.KindCertDenied)
	}
}

func TestDialCachesTrustAcrossCalls(t *testing.T) {
	addr, _, stop := selfSignedServer(t)
	defer stop()

	trust := certstore.New()
	calls := 0
	prompt := func(host, subject string) bool {
		calls++
		return true
	}

	conn1 := dialPlain(t, addr)
	tlsConn1, _, err := Dial(context.Background(), conn1, "localhost", 0, trust, prompt)
	if err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	tlsConn1.Close()
	conn1.Close()

	conn2 := dialPlain(t, addr)
	defer conn2.Close()
	tlsConn2, _, err := Dial(context.Background(), conn2, "localhost", 0, trust, prompt)
	if err != nil {
		t.Fatalf("second Dial: %v", err)
	}
	defer tlsConn2.Close()

	if calls != 1 {
		t.Errorf("expected the trust prompt to be consulted once across both dials, got %d", calls)
	}
}
