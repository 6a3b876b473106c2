// Package tlssession creates and tears down the per-Connection TLS session
// (§4.2): SNI, cipher policy, and peer-certificate trust via the GUI
// callback / certstore.Store.
package tlssession

import "crypto/tls"

// MinVersion is the floor of the allowed cipher policy: SSLv2/SSLv3 are
// explicitly disabled, TLS 1.0 and up are allowed for legacy server
// compatibility (§4.2).
const MinVersion = tls.VersionTLS10

// allowedSuites is the HIGH suite: ECDHE/AEAD ciphers and ECDHE AES-CBC
// ciphers with SHA-256 or SHA-1 MACs,
// excluding NULL, export-grade, DES, 3DES, MD5, and PSK suites (§4.2).
// TLS 1.3 cipher suites are not listed here because crypto/tls always
// negotiates its fixed, already-HIGH-only TLS 1.3 suite set and ignores
// CipherSuites for those connections.
var allowedSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
}

// AllowedCipherSuites returns the HIGH cipher policy's TLS 1.2-and-below
// suite list, for direct use in a tls.Config.CipherSuites.
func AllowedCipherSuites() []uint16 {
	out := make([]uint16, len(allowedSuites))
	copy(out, allowedSuites)
	return out
}

// VersionName returns a human-readable TLS version string for the
// observer's SSLLibrary/Cipher attributes.
func VersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "unknown"
	}
}
