package expiry

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"strings"
)

// ErrCertificateNotFound means the handshake completed but the peer
// presented no certificate at all.
var ErrCertificateNotFound = errors.New("certificate not found")

// ConnectionError is a transport-layer failure: DNS resolution,
// connection refused or reset, network unreachable.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HandshakeError means the TCP connection succeeded but the TLS
// negotiation did not complete.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tls handshake with %s: %v", e.Addr, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// CryptoError wraps a failure inside the x509/asn1 layer, typically
// malformed certificate material sent by the peer.
type CryptoError struct {
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("certificate decode: %v", e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// classifyHandshake separates failures of the negotiation itself from
// malformed certificate material surfacing out of the crypto stack.
// The x509 parser returns opaque errors, so the prefix match is the
// only handle on those.
func classifyHandshake(addr string, err error) error {
	var structural asn1.StructuralError
	var syntax asn1.SyntaxError
	if errors.As(err, &structural) || errors.As(err, &syntax) {
		return &CryptoError{Err: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "x509:") || strings.Contains(msg, "asn1:") {
		return &CryptoError{Err: err}
	}
	return &HandshakeError{Addr: addr, Err: err}
}
