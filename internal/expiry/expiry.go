// Package expiry checks how long a remote server's TLS certificate
// remains valid.
//
// Certificate chain verification is disabled on purpose: the point is
// to inspect whatever certificate the peer presents, including expired
// and self-signed ones. A verifying client would refuse exactly the
// targets this package exists to report on. Do not "fix" this.
package expiry

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"golang.org/x/net/idna"
)

const secondsPerDay = 86400

// Expiration is the outcome of a single certificate check. It is
// immutable once constructed; the remaining-seconds value is computed
// from one "now" sample and never recomputed.
type Expiration struct {
	secs     int64
	altNames []string
}

// Check connects to domain on the standard HTTPS port (443) and
// evaluates the presented certificate. Unicode domain names are
// converted to their punycode form before dialing.
func Check(domain string) (*Expiration, error) {
	return CheckAddr(net.JoinHostPort(normalizeHost(domain), "443"))
}

// CheckAddr connects to an explicit host:port address and evaluates the
// presented certificate.
//
// The connection and handshake are fully blocking with no timeout
// beyond OS defaults; a hung peer hangs the caller. Each call owns its
// socket exclusively and closes it before returning on every path.
func CheckAddr(addr string) (*Expiration, error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	defer raw.Close()

	conn := tls.Client(raw, clientConfig(addr))
	defer conn.Close()
	if err := conn.Handshake(); err != nil {
		return nil, classifyHandshake(addr, err)
	}

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return nil, ErrCertificateNotFound
	}
	return evaluate(peers[0], time.Now()), nil
}

func normalizeHost(domain string) string {
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		return ascii
	}
	return domain
}

func clientConfig(addr string) *tls.Config {
	cfg := &tls.Config{
		// Inspection, not trust establishment. See package doc.
		InsecureSkipVerify: true,
		// Legacy endpoints still present a certificate worth reporting.
		MinVersion: tls.VersionTLS10,
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && net.ParseIP(host) == nil {
		cfg.ServerName = host
	}
	return cfg
}

// evaluate reads the leaf certificate's validity end and DNS alternative
// names. notBefore is deliberately not examined: a not-yet-valid
// certificate reports a large positive remainder, matching the tool's
// historical behavior.
func evaluate(cert *x509.Certificate, now time.Time) *Expiration {
	names := make([]string, len(cert.DNSNames))
	copy(names, cert.DNSNames)
	return &Expiration{
		secs:     int64(cert.NotAfter.Sub(now) / time.Second),
		altNames: names,
	}
}

// Seconds returns the signed number of whole seconds until the
// certificate's notAfter; negative once it has passed.
func (e *Expiration) Seconds() int64 { return e.secs }

// Days returns Seconds()/86400, truncated toward zero.
func (e *Expiration) Days() int64 { return e.secs / secondsPerDay }

// IsExpired reports whether notAfter is in the past. A remainder of
// exactly zero seconds counts as not expired.
func (e *Expiration) IsExpired() bool { return e.secs < 0 }

// AltNames returns the certificate's DNS subject alternative names in
// the order they appear in the extension. Empty if the certificate
// carries none; non-DNS entries (IPs, emails) are not included.
func (e *Expiration) AltNames() []string { return e.altNames }
