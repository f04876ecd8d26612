package expiry

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"
)

func TestEvaluate_Remaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		notAfter time.Time
		secs     int64
		days     int64
		expired  bool
	}{
		{"future", now.Add(30 * 24 * time.Hour), 30 * 86400, 30, false},
		{"past", now.Add(-48 * time.Hour), -2 * 86400, -2, true},
		{"exactly now", now, 0, 0, false},
		{"under a day left", now.Add(100000 * time.Second), 100000, 1, false},
		{"under a day past", now.Add(-100000 * time.Second), -100000, -1, true},
		{"one second left", now.Add(time.Second), 1, 0, false},
		{"one second past", now.Add(-time.Second), -1, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := evaluate(&x509.Certificate{NotAfter: c.notAfter}, now)
			if e.Seconds() != c.secs {
				t.Errorf("Seconds() = %d, want %d", e.Seconds(), c.secs)
			}
			if e.Days() != c.days {
				t.Errorf("Days() = %d, want %d", e.Days(), c.days)
			}
			if e.IsExpired() != c.expired {
				t.Errorf("IsExpired() = %v, want %v", e.IsExpired(), c.expired)
			}
		})
	}
}

func TestEvaluate_DaysTruncateTowardZero(t *testing.T) {
	now := time.Unix(1700000000, 0)
	for _, secs := range []int64{86399, -86399, 86401, -86401} {
		e := evaluate(&x509.Certificate{NotAfter: now.Add(time.Duration(secs) * time.Second)}, now)
		want := secs / 86400
		if e.Days() != want {
			t.Errorf("secs=%d: Days() = %d, want %d", secs, e.Days(), want)
		}
	}
}

func TestEvaluate_AltNames(t *testing.T) {
	now := time.Now()
	names := []string{"b.example.com", "a.example.com", "*.example.net"}
	e := evaluate(&x509.Certificate{NotAfter: now, DNSNames: names}, now)

	got := e.AltNames()
	if len(got) != len(names) {
		t.Fatalf("AltNames() has %d entries, want %d", len(got), len(names))
	}
	for i := range names {
		if got[i] != names[i] {
			t.Errorf("AltNames()[%d] = %q, want %q (order must follow the extension)", i, got[i], names[i])
		}
	}
}

func TestEvaluate_NoSAN(t *testing.T) {
	e := evaluate(&x509.Certificate{NotAfter: time.Now().Add(time.Hour)}, time.Now())
	if len(e.AltNames()) != 0 {
		t.Errorf("expected no alt names, got %v", e.AltNames())
	}
}

func TestNormalizeHost(t *testing.T) {
	if got := normalizeHost("bücher.example"); got != "xn--bcher-kva.example" {
		t.Errorf("normalizeHost = %q", got)
	}
	if got := normalizeHost("example.com"); got != "example.com" {
		t.Errorf("normalizeHost = %q", got)
	}
}

// selfSigned issues a throwaway certificate for local listeners. An
// already-expired notAfter is fine: servers do not validate their own
// certificate and the client side skips verification.
func selfSigned(t *testing.T, notAfter time.Time, dnsNames []string) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "expiry-test"},
		NotBefore:             notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:              notAfter,
		DNSNames:              dnsNames,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func serveTLS(t *testing.T, cert tls.Certificate) string {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				if tc, ok := c.(*tls.Conn); ok {
					_ = tc.Handshake()
				}
				c.Close()
			}(c)
		}
	}()
	return ln.Addr().String()
}

func TestCheckAddr_LongLivedCertificate(t *testing.T) {
	addr := serveTLS(t, selfSigned(t, time.Now().Add(90*24*time.Hour), []string{"first.example", "second.example"}))

	e, err := CheckAddr(addr)
	if err != nil {
		t.Fatalf("CheckAddr: %v", err)
	}
	if e.IsExpired() {
		t.Error("certificate valid for 90 days reported expired")
	}
	if e.Days() <= 7 {
		t.Errorf("Days() = %d, want > 7", e.Days())
	}
	names := e.AltNames()
	if len(names) != 2 || names[0] != "first.example" || names[1] != "second.example" {
		t.Errorf("AltNames() = %v", names)
	}
}

func TestCheckAddr_ExpiredCertificate(t *testing.T) {
	addr := serveTLS(t, selfSigned(t, time.Now().Add(-72*time.Hour), nil))

	e, err := CheckAddr(addr)
	if err != nil {
		t.Fatalf("CheckAddr: %v", err)
	}
	if !e.IsExpired() {
		t.Error("expired certificate reported valid")
	}
	if e.Days() >= 0 {
		t.Errorf("Days() = %d, want < 0", e.Days())
	}
	if e.Seconds() >= 0 {
		t.Errorf("Seconds() = %d, want < 0", e.Seconds())
	}
}

func TestCheckAddr_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = CheckAddr(addr)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %T: %v", err, err)
	}
	var he *HandshakeError
	if errors.As(err, &he) {
		t.Error("connection failure must not classify as a handshake error")
	}
}

func TestCheckAddr_NotTLS(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			// Speak something that is definitely not TLS.
			c.Write([]byte("220 mail.example ESMTP\r\n"))
			c.Close()
		}
	}()

	_, err = CheckAddr(ln.Addr().String())
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HandshakeError, got %T: %v", err, err)
	}
	if he.Err == nil || he.Error() == "" {
		t.Error("handshake error must carry the underlying diagnostic")
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		t.Error("handshake failure must not classify as a connection error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	for _, err := range []error{
		&ConnectionError{Addr: "x:1", Err: inner},
		&HandshakeError{Addr: "x:1", Err: inner},
		&CryptoError{Err: inner},
	} {
		if !errors.Is(err, inner) {
			t.Errorf("%T does not unwrap to the underlying error", err)
		}
	}
}
