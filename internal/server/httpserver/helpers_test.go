package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authgate/internal/logging"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (logging.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return logging.NewJSONLogger(buf, true), buf
}

type observation struct {
	route, resource, method, outcome string
}

// countingRecorder records every metrics call.
type countingRecorder struct {
	mu         sync.Mutex
	before     []observation
	after      []observation
	handshakes atomic.Int64
	opened     atomic.Int64
	closed     atomic.Int64
}

func (r *countingRecorder) Before(route, resource, method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before = append(r.before, observation{route: route, resource: resource, method: method})
}

func (r *countingRecorder) After(route, resource, method, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after = append(r.after, observation{route: route, resource: resource, method: method, outcome: outcome})
}

func (r *countingRecorder) HandshakeFailed() { r.handshakes.Add(1) }
func (r *countingRecorder) ConnOpened()      { r.opened.Add(1) }
func (r *countingRecorder) ConnClosed()      { r.closed.Add(1) }

func (r *countingRecorder) afterCalls() []observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observation(nil), r.after...)
}

// testCert is a self-signed ECDSA certificate for 127.0.0.1 and localhost.
type testCert struct {
	certPEM []byte
	keyPEM  []byte
	pool    *x509.CertPool
}

func newTestCert(t *testing.T, cn string) testCert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(cert)

	return testCert{
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		pool:    pool,
	}
}

func (c testCert) keyPair(t *testing.T) tls.Certificate {
	t.Helper()
	kp, err := tls.X509KeyPair(c.certPEM, c.keyPEM)
	require.NoError(t, err)
	return kp
}

// writeFiles stores the pair as cert.pem and key.pem under a temp dir.
func (c testCert) writeFiles(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, c.certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, c.keyPEM, 0o600))
	return certFile, keyFile
}
