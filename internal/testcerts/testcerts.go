// Package testcerts generates certificates and keystore files for tests.
package testcerts

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"software.sslmate.com/src/go-pkcs12"
)

// KeyAlgorithm selects the key type of a generated identity.
type KeyAlgorithm int

const (
	ECDSA KeyAlgorithm = iota
	RSA
	Ed25519
)

// Identity is a certificate with its private key.
type Identity struct {
	Cert *x509.Certificate
	Key  crypto.Signer
}

// NewCA creates a self-signed certificate authority.
func NewCA(t testing.TB, cn string) *Identity {
	t.Helper()

	key := generateKey(t, ECDSA)
	tmpl := &x509.Certificate{
		SerialNumber:          serial(t),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"courier test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	return sign(t, tmpl, tmpl, key, key)
}

// Issue creates a leaf certificate for localhost signed by ca.
func (ca *Identity) Issue(t testing.TB, cn string, alg KeyAlgorithm) *Identity {
	t.Helper()
	return ca.IssueValid(t, cn, alg, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
}

// IssueValid creates a leaf certificate with an explicit validity window.
func (ca *Identity) IssueValid(t testing.TB, cn string, alg KeyAlgorithm, notBefore, notAfter time.Time) *Identity {
	t.Helper()

	key := generateKey(t, alg)
	usage := x509.KeyUsageDigitalSignature
	if alg == RSA {
		usage |= x509.KeyUsageKeyEncipherment
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial(t),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     usage,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}

	return sign(t, tmpl, ca.Cert, key, ca.Key)
}

// TLSCertificate returns the identity as a crypto/tls certificate with
// the given issuers appended to the chain.
func (id *Identity) TLSCertificate(chain ...*Identity) tls.Certificate {
	der := [][]byte{id.Cert.Raw}
	for _, c := range chain {
		der = append(der, c.Cert.Raw)
	}
	return tls.Certificate{Certificate: der, PrivateKey: id.Key, Leaf: id.Cert}
}

// CertPEM encodes the certificate, optionally with an Alias header.
func (id *Identity) CertPEM(alias string) []byte {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: id.Cert.Raw}
	if alias != "" {
		block.Headers = map[string]string{"Alias": alias}
	}
	return pem.EncodeToMemory(block)
}

// KeyPEM encodes the private key as PKCS#8, optionally with an Alias header.
func (id *Identity) KeyPEM(t testing.TB, alias string) []byte {
	t.Helper()
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: id.pkcs8(t)}
	if alias != "" {
		block.Headers = map[string]string{"Alias": alias}
	}
	return pem.EncodeToMemory(block)
}

// CertPool returns a pool containing the identity certificate.
func (id *Identity) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(id.Cert)
	return pool
}

func (id *Identity) pkcs8(t testing.TB) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(id.Key)
	if err != nil {
		t.Fatalf("failed to marshal private key: %v", err)
	}
	return der
}

// WriteFile writes data to name inside a fresh temporary directory.
func WriteFile(t testing.TB, name string, data ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Join(data, nil), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// PKCS12 encodes an identity and its chain.
func PKCS12(t testing.TB, password string, id *Identity, chain ...*Identity) []byte {
	t.Helper()
	var cas []*x509.Certificate
	for _, c := range chain {
		cas = append(cas, c.Cert)
	}
	data, err := pkcs12.Modern.Encode(id.Key, id.Cert, cas, password)
	if err != nil {
		t.Fatalf("failed to encode PKCS12: %v", err)
	}
	return data
}

// PKCS12TrustStore encodes trusted certificates without keys.
func PKCS12TrustStore(t testing.TB, password string, certs ...*Identity) []byte {
	t.Helper()
	var list []*x509.Certificate
	for _, c := range certs {
		list = append(list, c.Cert)
	}
	data, err := pkcs12.Modern.EncodeTrustStore(list, password)
	if err != nil {
		t.Fatalf("failed to encode PKCS12 trust store: %v", err)
	}
	return data
}

// JKSEntry is one entry written by JKS. Entries without Chain and with
// Trusted set are stored as trusted certificates.
type JKSEntry struct {
	Alias    string
	Identity *Identity
	Chain    []*Identity
	Trusted  bool
}

// JKS encodes entries as a Java KeyStore. Key entries use the store password.
func JKS(t testing.TB, password string, entries ...JKSEntry) []byte {
	t.Helper()

	ks := keystore.New()
	for _, e := range entries {
		if e.Trusted {
			err := ks.SetTrustedCertificateEntry(e.Alias, keystore.TrustedCertificateEntry{
				CreationTime: time.Now(),
				Certificate:  keystore.Certificate{Type: "X509", Content: e.Identity.Cert.Raw},
			})
			if err != nil {
				t.Fatalf("failed to add trusted entry %q: %v", e.Alias, err)
			}
			continue
		}

		chain := []keystore.Certificate{{Type: "X509", Content: e.Identity.Cert.Raw}}
		for _, c := range e.Chain {
			chain = append(chain, keystore.Certificate{Type: "X509", Content: c.Cert.Raw})
		}
		err := ks.SetPrivateKeyEntry(e.Alias, keystore.PrivateKeyEntry{
			CreationTime:     time.Now(),
			PrivateKey:       e.Identity.pkcs8(t),
			CertificateChain: chain,
		}, []byte(password))
		if err != nil {
			t.Fatalf("failed to add key entry %q: %v", e.Alias, err)
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		t.Fatalf("failed to store JKS: %v", err)
	}
	return buf.Bytes()
}

func generateKey(t testing.TB, alg KeyAlgorithm) crypto.Signer {
	t.Helper()

	var (
		key crypto.Signer
		err error
	)
	switch alg {
	case RSA:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	case Ed25519:
		_, key, err = ed25519.GenerateKey(rand.Reader)
	default:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func serial(t testing.TB) *big.Int {
	t.Helper()
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatalf("failed to generate serial: %v", err)
	}
	return n
}

func sign(t testing.TB, tmpl, parent *x509.Certificate, key, parentKey crypto.Signer) *Identity {
	t.Helper()

	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, key.Public(), parentKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return &Identity{Cert: cert, Key: key}
}
