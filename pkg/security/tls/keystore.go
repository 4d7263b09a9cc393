package tls

import (
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"software.sslmate.com/src/go-pkcs12"
)

// StoreType identifies the on-disk format of a keystore.
type StoreType string

const (
	// StoreTypePEM is a file of concatenated PEM blocks
	StoreTypePEM StoreType = "PEM"

	// StoreTypePKCS12 is a PKCS#12 (.p12/.pfx) archive
	StoreTypePKCS12 StoreType = "PKCS12"

	// StoreTypeJKS is a Java KeyStore file
	StoreTypeJKS StoreType = "JKS"
)

// DefaultStoreType is used when no type is given.
const DefaultStoreType = StoreTypePEM

// Environment variables read by KeystoreFromEnv and TruststoreFromEnv.
const (
	EnvKeystore           = "COURIER_TLS_KEYSTORE"
	EnvKeystorePassword   = "COURIER_TLS_KEYSTORE_PASSWORD"
	EnvKeystoreType       = "COURIER_TLS_KEYSTORE_TYPE"
	EnvTruststore         = "COURIER_TLS_TRUSTSTORE"
	EnvTruststorePassword = "COURIER_TLS_TRUSTSTORE_PASSWORD"
	EnvTruststoreType     = "COURIER_TLS_TRUSTSTORE_TYPE"
)

// ParseStoreType converts a store type name. An empty name yields DefaultStoreType.
func ParseStoreType(s string) (StoreType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DefaultStoreType, nil
	case "PEM":
		return StoreTypePEM, nil
	case "PKCS12", "P12", "PFX":
		return StoreTypePKCS12, nil
	case "JKS":
		return StoreTypeJKS, nil
	default:
		return "", fmt.Errorf("unsupported keystore type %q", s)
	}
}

// Entry is one named item of a keystore. Key entries carry a certificate
// with its private key; trusted entries only carry a certificate chain.
type Entry struct {
	// Alias names the entry within its keystore
	Alias string

	// Certificate is the identity (nil for trusted certificate entries)
	Certificate *tls.Certificate

	// Chain holds the parsed certificates, leaf first
	Chain []*x509.Certificate
}

// IsKeyEntry reports whether the entry holds a private key.
func (e Entry) IsKeyEntry() bool {
	return e.Certificate != nil
}

// Leaf returns the first certificate of the chain, or nil.
func (e Entry) Leaf() *x509.Certificate {
	if len(e.Chain) == 0 {
		return nil
	}
	return e.Chain[0]
}

// Keystore is a loaded set of identities and trusted certificates.
// A Keystore is read-only after loading and safe for concurrent use.
type Keystore struct {
	path      string
	storeType StoreType
	password  string
	entries   []Entry
}

// LoadKeystore reads and decodes the keystore at path.
func LoadKeystore(path, password string, storeType StoreType) (*Keystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CryptoConfigError{Op: "read keystore", Path: path, Cause: err}
	}

	ks, err := ParseKeystore(data, password, storeType)
	if err != nil {
		var cerr *CryptoConfigError
		if errors.As(err, &cerr) && cerr.Path == "" {
			cerr.Path = path
		}
		return nil, err
	}
	ks.path = path

	ks.logEntries()
	return ks, nil
}

// ParseKeystore decodes keystore bytes of the given type.
func ParseKeystore(data []byte, password string, storeType StoreType) (*Keystore, error) {
	if storeType == "" {
		storeType = DefaultStoreType
	}

	var (
		entries []Entry
		err     error
	)
	switch storeType {
	case StoreTypePEM:
		entries, err = decodePEM(data)
	case StoreTypePKCS12:
		entries, err = decodePKCS12(data, password)
	case StoreTypeJKS:
		entries, err = decodeJKS(data, password)
	default:
		err = fmt.Errorf("unsupported keystore type %q", storeType)
	}
	if err != nil {
		return nil, &CryptoConfigError{Op: "load keystore", Cause: err}
	}

	return newKeystore(storeType, password, entries)
}

// NewKeystore builds an in-memory keystore from entries.
func NewKeystore(entries ...Entry) (*Keystore, error) {
	return newKeystore(StoreTypePEM, "", entries)
}

func newKeystore(storeType StoreType, password string, entries []Entry) (*Keystore, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Alias == "" {
			return nil, &CryptoConfigError{Op: "load keystore", Cause: errors.New("entry without alias")}
		}
		if seen[e.Alias] {
			return nil, &CryptoConfigError{Op: "load keystore", Cause: fmt.Errorf("duplicate alias %q", e.Alias)}
		}
		if len(e.Chain) == 0 {
			return nil, &CryptoConfigError{Op: "load keystore", Cause: fmt.Errorf("entry %q has no certificate", e.Alias)}
		}
		seen[e.Alias] = true
	}

	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Alias < sorted[j].Alias })

	return &Keystore{storeType: storeType, password: password, entries: sorted}, nil
}

// KeystoreFromEnv loads the keystore named by COURIER_TLS_KEYSTORE.
// It returns nil, nil when the variable is unset.
func KeystoreFromEnv() (*Keystore, error) {
	return storeFromEnv(EnvKeystore, EnvKeystorePassword, EnvKeystoreType)
}

// TruststoreFromEnv loads the truststore named by COURIER_TLS_TRUSTSTORE.
// It returns nil, nil when the variable is unset.
func TruststoreFromEnv() (*Keystore, error) {
	return storeFromEnv(EnvTruststore, EnvTruststorePassword, EnvTruststoreType)
}

func storeFromEnv(pathVar, passwordVar, typeVar string) (*Keystore, error) {
	path := os.Getenv(pathVar)
	if path == "" {
		return nil, nil
	}

	storeType, err := ParseStoreType(os.Getenv(typeVar))
	if err != nil {
		return nil, &CryptoConfigError{Op: "keystore type from " + typeVar, Cause: err}
	}

	return LoadKeystore(path, os.Getenv(passwordVar), storeType)
}

// Path returns the file the keystore was loaded from ("" for in-memory stores).
func (k *Keystore) Path() string { return k.path }

// Type returns the store format.
func (k *Keystore) Type() StoreType { return k.storeType }

// Password returns the password used to open the store.
func (k *Keystore) Password() string { return k.password }

// Aliases returns all aliases in sorted order.
func (k *Keystore) Aliases() []string {
	out := make([]string, len(k.entries))
	for i, e := range k.entries {
		out[i] = e.Alias
	}
	return out
}

// Entries returns a copy of all entries in alias order.
func (k *Keystore) Entries() []Entry {
	return append([]Entry(nil), k.entries...)
}

// Entry returns the entry with the given alias.
func (k *Keystore) Entry(alias string) (Entry, bool) {
	for _, e := range k.entries {
		if e.Alias == alias {
			return e, true
		}
	}
	return Entry{}, false
}

// CertPool returns a pool holding the leaf certificate of every entry.
func (k *Keystore) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, e := range k.entries {
		if leaf := e.Leaf(); leaf != nil {
			pool.AddCert(leaf)
		}
	}
	return pool
}

// String summarises the keystore without secrets.
func (k *Keystore) String() string {
	path := k.path
	if path == "" {
		path = "<memory>"
	}
	return fmt.Sprintf("%s(%s)%v", k.storeType, path, k.Aliases())
}

// logEntries reports loaded entries and warns about certificates that are
// expired or close to expiry.
func (k *Keystore) logEntries() {
	for _, e := range k.entries {
		leaf := e.Leaf()
		if leaf == nil {
			continue
		}

		if err := ValidateX509Certificate(leaf); err != nil {
			slog.Warn("keystore certificate is not currently valid",
				"path", k.path,
				"alias", e.Alias,
				"error", err,
			)
			continue
		}

		days, warning := CheckCertificateExpiration(leaf)
		if warning != "" {
			slog.Warn("keystore certificate expiring soon",
				"path", k.path,
				"alias", e.Alias,
				"expires_in_days", days,
				"expires_at", leaf.NotAfter.Format(time.RFC3339),
			)
			continue
		}

		slog.Debug("keystore entry loaded",
			"path", k.path,
			"alias", e.Alias,
			"key_entry", e.IsKeyEntry(),
			"subject", leaf.Subject.CommonName,
			"expires_in_days", days,
		)
	}
}

// aliasHeader is the optional PEM header naming an entry.
const aliasHeader = "Alias"

// decodePEM pairs each private key with the certificate carrying its public
// key and the issuers that follow it. Certificates not used in any chain
// become trusted entries.
func decodePEM(data []byte) ([]Entry, error) {
	type pemCert struct {
		cert  *x509.Certificate
		alias string
		used  bool
	}
	type pemKey struct {
		key   crypto.Signer
		alias string
	}

	var (
		certs []*pemCert
		keys  []pemKey
	)

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, &pemCert{cert: cert, alias: block.Headers[aliasHeader]})
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return nil, err
			}
			keys = append(keys, pemKey{key: key, alias: block.Headers[aliasHeader]})
		case "ENCRYPTED PRIVATE KEY":
			return nil, errors.New("encrypted PEM private keys are not supported, use PKCS12 or JKS")
		}
	}

	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}

	var entries []Entry
	for i, k := range keys {
		leafIdx := -1
		for j, c := range certs {
			if publicKeysEqual(c.cert.PublicKey, k.key.Public()) {
				leafIdx = j
				break
			}
		}
		if leafIdx < 0 {
			return nil, fmt.Errorf("private key %d has no matching certificate", i+1)
		}

		chain := []*x509.Certificate{certs[leafIdx].cert}
		certs[leafIdx].used = true
		for j := leafIdx + 1; j < len(certs); j++ {
			prev := chain[len(chain)-1]
			if !bytes.Equal(prev.RawIssuer, certs[j].cert.RawSubject) || bytes.Equal(prev.RawIssuer, prev.RawSubject) {
				break
			}
			chain = append(chain, certs[j].cert)
			certs[j].used = true
		}

		alias := firstNonEmpty(k.alias, certs[leafIdx].alias, chain[0].Subject.CommonName)
		entries = append(entries, Entry{
			Alias:       alias,
			Certificate: newCertificate(k.key, chain),
			Chain:       chain,
		})
	}

	for _, c := range certs {
		if c.used {
			continue
		}
		entries = append(entries, Entry{
			Alias: firstNonEmpty(c.alias, c.cert.Subject.CommonName),
			Chain: []*x509.Certificate{c.cert},
		})
	}

	return uniqueAliases(entries), nil
}

func decodePKCS12(data []byte, password string) ([]Entry, error) {
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		chain := append([]*x509.Certificate{leaf}, caCerts...)
		return []Entry{{
			Alias:       firstNonEmpty(leaf.Subject.CommonName, "1"),
			Certificate: newCertificate(signer, chain),
			Chain:       chain,
		}}, nil
	}

	// Archives without a key are trust stores.
	trusted, trustErr := pkcs12.DecodeTrustStore(data, password)
	if trustErr != nil {
		return nil, fmt.Errorf("failed to decode PKCS12: %w", err)
	}

	entries := make([]Entry, 0, len(trusted))
	for i, cert := range trusted {
		entries = append(entries, Entry{
			Alias: firstNonEmpty(cert.Subject.CommonName, fmt.Sprintf("%d", i+1)),
			Chain: []*x509.Certificate{cert},
		})
	}
	return uniqueAliases(entries), nil
}

func decodeJKS(data []byte, password string) ([]Entry, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, fmt.Errorf("failed to decode JKS: %w", err)
	}

	var entries []Entry
	for _, alias := range ks.Aliases() {
		switch {
		case ks.IsPrivateKeyEntry(alias):
			pke, err := ks.GetPrivateKeyEntry(alias, []byte(password))
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", alias, err)
			}
			key, err := x509.ParsePKCS8PrivateKey(pke.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("entry %q: failed to parse private key: %w", alias, err)
			}
			signer, ok := key.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("entry %q: unsupported private key type %T", alias, key)
			}
			chain, err := parseJKSChain(pke.CertificateChain)
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", alias, err)
			}
			entries = append(entries, Entry{
				Alias:       alias,
				Certificate: newCertificate(signer, chain),
				Chain:       chain,
			})

		case ks.IsTrustedCertificateEntry(alias):
			tce, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", alias, err)
			}
			chain, err := parseJKSChain([]keystore.Certificate{tce.Certificate})
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", alias, err)
			}
			entries = append(entries, Entry{Alias: alias, Chain: chain})
		}
	}

	return entries, nil
}

func parseJKSChain(certs []keystore.Certificate) ([]*x509.Certificate, error) {
	if len(certs) == 0 {
		return nil, errors.New("empty certificate chain")
	}
	chain := make([]*x509.Certificate, 0, len(certs))
	for _, c := range certs {
		cert, err := x509.ParseCertificate(c.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer, nil
}

func newCertificate(key crypto.Signer, chain []*x509.Certificate) *tls.Certificate {
	der := make([][]byte, len(chain))
	for i, c := range chain {
		der[i] = c.Raw
	}
	return &tls.Certificate{
		Certificate: der,
		PrivateKey:  key,
		Leaf:        chain[0],
	}
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// uniqueAliases fills missing aliases and suffixes duplicates.
func uniqueAliases(entries []Entry) []Entry {
	seen := make(map[string]int, len(entries))
	for i := range entries {
		alias := entries[i].Alias
		if alias == "" {
			alias = fmt.Sprintf("entry-%d", i+1)
		}
		if n := seen[alias]; n > 0 {
			seen[alias] = n + 1
			alias = fmt.Sprintf("%s-%d", alias, n+1)
		}
		seen[alias]++
		entries[i].Alias = alias
	}
	return entries
}
