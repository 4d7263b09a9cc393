package tls

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"slices"
)

// KeyType is the public key algorithm of an identity.
type KeyType string

const (
	KeyTypeRSA     KeyType = "RSA"
	KeyTypeEC      KeyType = "EC"
	KeyTypeEd25519 KeyType = "Ed25519"
)

// allKeyTypes is offered when a peer does not restrict signature schemes.
var allKeyTypes = []KeyType{KeyTypeRSA, KeyTypeEC, KeyTypeEd25519}

// KeyManager selects which identity to present during a handshake.
// Issuers are DER-encoded distinguished names; an empty list accepts any issuer.
// The Choose methods return "" when no identity can be selected.
type KeyManager interface {
	// ClientAliases lists aliases usable as a client identity
	ClientAliases(keyType KeyType, issuers [][]byte) []string

	// ServerAliases lists aliases usable as a server identity
	ServerAliases(keyType KeyType, issuers [][]byte) []string

	// ChooseClientAlias picks a client identity for the first matching key type
	ChooseClientAlias(keyTypes []KeyType, issuers [][]byte) string

	// ChooseServerAlias picks a server identity for the key type
	ChooseServerAlias(keyType KeyType, issuers [][]byte) string

	// Certificate returns the identity for an alias, or nil
	Certificate(alias string) *tls.Certificate
}

// StoreKeyManager selects identities from the key entries of a Keystore in
// alias order.
type StoreKeyManager struct {
	entries []Entry
}

// NewStoreKeyManager creates a key manager over the key entries of ks.
func NewStoreKeyManager(ks *Keystore) *StoreKeyManager {
	m := &StoreKeyManager{}
	for _, e := range ks.Entries() {
		if e.IsKeyEntry() {
			m.entries = append(m.entries, e)
		}
	}
	return m
}

// ClientAliases implements KeyManager.
func (m *StoreKeyManager) ClientAliases(keyType KeyType, issuers [][]byte) []string {
	return m.aliases(keyType, issuers)
}

// ServerAliases implements KeyManager.
func (m *StoreKeyManager) ServerAliases(keyType KeyType, issuers [][]byte) []string {
	return m.aliases(keyType, issuers)
}

// ChooseClientAlias implements KeyManager.
func (m *StoreKeyManager) ChooseClientAlias(keyTypes []KeyType, issuers [][]byte) string {
	for _, kt := range keyTypes {
		if aliases := m.aliases(kt, issuers); len(aliases) > 0 {
			return aliases[0]
		}
	}
	return ""
}

// ChooseServerAlias implements KeyManager.
func (m *StoreKeyManager) ChooseServerAlias(keyType KeyType, issuers [][]byte) string {
	if aliases := m.aliases(keyType, issuers); len(aliases) > 0 {
		return aliases[0]
	}
	return ""
}

// Certificate implements KeyManager.
func (m *StoreKeyManager) Certificate(alias string) *tls.Certificate {
	for _, e := range m.entries {
		if e.Alias == alias {
			return e.Certificate
		}
	}
	return nil
}

func (m *StoreKeyManager) aliases(keyType KeyType, issuers [][]byte) []string {
	var out []string
	for _, e := range m.entries {
		if keyTypeOf(e.Leaf()) != keyType {
			continue
		}
		if !issuedByAny(e.Chain, issuers) {
			continue
		}
		out = append(out, e.Alias)
	}
	return out
}

// AliasKeyManager restricts a KeyManager to a single alias. The alias is
// chosen only when the delegate lists it for a requested key type;
// otherwise nothing is chosen. An empty alias delegates unchanged.
type AliasKeyManager struct {
	delegate KeyManager
	alias    string
}

// NewAliasKeyManager wraps delegate so that only alias is ever chosen.
func NewAliasKeyManager(delegate KeyManager, alias string) *AliasKeyManager {
	return &AliasKeyManager{delegate: delegate, alias: alias}
}

// Alias returns the pinned alias.
func (m *AliasKeyManager) Alias() string { return m.alias }

// ClientAliases implements KeyManager.
func (m *AliasKeyManager) ClientAliases(keyType KeyType, issuers [][]byte) []string {
	return m.delegate.ClientAliases(keyType, issuers)
}

// ServerAliases implements KeyManager.
func (m *AliasKeyManager) ServerAliases(keyType KeyType, issuers [][]byte) []string {
	return m.delegate.ServerAliases(keyType, issuers)
}

// ChooseClientAlias implements KeyManager. Each key type is checked on its own.
func (m *AliasKeyManager) ChooseClientAlias(keyTypes []KeyType, issuers [][]byte) string {
	if m.alias == "" {
		return m.delegate.ChooseClientAlias(keyTypes, issuers)
	}

	for _, kt := range keyTypes {
		if slices.Contains(m.delegate.ClientAliases(kt, issuers), m.alias) {
			return m.alias
		}
	}
	return ""
}

// ChooseServerAlias implements KeyManager.
func (m *AliasKeyManager) ChooseServerAlias(keyType KeyType, issuers [][]byte) string {
	if m.alias == "" {
		return m.delegate.ChooseServerAlias(keyType, issuers)
	}

	if slices.Contains(m.delegate.ServerAliases(keyType, issuers), m.alias) {
		return m.alias
	}
	return ""
}

// Certificate implements KeyManager.
func (m *AliasKeyManager) Certificate(alias string) *tls.Certificate {
	return m.delegate.Certificate(alias)
}

// clientCertificateFunc adapts a KeyManager to tls.Config.GetClientCertificate.
// When nothing is chosen an empty certificate is sent, which makes servers
// that require client authentication reject the handshake.
func clientCertificateFunc(km KeyManager) func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return func(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
		alias := km.ChooseClientAlias(keyTypesFor(info.SignatureSchemes), info.AcceptableCAs)
		if alias == "" {
			return &tls.Certificate{}, nil
		}
		if cert := km.Certificate(alias); cert != nil {
			return cert, nil
		}
		return &tls.Certificate{}, nil
	}
}

// serverCertificateFunc adapts a KeyManager to tls.Config.GetCertificate.
func serverCertificateFunc(km KeyManager) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		for _, kt := range keyTypesFor(hello.SignatureSchemes) {
			alias := km.ChooseServerAlias(kt, nil)
			if alias == "" {
				continue
			}
			if cert := km.Certificate(alias); cert != nil {
				return cert, nil
			}
		}
		return nil, fmt.Errorf("no server certificate available for %q", hello.ServerName)
	}
}

// keyTypesFor maps offered signature schemes to key types, preserving order.
func keyTypesFor(schemes []tls.SignatureScheme) []KeyType {
	if len(schemes) == 0 {
		return allKeyTypes
	}

	var out []KeyType
	for _, s := range schemes {
		var kt KeyType
		switch s {
		case tls.PKCS1WithSHA1, tls.PKCS1WithSHA256, tls.PKCS1WithSHA384, tls.PKCS1WithSHA512,
			tls.PSSWithSHA256, tls.PSSWithSHA384, tls.PSSWithSHA512:
			kt = KeyTypeRSA
		case tls.ECDSAWithSHA1, tls.ECDSAWithP256AndSHA256, tls.ECDSAWithP384AndSHA384, tls.ECDSAWithP521AndSHA512:
			kt = KeyTypeEC
		case tls.Ed25519:
			kt = KeyTypeEd25519
		default:
			continue
		}
		if !slices.Contains(out, kt) {
			out = append(out, kt)
		}
	}
	return out
}

func keyTypeOf(cert *x509.Certificate) KeyType {
	if cert == nil {
		return ""
	}
	switch cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return KeyTypeRSA
	case *ecdsa.PublicKey:
		return KeyTypeEC
	case ed25519.PublicKey:
		return KeyTypeEd25519
	default:
		return ""
	}
}

// issuedByAny reports whether any certificate in chain was issued by, or is,
// one of the named issuers.
func issuedByAny(chain []*x509.Certificate, issuers [][]byte) bool {
	if len(issuers) == 0 {
		return true
	}
	for _, c := range chain {
		for _, name := range issuers {
			if bytes.Equal(c.RawIssuer, name) || bytes.Equal(c.RawSubject, name) {
				return true
			}
		}
	}
	return false
}
