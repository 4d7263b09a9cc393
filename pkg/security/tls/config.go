package tls

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Protocol names a TLS protocol family.
type Protocol string

const (
	// ProtocolTLS negotiates any version the runtime supports
	ProtocolTLS Protocol = "TLS"

	ProtocolTLSv1  Protocol = "TLSv1"
	ProtocolTLSv11 Protocol = "TLSv1.1"
	ProtocolTLSv12 Protocol = "TLSv1.2"
	ProtocolTLSv13 Protocol = "TLSv1.3"
)

// DefaultProtocol is used when no protocol is configured.
const DefaultProtocol = ProtocolTLSv12

// Environment variables read by FromEnv in addition to the keystore variables.
const (
	EnvProtocol          = "COURIER_TLS_PROTOCOL"
	EnvKeyAlias          = "COURIER_TLS_KEY_ALIAS"
	EnvVerifyCertificate = "COURIER_TLS_VERIFY_CERTIFICATE"
	EnvVerifyHostname    = "COURIER_TLS_VERIFY_HOSTNAME"
)

// ParseProtocol converts a protocol name. An empty name yields DefaultProtocol.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DefaultProtocol, nil
	case "TLS":
		return ProtocolTLS, nil
	case "TLSV1", "TLSV1.0", "1.0":
		return ProtocolTLSv1, nil
	case "TLSV1.1", "1.1":
		return ProtocolTLSv11, nil
	case "TLSV1.2", "1.2":
		return ProtocolTLSv12, nil
	case "TLSV1.3", "1.3":
		return ProtocolTLSv13, nil
	default:
		return "", fmt.Errorf("unsupported TLS protocol %q", s)
	}
}

// versions returns the Min/MaxVersion pair for the protocol. A versioned
// protocol pins both; ProtocolTLS leaves the runtime defaults (zero).
func (p Protocol) versions() (minVersion, maxVersion uint16, err error) {
	switch p {
	case ProtocolTLS:
		return 0, 0, nil
	case ProtocolTLSv1:
		return tls.VersionTLS10, tls.VersionTLS10, nil
	case ProtocolTLSv11:
		return tls.VersionTLS11, tls.VersionTLS11, nil
	case ProtocolTLSv12, "":
		return tls.VersionTLS12, tls.VersionTLS12, nil
	case ProtocolTLSv13:
		return tls.VersionTLS13, tls.VersionTLS13, nil
	default:
		return 0, 0, fmt.Errorf("unsupported TLS protocol %q", string(p))
	}
}

// Config holds key material and verification policy for one endpoint.
// Values are immutable; build them with NewConfig.
type Config struct {
	keystore          *Keystore
	truststore        *Keystore
	protocol          Protocol
	keyAlias          string
	verifyCertificate bool
	verifyHostname    bool
}

// Option configures a Config.
type Option func(*Config)

// WithKeystore sets the identity material.
func WithKeystore(ks *Keystore) Option {
	return func(c *Config) { c.keystore = ks }
}

// WithTruststore sets the trusted issuers.
func WithTruststore(ts *Keystore) Option {
	return func(c *Config) { c.truststore = ts }
}

// WithProtocol sets the protocol.
func WithProtocol(p Protocol) Option {
	return func(c *Config) { c.protocol = p }
}

// WithKeyAlias pins the keystore identity to present.
func WithKeyAlias(alias string) Option {
	return func(c *Config) { c.keyAlias = alias }
}

// WithVerifyCertificate toggles peer chain verification.
// Disabling it accepts any peer and must not be used in production.
func WithVerifyCertificate(verify bool) Option {
	return func(c *Config) { c.verifyCertificate = verify }
}

// WithVerifyHostname toggles peer host name verification.
// Disabling it must not be used in production.
func WithVerifyHostname(verify bool) Option {
	return func(c *Config) { c.verifyHostname = verify }
}

// NewConfig returns a Config with the default protocol and both
// verifications enabled, then applies opts.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		protocol:          DefaultProtocol,
		verifyCertificate: true,
		verifyHostname:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv builds a Config from COURIER_TLS_* environment variables.
func FromEnv() (*Config, error) {
	ks, err := KeystoreFromEnv()
	if err != nil {
		return nil, err
	}
	ts, err := TruststoreFromEnv()
	if err != nil {
		return nil, err
	}

	protocol, err := ParseProtocol(os.Getenv(EnvProtocol))
	if err != nil {
		return nil, &CryptoConfigError{Op: "protocol from " + EnvProtocol, Cause: err}
	}

	verifyCert, err := envBool(EnvVerifyCertificate, true)
	if err != nil {
		return nil, err
	}
	verifyHost, err := envBool(EnvVerifyHostname, true)
	if err != nil {
		return nil, err
	}

	return NewConfig(
		WithKeystore(ks),
		WithTruststore(ts),
		WithProtocol(protocol),
		WithKeyAlias(os.Getenv(EnvKeyAlias)),
		WithVerifyCertificate(verifyCert),
		WithVerifyHostname(verifyHost),
	), nil
}

func envBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &CryptoConfigError{Op: "parse " + name, Cause: err}
	}
	return b, nil
}

// Keystore returns the identity material, or nil.
func (c *Config) Keystore() *Keystore { return c.keystore }

// Truststore returns the trusted issuers, or nil.
func (c *Config) Truststore() *Keystore { return c.truststore }

// Protocol returns the configured protocol.
func (c *Config) Protocol() Protocol { return c.protocol }

// KeyAlias returns the pinned alias ("" when unset).
func (c *Config) KeyAlias() string { return c.keyAlias }

// VerifyCertificate reports whether peer chains are verified.
func (c *Config) VerifyCertificate() bool { return c.verifyCertificate }

// VerifyHostname reports whether peer host names are verified.
func (c *Config) VerifyHostname() bool { return c.verifyHostname }

// String summarises the configuration without secrets.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TLS{protocol=%s", c.protocol)
	if c.keystore != nil {
		fmt.Fprintf(&b, ", keystore=%s", c.keystore)
	}
	if c.truststore != nil {
		fmt.Fprintf(&b, ", truststore=%s", c.truststore)
	}
	if c.keyAlias != "" {
		fmt.Fprintf(&b, ", alias=%s", c.keyAlias)
	}
	fmt.Fprintf(&b, ", verifyCertificate=%t, verifyHostname=%t}", c.verifyCertificate, c.verifyHostname)
	return b.String()
}

// KeyManager returns the identity selector for the keystore, pinned to the
// key alias when one is set. It returns nil without a keystore.
func (c *Config) KeyManager() KeyManager {
	if c.keystore == nil {
		return nil
	}
	var km KeyManager = NewStoreKeyManager(c.keystore)
	if c.keyAlias != "" {
		km = NewAliasKeyManager(km, c.keyAlias)
	}
	return km
}

// CreateContext builds a crypto/tls configuration from cfg. The result can
// be used by clients and servers. Host name policy is applied separately by
// ApplyHostnameVerification.
func CreateContext(cfg *Config) (*tls.Config, error) {
	if cfg == nil {
		return nil, &CryptoConfigError{Op: "create context", Cause: errors.New("config is nil")}
	}

	minVersion, maxVersion, err := cfg.protocol.versions()
	if err != nil {
		return nil, &CryptoConfigError{Op: "create context", Cause: err}
	}

	// #nosec G402 - protocol versions are chosen explicitly by configuration
	tlsConfig := &tls.Config{
		MinVersion: minVersion,
		MaxVersion: maxVersion,
		Rand:       rand.Reader,
	}

	if cfg.keyAlias != "" && cfg.keystore == nil {
		return nil, &CryptoConfigError{Op: "create context", Cause: fmt.Errorf("key alias %q set without a keystore", cfg.keyAlias)}
	}

	if km := cfg.KeyManager(); km != nil {
		if cfg.keyAlias != "" {
			if entry, ok := cfg.keystore.Entry(cfg.keyAlias); !ok || !entry.IsKeyEntry() {
				slog.Warn("key alias has no key entry, handshakes needing a certificate will fail",
					"alias", cfg.keyAlias,
					"keystore", cfg.keystore.String(),
				)
			}
		}
		tlsConfig.GetClientCertificate = clientCertificateFunc(km)
		tlsConfig.GetCertificate = serverCertificateFunc(km)
	}

	switch {
	case !cfg.verifyCertificate:
		// #nosec G402 - certificate verification explicitly disabled by configuration
		tlsConfig.InsecureSkipVerify = true
		tlsConfig.VerifyPeerCertificate = acceptAll
	case cfg.truststore != nil:
		pool := cfg.truststore.CertPool()
		tlsConfig.RootCAs = pool
		tlsConfig.ClientCAs = pool
	}

	return tlsConfig, nil
}

// acceptAll trusts every peer chain.
func acceptAll([][]byte, [][]*x509.Certificate) error {
	return nil
}

// ApplyHostnameVerification disables host name checks on tlsConfig when
// verify is false. The peer chain is still verified against RootCAs (or the
// system pool) unless certificate verification was already disabled.
func ApplyHostnameVerification(tlsConfig *tls.Config, verify bool) {
	if verify || tlsConfig.InsecureSkipVerify {
		return
	}

	roots := tlsConfig.RootCAs
	// #nosec G402 - chain verification is performed in VerifyConnection
	tlsConfig.InsecureSkipVerify = true
	tlsConfig.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("tls: peer presented no certificate")
		}

		intermediates := x509.NewCertPool()
		for _, c := range cs.PeerCertificates[1:] {
			intermediates.AddCert(c)
		}

		_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		return err
	}
}
