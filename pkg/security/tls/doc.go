/*
Package tls turns keystore material and verification policy into a
crypto/tls configuration for courier clients.

# Keystores

Identities and trusted certificates are loaded from PEM, PKCS#12 or JKS
files. Each entry has an alias; key entries carry a private key.

	ks, err := tls.LoadKeystore("/etc/courier/client.p12", "changeit", tls.StoreTypePKCS12)
	if err != nil {
		log.Fatal(err)
	}
	ts, err := tls.LoadKeystore("/etc/courier/ca.pem", "", tls.StoreTypePEM)

PEM blocks may carry an "Alias" header; otherwise the certificate common
name is used.

KeystoreFromEnv and TruststoreFromEnv read COURIER_TLS_KEYSTORE,
COURIER_TLS_KEYSTORE_PASSWORD and COURIER_TLS_KEYSTORE_TYPE (and the
TRUSTSTORE equivalents). FromEnv builds a whole Config that way.

# Creating a Context

	cfg := tls.NewConfig(
		tls.WithKeystore(ks),
		tls.WithTruststore(ts),
		tls.WithProtocol(tls.ProtocolTLSv12),
		tls.WithKeyAlias("billing-client"),
	)

	tlsConfig, err := tls.CreateContext(cfg)
	if err != nil {
		return err
	}
	tls.ApplyHostnameVerification(tlsConfig, cfg.VerifyHostname())

Certificates are chosen during the handshake by a KeyManager. With a key
alias the choice is restricted to that alias: if the alias does not fit
the key types the peer accepts, no certificate is presented.

WithVerifyCertificate(false) accepts every peer certificate and
WithVerifyHostname(false) skips the host name check. Neither is safe for
production use.
*/
package tls
