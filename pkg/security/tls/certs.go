package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// expiryWarningDays is the threshold below which expiry is reported.
const expiryWarningDays = 30

// ValidateCertificate checks that the leaf of an identity is currently valid.
func ValidateCertificate(cert *tls.Certificate) error {
	if cert == nil {
		return errors.New("certificate is nil")
	}
	if len(cert.Certificate) == 0 {
		return errors.New("certificate chain is empty")
	}

	leaf := cert.Leaf
	if leaf == nil {
		var err error
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return fmt.Errorf("failed to parse certificate: %w", err)
		}
	}

	return ValidateX509Certificate(leaf)
}

// ValidateX509Certificate checks the validity window of cert.
func ValidateX509Certificate(cert *x509.Certificate) error {
	now := time.Now()

	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	}

	return nil
}

// CheckCertificateExpiration returns the days until cert expires and a
// warning when fewer than 30 days remain.
func CheckCertificateExpiration(cert *x509.Certificate) (daysUntilExpiry int, warning string) {
	daysUntilExpiry = int(time.Until(cert.NotAfter).Hours() / 24)

	if daysUntilExpiry < expiryWarningDays {
		warning = fmt.Sprintf("certificate expires in %d days (on %s)",
			daysUntilExpiry, cert.NotAfter.Format("2006-01-02"))
	}

	return daysUntilExpiry, warning
}

// ValidateCertificateChain verifies an entry chain against the truststore.
func ValidateCertificateChain(chain []*x509.Certificate, truststore *Keystore) error {
	if len(chain) == 0 {
		return errors.New("certificate chain is empty")
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	opts := x509.VerifyOptions{
		Roots:         truststore.CertPool(),
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := chain[0].Verify(opts); err != nil {
		return fmt.Errorf("certificate chain validation failed: %w", err)
	}

	return nil
}

// CertificateInfo is a human-readable summary of one keystore entry.
type CertificateInfo struct {
	Alias              string    `json:"alias"`
	KeyEntry           bool      `json:"key_entry"`
	KeyType            KeyType   `json:"key_type,omitempty"`
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	SerialNumber       string    `json:"serial_number"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	DaysUntilExpiry    int       `json:"days_until_expiry"`
	DNSNames           []string  `json:"dns_names,omitempty"`
	IPAddresses        []string  `json:"ip_addresses,omitempty"`
	ChainLength        int       `json:"chain_length"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	PublicKeyAlgorithm string    `json:"public_key_algorithm"`
}

// ExtractCertificateInfo summarises an x509 certificate.
func ExtractCertificateInfo(cert *x509.Certificate) *CertificateInfo {
	days, _ := CheckCertificateExpiration(cert)
	info := &CertificateInfo{
		KeyType:            keyTypeOf(cert),
		Subject:            cert.Subject.String(),
		Issuer:             cert.Issuer.String(),
		SerialNumber:       fmt.Sprintf("%x", cert.SerialNumber),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		DaysUntilExpiry:    days,
		DNSNames:           cert.DNSNames,
		ChainLength:        1,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		PublicKeyAlgorithm: cert.PublicKeyAlgorithm.String(),
	}

	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}

	return info
}

// DescribeKeystore summarises every entry of ks in alias order.
func DescribeKeystore(ks *Keystore) []*CertificateInfo {
	var out []*CertificateInfo
	for _, e := range ks.Entries() {
		leaf := e.Leaf()
		if leaf == nil {
			continue
		}
		info := ExtractCertificateInfo(leaf)
		info.Alias = e.Alias
		info.KeyEntry = e.IsKeyEntry()
		info.ChainLength = len(e.Chain)
		out = append(out, info)
	}
	return out
}
