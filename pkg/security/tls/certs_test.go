package tls

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"testing"
	"time"

	"mercator-hq/courier/internal/testcerts"
)

func TestValidateCertificate(t *testing.T) {
	ca := testcerts.NewCA(t, "Root")
	valid := ca.Issue(t, "valid", testcerts.ECDSA).TLSCertificate()
	noLeaf := valid
	noLeaf.Leaf = nil

	tests := []struct {
		name        string
		cert        *tls.Certificate
		expectError bool
	}{
		{name: "valid certificate", cert: &valid},
		{name: "leaf parsed from DER", cert: &noLeaf},
		{name: "nil certificate", cert: nil, expectError: true},
		{name: "empty chain", cert: &tls.Certificate{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCertificate(tt.cert)
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateX509Certificate(t *testing.T) {
	ca := testcerts.NewCA(t, "Root")
	now := time.Now()

	tests := []struct {
		name        string
		cert        *x509.Certificate
		expectError bool
	}{
		{
			name: "valid certificate",
			cert: ca.Issue(t, "valid", testcerts.ECDSA).Cert,
		},
		{
			name:        "expired certificate",
			cert:        ca.IssueValid(t, "expired", testcerts.ECDSA, now.Add(-48*time.Hour), now.Add(-time.Hour)).Cert,
			expectError: true,
		},
		{
			name:        "not yet valid",
			cert:        ca.IssueValid(t, "future", testcerts.ECDSA, now.Add(time.Hour), now.Add(48*time.Hour)).Cert,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateX509Certificate(tt.cert)
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckCertificateExpiration(t *testing.T) {
	ca := testcerts.NewCA(t, "Root")
	now := time.Now()

	soon := ca.IssueValid(t, "soon", testcerts.ECDSA, now.Add(-time.Hour), now.Add(10*24*time.Hour+time.Hour))
	days, warning := CheckCertificateExpiration(soon.Cert)
	if days != 10 {
		t.Errorf("days = %d, want 10", days)
	}
	if !strings.Contains(warning, "expires in 10 days") {
		t.Errorf("warning = %q, want expiry warning", warning)
	}

	later := ca.IssueValid(t, "later", testcerts.ECDSA, now.Add(-time.Hour), now.Add(90*24*time.Hour+time.Hour))
	if _, warning := CheckCertificateExpiration(later.Cert); warning != "" {
		t.Errorf("unexpected warning %q", warning)
	}
}

func TestValidateCertificateChain(t *testing.T) {
	ca := testcerts.NewCA(t, "Root")
	leaf := ca.Issue(t, "leaf", testcerts.ECDSA)

	trusted, err := NewKeystore(Entry{Alias: "root", Chain: []*x509.Certificate{ca.Cert}})
	if err != nil {
		t.Fatalf("NewKeystore() failed: %v", err)
	}
	if err := ValidateCertificateChain([]*x509.Certificate{leaf.Cert}, trusted); err != nil {
		t.Errorf("ValidateCertificateChain() failed: %v", err)
	}

	other := testcerts.NewCA(t, "Other")
	untrusted, _ := NewKeystore(Entry{Alias: "other", Chain: []*x509.Certificate{other.Cert}})
	if err := ValidateCertificateChain([]*x509.Certificate{leaf.Cert}, untrusted); err == nil {
		t.Error("expected chain validation error")
	}
	if err := ValidateCertificateChain(nil, trusted); err == nil {
		t.Error("expected error for empty chain")
	}
}

func TestDescribeKeystore(t *testing.T) {
	ks, _ := newTestKeystore(t)

	infos := DescribeKeystore(ks)
	if len(infos) != 2 {
		t.Fatalf("len(DescribeKeystore()) = %d, want 2", len(infos))
	}

	mykey := infos[0]
	if mykey.Alias != "mykey" || !mykey.KeyEntry || mykey.KeyType != KeyTypeEC {
		t.Errorf("info = %+v, want EC key entry mykey", mykey)
	}
	if mykey.ChainLength != 2 {
		t.Errorf("ChainLength = %d, want 2", mykey.ChainLength)
	}
	if len(mykey.IPAddresses) == 0 || len(mykey.DNSNames) == 0 {
		t.Error("expected SAN information")
	}
	if infos[1].KeyType != KeyTypeRSA {
		t.Errorf("other KeyType = %q, want RSA", infos[1].KeyType)
	}
}
