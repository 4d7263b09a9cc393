package tls

import (
	"crypto/x509"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/courier/internal/testcerts"
)

func TestParseStoreType(t *testing.T) {
	tests := []struct {
		input   string
		want    StoreType
		wantErr bool
	}{
		{"", StoreTypePEM, false},
		{"pem", StoreTypePEM, false},
		{"PKCS12", StoreTypePKCS12, false},
		{"p12", StoreTypePKCS12, false},
		{"jks", StoreTypeJKS, false},
		{"bks", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStoreType(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseStoreType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadKeystore_PEM(t *testing.T) {
	ca := testcerts.NewCA(t, "Test Root")
	client := ca.Issue(t, "client", testcerts.ECDSA)
	other := ca.Issue(t, "other-client", testcerts.RSA)

	// Certificate first, then key, followed by the issuing CA.
	path := testcerts.WriteFile(t, "store.pem",
		client.CertPEM("mykey"),
		client.KeyPEM(t, ""),
		ca.CertPEM(""),
		other.KeyPEM(t, "other"),
		other.CertPEM(""),
	)

	ks, err := LoadKeystore(path, "", StoreTypePEM)
	if err != nil {
		t.Fatalf("LoadKeystore() failed: %v", err)
	}

	if ks.Path() != path {
		t.Errorf("Path() = %q, want %q", ks.Path(), path)
	}
	if ks.Type() != StoreTypePEM {
		t.Errorf("Type() = %q, want PEM", ks.Type())
	}

	mykey, ok := ks.Entry("mykey")
	if !ok {
		t.Fatalf("alias mykey missing, have %v", ks.Aliases())
	}
	if !mykey.IsKeyEntry() {
		t.Error("mykey should be a key entry")
	}
	if len(mykey.Chain) != 2 {
		t.Errorf("mykey chain length = %d, want 2", len(mykey.Chain))
	}

	otherEntry, ok := ks.Entry("other")
	if !ok || !otherEntry.IsKeyEntry() {
		t.Fatalf("alias other missing or not a key entry, have %v", ks.Aliases())
	}

	// The CA was consumed as part of a chain, so it is not a separate entry.
	if len(ks.Aliases()) != 2 {
		t.Errorf("Aliases() = %v, want 2 entries", ks.Aliases())
	}
}

func TestLoadKeystore_PEMTrustedOnly(t *testing.T) {
	ca1 := testcerts.NewCA(t, "Root One")
	ca2 := testcerts.NewCA(t, "Root Two")

	path := testcerts.WriteFile(t, "trust.pem", ca1.CertPEM(""), ca2.CertPEM(""))

	ts, err := LoadKeystore(path, "", "")
	if err != nil {
		t.Fatalf("LoadKeystore() failed: %v", err)
	}

	aliases := ts.Aliases()
	if len(aliases) != 2 || aliases[0] != "Root One" || aliases[1] != "Root Two" {
		t.Errorf("Aliases() = %v, want [Root One Root Two]", aliases)
	}
	for _, e := range ts.Entries() {
		if e.IsKeyEntry() {
			t.Errorf("entry %q should be trusted only", e.Alias)
		}
	}
}

func TestLoadKeystore_PKCS12(t *testing.T) {
	ca := testcerts.NewCA(t, "Test Root")
	client := ca.Issue(t, "p12-client", testcerts.ECDSA)

	path := testcerts.WriteFile(t, "client.p12", testcerts.PKCS12(t, "changeit", client, ca))

	ks, err := LoadKeystore(path, "changeit", StoreTypePKCS12)
	if err != nil {
		t.Fatalf("LoadKeystore() failed: %v", err)
	}

	entry, ok := ks.Entry("p12-client")
	if !ok {
		t.Fatalf("alias p12-client missing, have %v", ks.Aliases())
	}
	if !entry.IsKeyEntry() || len(entry.Chain) != 2 {
		t.Errorf("entry = key:%v chain:%d, want key:true chain:2", entry.IsKeyEntry(), len(entry.Chain))
	}

	if _, err := LoadKeystore(path, "wrong", StoreTypePKCS12); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestLoadKeystore_PKCS12TrustStore(t *testing.T) {
	ca := testcerts.NewCA(t, "P12 Root")
	path := testcerts.WriteFile(t, "trust.p12", testcerts.PKCS12TrustStore(t, "changeit", ca))

	ts, err := LoadKeystore(path, "changeit", StoreTypePKCS12)
	if err != nil {
		t.Fatalf("LoadKeystore() failed: %v", err)
	}
	if got := ts.Aliases(); len(got) != 1 || got[0] != "P12 Root" {
		t.Errorf("Aliases() = %v, want [P12 Root]", got)
	}
}

func TestLoadKeystore_JKS(t *testing.T) {
	ca := testcerts.NewCA(t, "Test Root")
	mykey := ca.Issue(t, "mykey", testcerts.ECDSA)
	other := ca.Issue(t, "other", testcerts.RSA)

	data := testcerts.JKS(t, "changeit",
		testcerts.JKSEntry{Alias: "mykey", Identity: mykey, Chain: []*testcerts.Identity{ca}},
		testcerts.JKSEntry{Alias: "other", Identity: other},
		testcerts.JKSEntry{Alias: "root", Identity: ca, Trusted: true},
	)
	path := testcerts.WriteFile(t, "store.jks", data)

	ks, err := LoadKeystore(path, "changeit", StoreTypeJKS)
	if err != nil {
		t.Fatalf("LoadKeystore() failed: %v", err)
	}

	want := []string{"mykey", "other", "root"}
	got := ks.Aliases()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Aliases() = %v, want %v", got, want)
	}

	root, _ := ks.Entry("root")
	if root.IsKeyEntry() {
		t.Error("root should be a trusted entry")
	}
	if e, _ := ks.Entry("mykey"); len(e.Chain) != 2 {
		t.Errorf("mykey chain length = %d, want 2", len(e.Chain))
	}
}

func TestLoadKeystore_Errors(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		storeType StoreType
	}{
		{"missing file", "/nonexistent/store.pem", StoreTypePEM},
		{"empty pem", testcerts.WriteFile(t, "empty.pem", []byte("not pem")), StoreTypePEM},
		{"garbage jks", testcerts.WriteFile(t, "bad.jks", []byte("garbage")), StoreTypeJKS},
		{"unknown type", testcerts.WriteFile(t, "x", []byte("x")), StoreType("BKS")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadKeystore(tt.path, "pw", tt.storeType)
			var cryptoErr *CryptoConfigError
			if !errors.As(err, &cryptoErr) {
				t.Fatalf("expected CryptoConfigError, got %v", err)
			}
			if cryptoErr.Path != tt.path {
				t.Errorf("Path = %q, want %q", cryptoErr.Path, tt.path)
			}
		})
	}
}

func TestKeystoreFromEnv(t *testing.T) {
	t.Setenv(EnvKeystore, "")
	ks, err := KeystoreFromEnv()
	if err != nil || ks != nil {
		t.Fatalf("KeystoreFromEnv() with no env = %v, %v; want nil, nil", ks, err)
	}

	ca := testcerts.NewCA(t, "Env Root")
	client := ca.Issue(t, "env-client", testcerts.ECDSA)
	path := testcerts.WriteFile(t, "env.p12", testcerts.PKCS12(t, "secret", client))

	t.Setenv(EnvKeystore, path)
	t.Setenv(EnvKeystorePassword, "secret")
	t.Setenv(EnvKeystoreType, "pkcs12")

	ks, err = KeystoreFromEnv()
	if err != nil {
		t.Fatalf("KeystoreFromEnv() failed: %v", err)
	}
	if ks.Type() != StoreTypePKCS12 || ks.Path() != path {
		t.Errorf("keystore = %s, want PKCS12 at %s", ks, path)
	}

	t.Setenv(EnvTruststore, path)
	t.Setenv(EnvTruststoreType, "bks")
	if _, err := TruststoreFromEnv(); err == nil {
		t.Error("expected error for unsupported truststore type")
	}
}

func TestNewKeystore(t *testing.T) {
	ca := testcerts.NewCA(t, "Root")
	leaf := ca.Issue(t, "leaf", testcerts.ECDSA)
	cert := leaf.TLSCertificate()

	if _, err := NewKeystore(Entry{Alias: "", Chain: []*x509.Certificate{leaf.Cert}}); err == nil {
		t.Error("expected error for empty alias")
	}
	if _, err := NewKeystore(
		Entry{Alias: "a", Certificate: &cert, Chain: []*x509.Certificate{leaf.Cert}},
		Entry{Alias: "a", Chain: []*x509.Certificate{ca.Cert}},
	); err == nil {
		t.Error("expected error for duplicate alias")
	}

	ks, err := NewKeystore(Entry{Alias: "a", Certificate: &cert, Chain: []*x509.Certificate{leaf.Cert}})
	if err != nil {
		t.Fatalf("NewKeystore() failed: %v", err)
	}
	if !strings.Contains(ks.String(), "<memory>") {
		t.Errorf("String() = %q, want in-memory marker", ks.String())
	}
}

func TestKeystore_LogsExpiredEntries(t *testing.T) {
	ca := testcerts.NewCA(t, "Root")
	expired := ca.IssueValid(t, "expired", testcerts.ECDSA,
		time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))

	path := testcerts.WriteFile(t, "expired.pem", expired.CertPEM(""), expired.KeyPEM(t, ""))

	// Expired material still loads; expiry is reported, not enforced.
	ks, err := LoadKeystore(path, "", StoreTypePEM)
	if err != nil {
		t.Fatalf("LoadKeystore() failed: %v", err)
	}
	if _, ok := ks.Entry("expired"); !ok {
		t.Errorf("alias expired missing, have %v", ks.Aliases())
	}
}
