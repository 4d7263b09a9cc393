package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mercator-hq/courier/pkg/security/secrets"
)

const secretsYAML = `
services:
  billing:
    endpoints:
      - url: https://billing.internal/api
        basic_auth:
          username: courier
          password: ${secret:billing-password}
        tls:
          keystore:
            path: client.pem
            password: literal
monitor:
  api_keys:
    - name: prometheus
      key: ${secret:scrape-key}
`

func TestResolveSecrets(t *testing.T) {
	t.Setenv("COURIER_SECRET_BILLING_PASSWORD", "hunter2")
	t.Setenv("COURIER_SECRET_SCRAPE_KEY", "k-123")

	cfg, err := Parse([]byte(secretsYAML))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg.Secrets.EnvPrefix != DefaultSecretsEnvPrefix {
		t.Errorf("EnvPrefix = %q, want %q", cfg.Secrets.EnvPrefix, DefaultSecretsEnvPrefix)
	}

	r := secrets.NewResolver([]secrets.Provider{secrets.NewEnvProvider(cfg.Secrets.EnvPrefix)})
	if err := cfg.ResolveSecrets(context.Background(), r); err != nil {
		t.Fatalf("ResolveSecrets() failed: %v", err)
	}

	ep := cfg.Services["billing"].Endpoints[0]
	if ep.BasicAuth.Password != "hunter2" {
		t.Errorf("Password = %q, want hunter2", ep.BasicAuth.Password)
	}
	if ep.TLS.Keystore.Password != "literal" {
		t.Errorf("keystore Password = %q, want literal", ep.TLS.Keystore.Password)
	}
	if cfg.Monitor.APIKeys[0].Key != "k-123" {
		t.Errorf("Key = %q, want k-123", cfg.Monitor.APIKeys[0].Key)
	}
}

func TestResolveSecrets_Missing(t *testing.T) {
	cfg, err := Parse([]byte(secretsYAML))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	r := secrets.NewResolver([]secrets.Provider{secrets.NewEnvProvider("COURIER_TEST_UNSET_")})
	err = cfg.ResolveSecrets(context.Background(), r)
	if err == nil {
		t.Fatal("ResolveSecrets() should fail")
	}
	for _, field := range []string{"services.billing.endpoints[0].basic_auth.password", "monitor.api_keys[0].key"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not name %s", err, field)
		}
	}
}

func TestValidate_DuplicateAPIKeys(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + `
monitor:
  api_keys:
    - {name: ops, key: a}
    - {name: ops, key: b}
`))
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Parse() error = %v, want ValidationError", err)
	}
	if !verr.HasField("monitor.api_keys[1].name") {
		t.Errorf("errors = %v, want monitor.api_keys[1].name", verr.Errors)
	}
}
