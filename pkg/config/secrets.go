package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// SecretResolver replaces ${secret:name} references in a value.
type SecretResolver interface {
	ResolveReferences(ctx context.Context, s string) (string, error)
}

// ResolveSecrets replaces secret references in every credential field:
// basic-auth passwords, keystore and truststore passwords, and monitor API
// keys. All failures are reported, each tagged with its field path.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretResolver) error {
	var errs []error
	resolve := func(field string, value *string) {
		if *value == "" {
			return
		}
		resolved, err := r.ResolveReferences(ctx, *value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*value = resolved
	}

	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := c.Services[name]
		for i := range svc.Endpoints {
			e := &svc.Endpoints[i]
			prefix := fmt.Sprintf("services.%s.endpoints[%d]", name, i)
			if e.BasicAuth != nil {
				resolve(prefix+".basic_auth.password", &e.BasicAuth.Password)
			}
			if e.TLS != nil && e.TLS.Keystore != nil {
				resolve(prefix+".tls.keystore.password", &e.TLS.Keystore.Password)
			}
			if e.TLS != nil && e.TLS.Truststore != nil {
				resolve(prefix+".tls.truststore.password", &e.TLS.Truststore.Password)
			}
		}
		c.Services[name] = svc
	}

	for i := range c.Monitor.APIKeys {
		resolve(fmt.Sprintf("monitor.api_keys[%d].key", i), &c.Monitor.APIKeys[i].Key)
	}

	return errors.Join(errs...)
}
