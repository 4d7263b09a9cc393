package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secrets read from the environment.
const DefaultEnvPrefix = "COURIER_SECRET_"

// EnvProvider reads secrets from environment variables. The variable name
// is the prefix followed by the secret name in upper case, with every
// character other than a letter or digit replaced by an underscore:
// "billing-password" is read from COURIER_SECRET_BILLING_PASSWORD.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment provider. An empty prefix reads
// variables by their bare name.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Get returns the value of the variable for name. Empty variables count
// as missing.
func (p *EnvProvider) Get(_ context.Context, name string) (string, error) {
	variable := p.Variable(name)
	value, ok := p.lookup(variable)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, variable)
	}
	return value, nil
}

// Variable returns the environment variable holding name.
func (p *EnvProvider) Variable(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return p.prefix + mapped
}
