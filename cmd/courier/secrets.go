package main

import (
	"context"
	"log/slog"

	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/security/auth"
	"mercator-hq/courier/pkg/security/secrets"
)

// newSecretResolver reads secrets from the environment, then from the
// configured directory.
func newSecretResolver(cfg config.SecretsConfig, watch bool, logger *slog.Logger) (*secrets.Resolver, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Directory != "" {
		fp, err := secrets.NewFileProvider(cfg.Directory, watch && cfg.Watch, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	return secrets.NewResolver(providers,
		secrets.WithCacheTTL(cfg.CacheTTL, 0),
		secrets.WithLogger(logger),
	), nil
}

// resolveSecrets resolves the references of a freshly loaded configuration.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	r, err := newSecretResolver(cfg.Secrets, false, slog.Default())
	if err != nil {
		return err
	}
	defer r.Close()
	return cfg.ResolveSecrets(ctx, r)
}

func apiKeys(cfg *config.Config) []auth.Key {
	keys := make([]auth.Key, 0, len(cfg.Monitor.APIKeys))
	for _, k := range cfg.Monitor.APIKeys {
		keys = append(keys, auth.Key{Name: k.Name, Value: k.Key})
	}
	return keys
}
