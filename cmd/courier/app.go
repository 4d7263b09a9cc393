package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/clientcache"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/registry"
	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/security/auth"
	"mercator-hq/courier/pkg/security/secrets"
	"mercator-hq/courier/pkg/service"
	"mercator-hq/courier/pkg/settings"
	"mercator-hq/courier/pkg/telemetry/logging"
	"mercator-hq/courier/pkg/telemetry/metrics"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

// appOptions tunes the runtime built by newApp.
type appOptions struct {
	// processMetrics registers the Go runtime and process collectors
	processMetrics bool

	// logWriter receives log records (stderr when nil)
	logWriter io.Writer
}

// app is the runtime shared by the commands: the registry populated from
// the configuration and the cache of instrumented clients built from it.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	registry  *registry.Registry
	selector  *proxy.Selector
	collector *metrics.Collector
	tracer    *tracing.Tracer
	cache     *clientcache.Cache

	// secrets resolves references in reloaded configurations
	secrets *secrets.Resolver

	// keyring guards the monitor server; nil outside the monitor command
	keyring *auth.Keyring
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger, err := newLogger(cfg.Telemetry.Logging, opts.logWriter)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Slog())
	log := logger.Slog()

	a := &app{
		cfg:    cfg,
		logger: logger,
	}

	a.collector = metrics.NewCollector(metrics.Config{
		Enabled:                cfg.Telemetry.Metrics.Enabled,
		Namespace:              cfg.Telemetry.Metrics.Namespace,
		RequestDurationBuckets: cfg.Telemetry.Metrics.RequestDurationBuckets,
		MaxCardinality:         cfg.Telemetry.Metrics.MaxCardinality,
		ProcessCollectors:      opts.processMetrics,
	}, nil)

	tr := cfg.Telemetry.Tracing
	a.tracer, err = tracing.New(tracing.Config{
		Enabled:        tr.Enabled,
		ServiceName:    tr.ServiceName,
		ServiceVersion: Version,
		Exporter:       tr.Exporter,
		Endpoint:       tr.Endpoint,
		Insecure:       tr.Insecure,
		Timeout:        tr.Timeout,
		Sampler:        tr.Sampler,
		SampleRatio:    tr.SampleRatio,
	}, tracing.WithGlobal())
	if err != nil {
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}

	a.selector = proxy.NewSelector(http.ProxyFromEnvironment,
		proxy.WithLogger(log),
		proxy.WithSelectionHook(a.collector.ObserveProxySelection),
	)
	if _, err := cfg.RegisterProxies(a.selector); err != nil {
		a.tracer.Shutdown(context.Background())
		return nil, cli.NewConfigError("proxies", err.Error())
	}

	a.registry = registry.New(log)
	if _, err := cfg.RegisterInto(a.registry, a.settingsOptions()...); err != nil {
		a.tracer.Shutdown(context.Background())
		return nil, cli.NewConfigError("services", err.Error())
	}

	a.secrets, err = newSecretResolver(cfg.Secrets, true, log)
	if err != nil {
		a.tracer.Shutdown(context.Background())
		return nil, cli.NewConfigError("secrets.directory", err.Error())
	}

	a.cache, err = clientcache.New(a.registry,
		clientcache.WithLogger(log),
		clientcache.WithClientOptions(restclient.WithSelector(a.selector)),
		clientcache.WithBuildObserver(a.collector.ObserveCacheBuild),
	)
	if err != nil {
		a.secrets.Close()
		a.tracer.Shutdown(context.Background())
		return nil, err
	}

	return a, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*logging.Logger, error) {
	patterns := make([]logging.Pattern, 0, len(cfg.RedactPatterns))
	for _, p := range cfg.RedactPatterns {
		patterns = append(patterns, logging.Pattern{
			Name:        p.Name,
			Expr:        p.Pattern,
			Replacement: p.Replacement,
		})
	}

	return logging.New(logging.Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactSecrets:  cfg.RedactSecrets,
		RedactPatterns: patterns,
		Writer:         w,
	})
}

// settingsOptions instruments every endpoint with metrics and tracing.
func (a *app) settingsOptions() []config.SettingsOption {
	return []config.SettingsOption{
		config.WithTrafficLogger(a.logger.Slog()),
		config.WithServiceExtensions(func(svc service.Service) []settings.Extension {
			return []settings.Extension{
				a.collector.ClientExtension(svc.String()),
				a.tracer.ClientExtension(),
			}
		}),
	}
}

// services resolves --service values, or every registered service when
// names is empty.
func (a *app) services(names []string) ([]service.Service, error) {
	if len(names) == 0 {
		return a.registry.Services(), nil
	}

	out := make([]service.Service, 0, len(names))
	for _, name := range names {
		svc, err := service.Parse(name)
		if err != nil {
			return nil, err
		}
		if !a.registry.IsRegistered(svc) {
			return nil, fmt.Errorf("service %q is not configured", svc)
		}
		out = append(out, svc)
	}
	return out, nil
}

// reload applies a changed configuration file. Services and proxy routes
// already registered keep their first binding; new ones are added. The log
// level and the monitor API keys follow the file.
func (a *app) reload(cfg *config.Config) error {
	a.secrets.Refresh()
	if err := cfg.ResolveSecrets(context.Background(), a.secrets); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}

	if level, err := logging.ParseLevel(cfg.Telemetry.Logging.Level); err == nil {
		a.logger.SetLevel(level)
	}

	var errs []error
	if _, err := cfg.RegisterProxies(a.selector); err != nil {
		errs = append(errs, err)
	}
	added, err := cfg.RegisterInto(a.registry, a.settingsOptions()...)
	if err != nil {
		errs = append(errs, err)
	}
	if a.keyring != nil {
		if err := a.keyring.Replace(apiKeys(cfg)); err != nil {
			errs = append(errs, err)
		}
	}

	config.SetConfig(cfg)
	a.cfg = cfg

	a.logger.Info("configuration reloaded", "services_added", len(added))
	return errors.Join(errs...)
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(
		a.cache.Close(),
		a.secrets.Close(),
		a.tracer.Shutdown(ctx),
	)
}
