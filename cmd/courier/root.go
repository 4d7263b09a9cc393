package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "courier",
		Short: "courier - HTTP clients bound to logical services",
		Long: `courier builds HTTP clients for logical services backed by one or more
endpoints, each with its own TLS material, proxy routing, credentials and
timeouts.

It provides:
  - Sequential failover probes across the endpoints of a service
  - Requests through cached, instrumented service clients
  - A scheduled probe monitor with Prometheus metrics and health endpoints
  - SQLite probe history
  - Keystore inspection (PEM, PKCS12, JKS)`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "courier.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format (json, text)")

	cmd.AddCommand(
		newCheckCmd(opts),
		newGetCmd(opts),
		newMonitorCmd(opts),
		newHistoryCmd(opts),
		newCertsCmd(),
		newValidateCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

// loadConfig loads the configuration file with environment overrides and
// applies the logging flags. The result is also installed as the global
// configuration.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(o.configPath)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}

	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}

	if o.logLevel != "" {
		cfg.Telemetry.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Telemetry.Logging.Format = o.logFormat
	}

	config.SetConfig(cfg)
	return cfg, nil
}
