package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file and its environment overrides.

With --strict the endpoint settings are also built, which loads every
keystore and truststore and checks key aliases.

Examples:
  courier validate --config /etc/courier/courier.yaml
  courier validate --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			endpoints := 0
			for _, svc := range cfg.Services {
				endpoints += len(svc.Endpoints)
			}

			if strict {
				if _, err := cfg.EndpointSettings(); err != nil {
					return cli.NewConfigError("services", err.Error())
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid: %d services, %d endpoints, %d proxy routes\n",
				len(cfg.Services), endpoints, len(cfg.Proxies))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "also load keystores and build endpoint settings")
	return cmd
}
