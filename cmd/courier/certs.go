package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
	sectls "mercator-hq/courier/pkg/security/tls"
)

// expiryWarningDays flags entries expiring soon.
const expiryWarningDays = 30

// passwordEnv supplies the keystore password when --password is not set.
const passwordEnv = "COURIER_KEYSTORE_PASSWORD"

type storeFlags struct {
	path      string
	password  string
	storeType string
}

func (f *storeFlags) register(cmd *cobra.Command, name, usage string) {
	cmd.Flags().StringVar(&f.path, name, "", usage)
	cmd.Flags().StringVar(&f.password, name+"-password", "", "password of the "+name+" (default $"+passwordEnv+")")
	cmd.Flags().StringVar(&f.storeType, name+"-type", "", "type of the "+name+": PEM, PKCS12, JKS (default PEM)")
}

func (f *storeFlags) load() (*sectls.Keystore, error) {
	storeType, err := sectls.ParseStoreType(f.storeType)
	if err != nil {
		return nil, err
	}
	password := f.password
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	return sectls.LoadKeystore(f.path, password, storeType)
}

func newCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Inspect keystores and truststores",
		Long: `Inspect the keystores and truststores referenced by endpoint TLS
configuration.

Subcommands:
  info   - List the entries of a keystore
  verify - Verify key entry chains against a truststore

Examples:
  # List the entries of a PKCS12 keystore
  courier certs info --keystore client.p12 --keystore-type PKCS12 --keystore-password changeit

  # Check that the client chain is trusted by the server truststore
  courier certs verify --keystore client.jks --keystore-type JKS --truststore ca.pem`,
	}

	cmd.AddCommand(newCertsInfoCmd(), newCertsVerifyCmd())
	return cmd
}

func newCertsInfoCmd() *cobra.Command {
	var (
		store  storeFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "List keystore entries",
		Long: `List every entry of a keystore with its subject, issuer, key type,
validity and subject alternative names. Entries expiring within 30 days
are flagged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			ks, err := store.load()
			if err != nil {
				return cli.NewCommandError("certs info", err)
			}
			return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), certTable(sectls.DescribeKeystore(ks)))
		},
	}

	store.register(cmd, "keystore", "keystore file (required)")
	_ = cmd.MarkFlagRequired("keystore")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json, csv")

	return cmd
}

func newCertsVerifyCmd() *cobra.Command {
	var keystore, truststore storeFlags

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify key entry chains against a truststore",
		Long: `Verify that the certificate chain of every key entry in the keystore
is valid now and anchored in the truststore.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := keystore.load()
			if err != nil {
				return cli.NewCommandError("certs verify", err)
			}
			ts, err := truststore.load()
			if err != nil {
				return cli.NewCommandError("certs verify", err)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, e := range ks.Entries() {
				if !e.IsKeyEntry() {
					continue
				}
				if err := sectls.ValidateCertificateChain(e.Chain, ts); err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s: %v\n", e.Alias, err)
					continue
				}
				fmt.Fprintf(out, "✓ %s\n", e.Alias)
				if _, warning := sectls.CheckCertificateExpiration(e.Leaf()); warning != "" {
					fmt.Fprintf(out, "  ⚠  %s\n", warning)
				}
			}

			if failed > 0 {
				return cli.NewCommandError("certs verify", fmt.Errorf("%d key entries failed verification", failed))
			}
			return nil
		},
	}

	keystore.register(cmd, "keystore", "keystore file (required)")
	truststore.register(cmd, "truststore", "truststore file (required)")
	_ = cmd.MarkFlagRequired("keystore")
	_ = cmd.MarkFlagRequired("truststore")

	return cmd
}

type certTable []*sectls.CertificateInfo

func (certTable) Header() []string {
	return []string{"ALIAS", "TYPE", "KEY", "SUBJECT", "NOT AFTER", "DAYS", "SANS"}
}

func (t certTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, c := range t {
		entryType := "trusted"
		if c.KeyEntry {
			entryType = "key"
		}
		days := strconv.Itoa(c.DaysUntilExpiry)
		if c.DaysUntilExpiry < expiryWarningDays {
			days += " ⚠"
		}
		sans := append(append([]string{}, c.DNSNames...), c.IPAddresses...)
		rows = append(rows, []string{
			c.Alias,
			entryType,
			orDash(string(c.KeyType)),
			c.Subject,
			c.NotAfter.Format(time.DateOnly),
			days,
			orDash(strings.Join(sans, ",")),
		})
	}
	return rows
}
