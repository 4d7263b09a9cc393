package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/service"
)

type getOptions struct {
	output  string
	headers []string
	query   []string
}

func newGetCmd(root *rootOptions) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <service> <path>",
		Short: "Send a GET request to a service",
		Long: `Send a GET request through the client of the primary endpoint of a
service. The endpoint's TLS material, proxy route, credentials and
timeouts apply.

Non-success responses are reported as errors: 4xx as client request
errors, status 520 as the structured service error and anything else as a
response error.

Examples:
  # Print the raw body
  courier get billing /invoices/42

  # Decode a JSON or YAML body and print it as JSON
  courier get orders#eu /orders --query status=open --output json

  # Extra request headers
  courier get billing /invoices -H "Accept: application/json"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, root, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text (raw body), json")
	cmd.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, `request header "Name: value" (repeatable)`)
	cmd.Flags().StringArrayVarP(&opts.query, "query", "q", nil, "query parameter name=value (repeatable)")

	return cmd
}

func runGet(cmd *cobra.Command, root *rootOptions, opts *getOptions, name, path string) error {
	format, err := cli.ParseOutputFormat(opts.output)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return fmt.Errorf("output format %q is not supported by get", format)
	}

	svc, err := service.Parse(name)
	if err != nil {
		return err
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, appOptions{logWriter: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	ctx := cmd.Context()
	target, err := a.cache.Target(ctx, svc)
	if err != nil {
		return cli.NewCommandError("get", err)
	}

	target = target.Path(path)
	for _, h := range opts.headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		target = target.Header(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for _, q := range opts.query {
		key, value, _ := strings.Cut(q, "=")
		target = target.Query(key, value)
	}

	resp, err := target.Get(ctx)
	if err != nil {
		a.collector.ObserveCall(ctx, svc.String(), err)
		return cli.NewCommandError("get", err)
	}

	if format == cli.FormatJSON {
		var body any
		if err := restclient.DecodeInto(resp, &body); err != nil {
			a.collector.ObserveCall(ctx, svc.String(), err)
			return cli.NewCommandError("get", err)
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), body)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := restclient.CheckResponse(resp)
		a.collector.ObserveCall(ctx, svc.String(), err)
		return cli.NewCommandError("get", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	return err
}
