// Command courier manages HTTP clients bound to logical services.
//
// It loads service endpoints from a YAML file and provides:
//   - Failover probes across the endpoints of every service
//   - Ad hoc requests through the cached service clients
//   - A probe monitor serving Prometheus metrics and health endpoints
//   - Probe history stored in SQLite
//   - Keystore inspection for PEM, PKCS12 and JKS files
//
// Usage:
//
//	# Probe every configured service once
//	courier check --config courier.yaml
//
//	# Call a service through its primary endpoint
//	courier get billing /invoices/42 --output json
//
//	# Run the scheduled monitor
//	courier monitor
//
//	# Show the last probe results of a service
//	courier history --service billing --limit 20
//
//	# List the entries of a keystore
//	courier certs info --keystore client.p12 --type PKCS12 --password changeit
package main

import "os"

func main() {
	os.Exit(Execute())
}
