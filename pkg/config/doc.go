// Package config loads the courier configuration file.
//
// The file lists services with their ordered endpoints, global proxy routes,
// telemetry settings and the probe monitor. It is decoded with yaml.v3,
// defaulted, overridden from the environment and validated with
// go-playground/validator before anything is registered.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("courier.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("courier.yaml")
//
// Unknown keys are rejected.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention COURIER_SECTION_FIELD:
//
//   - COURIER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//   - COURIER_MONITOR_LISTEN_ADDRESS overrides monitor.listen_address
//   - COURIER_SERVICES_<NAME>_PASSWORD sets the basic auth password of every
//     endpoint of service NAME (upper case, non-alphanumerics as underscores)
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation
//  5. Secret references, resolved by the caller with ResolveSecrets
//
// # Secret References
//
// Credential fields accept ${secret:name}. ResolveSecrets replaces them
// through any SecretResolver, normally the secrets package resolver
// configured from the secrets section.
//
// # Registration
//
// RegisterInto converts the endpoints into settings and registers them with
// a registry. Registration follows the registry rule: the first settings
// bound to a service stay. A reload through Watcher therefore only adds
// services that were not known before.
//
// # Example Configuration
//
//	services:
//	  billing:
//	    discriminator: eu
//	    endpoints:
//	      - url: https://billing-1.internal:8443/api
//	        connect_timeout: 3
//	        request_timeout: 5
//	        basic_auth:
//	          username: courier
//	          password: ${secret:billing-password}
//	        tls:
//	          keystore:
//	            path: /etc/courier/client.p12
//	            type: PKCS12
//	          protocol: TLSv1.2
//	      - url: https://billing-2.internal:8443/api
//
//	proxies:
//	  - prefix: https://partner.example.com/
//	    proxies: [http://proxy.internal:3128]
//
//	monitor:
//	  schedule: "@every 30s"
//	  listen_address: 127.0.0.1:9464
//	  api_keys:
//	    - name: prometheus
//	      key: ${secret:scrape-key}
//
//	secrets:
//	  directory: /run/secrets
package config
