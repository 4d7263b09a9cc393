// Package security groups the credential handling of courier.
//
//   - tls builds client TLS configurations from PEM, PKCS#12 and JKS stores
//     and selects the client certificate by alias.
//   - secrets resolves ${secret:name} references in configured passwords
//     and API keys from the environment or a mounted directory.
//   - auth guards the monitor server with static API keys.
package security
