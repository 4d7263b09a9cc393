// Package secrets resolves ${secret:name} references found in configured
// credentials.
//
// Basic-auth passwords, keystore passwords and monitor API keys may be
// written as references instead of literals:
//
//	basic_auth:
//	  username: courier
//	  password: ${secret:billing-password}
//
// A Resolver looks each name up in its providers in order. EnvProvider
// reads COURIER_SECRET_BILLING_PASSWORD; FileProvider reads the file
// billing-password from a mounted secrets directory, optionally watching
// it for rotation. Resolved values can be cached for a TTL.
package secrets
