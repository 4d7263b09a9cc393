// Package auth protects the monitor server with static API keys.
//
// Keys come from monitor.api_keys and may be secret references resolved
// before the keyring is built. Clients present a key as a bearer token or
// in the X-API-Key header; the liveness and readiness probes are exempt so
// orchestrators can reach them without credentials.
package auth
