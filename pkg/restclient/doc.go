// Package restclient builds HTTP clients from endpoint settings and
// classifies service responses.
//
// # Clients
//
// New wires an http.Transport from settings.EndpointSettings: connect and
// request timeouts, the TLS context from pkg/security/tls, the proxy mapping
// in pkg/proxy and a chain of extensions:
//
//  1. compression (gzip, deflate and zstd responses, optional request bodies)
//  2. basic authentication
//  3. transport properties (http.*, header.*)
//  4. extensions passed with WithExtensions
//  5. extensions of the endpoint settings
//
// Usage:
//
//	ep := settings.NewBuilder("https://inventory.internal/api").
//	    RequestTimeout(10).
//	    BasicAuth("svc", "secret").
//	    MustBuild()
//
//	client, err := restclient.New(ep, restclient.WithLabel("inventory"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	target, _ := client.EndpointTarget()
//	resp, err := target.Path("items", "42").Get(ctx)
//	if err != nil {
//	    return err
//	}
//	item, err := restclient.GetResponse[Item](resp)
//
// # Response classification
//
// GetResponse, DecodeInto and CheckResponse map non-success responses to
// errors:
//
//   - 520 (StructuredErrorStatus): the body is decoded into a *ServiceError
//   - 4xx: *ClientRequestError, "HTTP 404 Not Found: <body>"
//   - others: *ResponseError, "Failed to get response. HTTP 503 Service Unavailable"
//
// Undecodable bodies produce a *DecodeError.
//
// # Probes
//
// Probe checks a service by requesting DefaultHealthPath on each endpoint in
// order. The first success wins; when all fail a *ServiceUnavailableError
// wraps the last failure.
package restclient
