/*
Package settings describes the physical endpoints that back a service.

An EndpointSettings value carries the target URL, timeouts, optional proxy,
optional Basic credential, optional TLS material and a list of transport
extensions. Values are built once and never change:

	endpoint, err := settings.NewBuilder("https://billing.internal:8443/api").
		ConnectTimeout(2).
		RequestTimeout(10).
		BasicAuth("svc-user", "secret").
		TLS(tlsConfig).
		Build()
	if err != nil {
		return err
	}

# Extensions

Extensions receive a TransportBuilder while a client is constructed and can
change the transport, add default headers or wrap the round tripper:

	type tenantHeader struct{ tenant string }

	func (t tenantHeader) Name() string { return "tenant-header" }

	func (t tenantHeader) Configure(b *settings.TransportBuilder) error {
		b.Header.Set("X-Tenant", t.tenant)
		return nil
	}

# Basic Authentication

BasicAuth converts to and from the HTTP Authorization header value:

	auth, _ := settings.NewBasicAuth("user", "pass")
	header := auth.AuthorizationHeader() // "Basic dXNlcjpwYXNz"
	parsed, err := settings.ParseAuthorizationHeader(&header)
*/
package settings
