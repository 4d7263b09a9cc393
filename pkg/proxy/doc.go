/*
Package proxy routes outgoing requests through per-endpoint HTTP proxies.

A Selector holds an append-only list of (URL prefix, proxies) mappings. The
first mapping whose prefix the request URL starts with wins; otherwise the
policy that was active before the selector was installed decides, and
without one the request goes direct.

	sel := proxy.NewSelector(http.ProxyFromEnvironment)
	sel.Register("https://billing.internal", mustParse("http://egress:3128"))

	transport := &http.Transport{Proxy: sel.ProxyFunc}

Registrations are first-wins per exact prefix: registering the same prefix
again is ignored. Mappings are never removed.

Default returns the process-wide selector and InstallDefault installs it on
http.DefaultTransport exactly once.
*/
package proxy
