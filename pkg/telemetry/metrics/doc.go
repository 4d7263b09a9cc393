// Package metrics provides Prometheus metrics for courier clients.
//
// # Overview
//
// A Collector owns a private registry and the metrics recorded by service
// clients, the failover probe, the client cache and the proxy selector. Each
// of those components exposes a hook, and the collector provides a method
// with the matching signature:
//
//	collector := metrics.NewCollector(metrics.DefaultConfig(), nil)
//
//	probe := restclient.NewProbe(cache, restclient.WithObserver(collector.ObserveProbe))
//	cache, _ := clientcache.New(reg, clientcache.WithBuildObserver(collector.ObserveCacheBuild))
//	sel := proxy.NewSelector(nil, proxy.WithSelectionHook(collector.ObserveProxySelection))
//
// Client requests are instrumented with an extension added to the endpoint
// settings:
//
//	s, _ := settings.NewBuilder(url).Extension(collector.ClientExtension("billing")).Build()
//
// # Metrics
//
//	courier_client_requests_total{service,code,method}
//	courier_client_request_duration_seconds{service,method}
//	courier_client_errors_total{service,kind}
//	courier_service_health{service}
//	courier_probe_duration_seconds{service}
//	courier_probes_total{service,result}
//	courier_cache_builds_total{service}
//	courier_cache_endpoints{service}
//	courier_proxy_selections_total{route}
//
// # Cardinality
//
// Service and route label values are capped by Config.MaxCardinality. Values
// beyond the cap are recorded as "other".
package metrics
