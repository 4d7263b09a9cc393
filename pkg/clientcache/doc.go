// Package clientcache keeps the HTTP clients of registered services.
//
// Clients are created on first use from the endpoint settings in a
// registry.Registry and reused for the lifetime of the cache:
//
//	reg := registry.New(logger)
//	reg.RegisterEndpoints(service.New("inventory"), endpoints)
//
//	cache, err := clientcache.New(reg, clientcache.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	targets, err := cache.Targets(ctx, service.New("inventory"))
//
// Target returns only the first endpoint; Targets returns all of them for
// failover, for example through restclient.Probe. TargetURL serves ad hoc
// URLs from a default client built when the cache is created.
package clientcache
