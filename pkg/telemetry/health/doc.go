// Package health serves liveness and readiness endpoints for the courier
// monitor.
//
// Readiness combines two sources. Component checks (for example the probe
// history store) are registered with RegisterCheck and run on every
// readiness request. Service health comes from failover probe results, fed
// in through ObserveProbe:
//
//	checker := health.New(5*time.Second, 2*time.Minute)
//	checker.RegisterCheck("history", store.Ping)
//	probe := restclient.NewProbe(cache, restclient.WithObserver(checker.ObserveProbe))
//
//	mux := http.NewServeMux()
//	checker.Register(mux, health.NewVersionInfo(version, commit, buildTime))
//
// Endpoints:
//
//   - /health/live: 200 while the process runs
//   - /health/ready: 200 when every check passes and every probed service is
//     healthy, 503 otherwise
//   - /version: build information
package health
