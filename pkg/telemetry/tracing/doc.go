// Package tracing provides OpenTelemetry tracing for courier clients.
//
// A Tracer records spans and exports them to an OTLP gRPC collector. Service
// clients are traced by adding the client extension to the endpoint settings;
// it starts a client span per request and injects the W3C trace context
// (traceparent, tracestate) into the request headers:
//
//	tracer, err := tracing.New(tracing.Config{
//	    Enabled:  true,
//	    Exporter: tracing.ExporterOTLP,
//	    Endpoint: "localhost:4317",
//	    Insecure: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	s, err := settings.NewBuilder(url).Extension(tracer.ClientExtension()).Build()
//
// A disabled tracer creates no spans, but requests made inside an existing
// trace still carry its context.
//
// Samplers are "always", "never" and "ratio"; all of them respect the
// sampling decision of a parent span.
package tracing
