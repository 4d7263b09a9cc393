package tracing

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/courier/pkg/settings"
)

type clientExtension struct {
	tracer *Tracer
}

// ClientExtension starts a client span around every request of a service
// client and injects the W3C trace context into the outgoing headers.
// Responses with a status of 500 or more mark the span as failed.
func (t *Tracer) ClientExtension() settings.Extension {
	return clientExtension{tracer: t}
}

func (clientExtension) Name() string { return "tracing" }

func (e clientExtension) Configure(b *settings.TransportBuilder) error {
	b.Use(func(next http.RoundTripper) http.RoundTripper {
		return settings.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return e.roundTrip(next, req)
		})
	})
	return nil
}

func (e clientExtension) roundTrip(next http.RoundTripper, req *http.Request) (*http.Response, error) {
	ctx, span := e.tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(clientAttributes(req)...),
	)
	defer span.End()

	req = req.Clone(ctx)
	e.tracer.Inject(ctx, req.Header)

	resp, err := next.RoundTrip(req)
	if err != nil {
		SetStatus(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int(AttrHTTPStatusCode, resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return resp, nil
}
