package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/courier/pkg/service"
)

// Attribute keys. HTTP keys follow the OpenTelemetry semantic conventions,
// courier keys use the "courier." namespace.
const (
	AttrHTTPMethod     = "http.request.method"
	AttrHTTPStatusCode = "http.response.status_code"
	AttrURLFull        = "url.full"
	AttrURLPath        = "url.path"
	AttrServerAddress  = "server.address"
	AttrErrorType      = "error.type"

	AttrService       = "courier.service"
	AttrDiscriminator = "courier.discriminator"
	AttrEndpoint      = "courier.endpoint"
	AttrProbePath     = "courier.probe.path"
	AttrAttempts      = "courier.probe.attempts"
	AttrRequestID     = "courier.request_id"
)

// ServiceAttributes returns the attributes identifying svc.
func ServiceAttributes(svc service.Service) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrService, svc.Name)}
	if svc.Discriminator != "" {
		attrs = append(attrs, attribute.String(AttrDiscriminator, svc.Discriminator))
	}
	return attrs
}

// SetServiceAttributes sets the service attributes on span.
func SetServiceAttributes(span trace.Span, svc service.Service) {
	span.SetAttributes(ServiceAttributes(svc)...)
}

func clientAttributes(req *http.Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrHTTPMethod, req.Method),
		attribute.String(AttrURLFull, req.URL.Redacted()),
		attribute.String(AttrServerAddress, req.URL.Hostname()),
	}
}

func serverAttributes(req *http.Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrHTTPMethod, req.Method),
		attribute.String(AttrURLPath, req.URL.Path),
	}
}
