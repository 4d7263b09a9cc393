package settings

import (
	"net/http"
)

// Extension customises the transport of a client while it is being built.
// Extensions run in the order they were added to the endpoint settings.
type Extension interface {
	// Name identifies the extension in logs and errors
	Name() string

	// Configure mutates the builder; an error aborts client construction
	Configure(b *TransportBuilder) error
}

// Middleware wraps a round tripper.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// TransportBuilder holds the pieces of a client transport under construction.
type TransportBuilder struct {
	// Transport is the underlying connection-pooling transport
	Transport *http.Transport

	// Header is added to every outgoing request unless already set
	Header http.Header

	// Properties are the free-form endpoint properties
	Properties map[string]string

	middleware []Middleware
}

// NewTransportBuilder returns a builder around transport.
func NewTransportBuilder(transport *http.Transport, properties map[string]string) *TransportBuilder {
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	return &TransportBuilder{
		Transport:  transport,
		Header:     make(http.Header),
		Properties: props,
	}
}

// Use appends middleware. The first middleware added is the outermost.
func (b *TransportBuilder) Use(m Middleware) {
	if m != nil {
		b.middleware = append(b.middleware, m)
	}
}

// Property returns a property value and whether it was set.
func (b *TransportBuilder) Property(key string) (string, bool) {
	v, ok := b.Properties[key]
	return v, ok
}

// RoundTripper assembles the middleware chain around the transport, with the
// default headers applied closest to the caller.
func (b *TransportBuilder) RoundTripper() http.RoundTripper {
	var rt http.RoundTripper = b.Transport
	for i := len(b.middleware) - 1; i >= 0; i-- {
		rt = b.middleware[i](rt)
	}

	if len(b.Header) == 0 {
		return rt
	}

	header := b.Header.Clone()
	next := rt
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		missing := false
		for k := range header {
			if req.Header.Get(k) == "" {
				missing = true
				break
			}
		}
		if !missing {
			return next.RoundTrip(req)
		}

		// RoundTrippers must not modify the caller's request.
		clone := req.Clone(req.Context())
		for k, vs := range header {
			if clone.Header.Get(k) == "" {
				clone.Header[k] = append([]string(nil), vs...)
			}
		}
		return next.RoundTrip(clone)
	})
}
