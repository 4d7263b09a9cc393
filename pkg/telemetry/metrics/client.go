package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/settings"
	"mercator-hq/courier/pkg/telemetry/logging"
)

// Error kinds used for the errors_total kind label.
const (
	KindServiceError  = "service_error"
	KindClientError   = "client_error"
	KindResponseError = "response_error"
	KindDecodeError   = "decode_error"
	KindUnavailable   = "unavailable"
	KindProxy         = "proxy"
	KindTimeout       = "timeout"
	KindCanceled      = "canceled"
	KindTransport     = "transport"
)

// ClientMetrics tracks outgoing requests made by service clients.
type ClientMetrics struct {
	// Requests by service, status code and method
	requests *prometheus.CounterVec

	// Request duration by service and method
	duration *prometheus.HistogramVec

	// Failures by service and error kind
	errors *prometheus.CounterVec
}

// NewClientMetrics creates and registers the client metrics.
func NewClientMetrics(cfg Config, registry *prometheus.Registry) *ClientMetrics {
	cm := &ClientMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "client_requests_total",
				Help:      "Total number of requests sent to services",
			},
			[]string{"service", "code", "method"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "client_request_duration_seconds",
				Help:      "Service request duration in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"service", "method"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "client_errors_total",
				Help:      "Total number of failed service calls by error kind",
			},
			[]string{"service", "kind"},
		),
	}

	registry.MustRegister(cm.requests, cm.duration, cm.errors)
	return cm
}

type clientExtension struct {
	collector *Collector
	service   string
}

// ClientExtension instruments a service client. Requests are counted and
// timed with the promhttp round-tripper middleware; transport failures are
// counted by kind. The service name is fixed when the extension is created.
func (c *Collector) ClientExtension(serviceName string) settings.Extension {
	return clientExtension{collector: c, service: serviceName}
}

func (clientExtension) Name() string { return "metrics" }

func (e clientExtension) Configure(b *settings.TransportBuilder) error {
	c := e.collector
	if !c.config.Enabled {
		return nil
	}

	labels := prometheus.Labels{"service": c.serviceLabel(e.service)}
	counter := c.client.requests.MustCurryWith(labels)
	duration := c.client.duration.MustCurryWith(labels)

	b.Use(func(next http.RoundTripper) http.RoundTripper {
		failures := settings.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil {
				c.RecordError(e.service, ErrorKind(err))
			}
			return resp, err
		})
		return promhttp.InstrumentRoundTripperCounter(counter,
			promhttp.InstrumentRoundTripperDuration(duration, failures))
	})
	return nil
}

// ErrorKind maps an error returned by a client, a target or a probe to the
// kind label.
func ErrorKind(err error) string {
	var (
		svcErr      *restclient.ServiceError
		clientErr   *restclient.ClientRequestError
		respErr     *restclient.ResponseError
		decodeErr   *restclient.DecodeError
		unavailable *restclient.ServiceUnavailableError
		opErr       *net.OpError
	)

	switch {
	case errors.As(err, &svcErr):
		return KindServiceError
	case errors.As(err, &clientErr):
		return KindClientError
	case errors.As(err, &respErr):
		return KindResponseError
	case errors.As(err, &decodeErr):
		return KindDecodeError
	case errors.As(err, &unavailable):
		return KindUnavailable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.As(err, &opErr) && opErr.Op == "proxyconnect":
		return KindProxy
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

// ObserveCall records the outcome of a classified call; nil errors are not
// counted. The service name falls back to the one in ctx.
func (c *Collector) ObserveCall(ctx context.Context, serviceName string, err error) {
	if err == nil {
		return
	}
	if serviceName == "" {
		serviceName = logging.GetService(ctx)
	}
	c.RecordError(serviceName, ErrorKind(err))
}
