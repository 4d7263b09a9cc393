package restclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mercator-hq/courier/pkg/settings"
	"mercator-hq/courier/pkg/telemetry/logging"
)

// RequestIDHeader carries the request ID to the service.
const RequestIDHeader = "X-Request-ID"

type loggingExtension struct {
	logger *slog.Logger
}

// LoggingExtension logs every request and response. The request ID is taken
// from the context, or generated, and sent in RequestIDHeader.
func LoggingExtension(logger *slog.Logger) settings.Extension {
	if logger == nil {
		logger = slog.Default()
	}
	return loggingExtension{logger: logger.With("component", "traffic")}
}

func (loggingExtension) Name() string { return "traffic-logging" }

func (e loggingExtension) Configure(b *settings.TransportBuilder) error {
	b.Use(func(next http.RoundTripper) http.RoundTripper {
		return settings.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return e.roundTrip(next, req)
		})
	})
	return nil
}

func (e loggingExtension) roundTrip(next http.RoundTripper, req *http.Request) (*http.Response, error) {
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = logging.GetRequestID(req.Context())
		if requestID == "" {
			requestID = uuid.NewString()
		}
		req = req.Clone(logging.WithRequestID(req.Context(), requestID))
		req.Header.Set(RequestIDHeader, requestID)
	}

	start := time.Now()
	e.logger.Debug("sending request",
		"request_id", requestID,
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	resp, err := next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		e.logger.Warn("request failed",
			"request_id", requestID,
			"method", req.Method,
			"url", req.URL.Redacted(),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	level := slog.LevelInfo
	if resp.StatusCode >= 500 {
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, "request completed",
		"request_id", requestID,
		"method", req.Method,
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	return resp, nil
}
