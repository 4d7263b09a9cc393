// Package registry binds services to their endpoint settings.
//
// Bindings are write-once: the first successful registration for a service
// wins and later registrations are logged and ignored. A Registry is
// normally created once per process and passed to the components that need
// it.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mercator-hq/courier/pkg/service"
	"mercator-hq/courier/pkg/settings"
)

// Registry maps a service to an ordered, non-empty list of endpoints.
//
// Registry is thread-safe and can be used concurrently.
type Registry struct {
	services map[service.Service][]*settings.EndpointSettings
	mu       sync.RWMutex
	logger   *slog.Logger
}

// New creates an empty registry. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		services: make(map[service.Service][]*settings.EndpointSettings),
		logger:   logger.With("component", "registry"),
	}
}

// Register binds a single endpoint to svc unless svc is already bound.
// Reports whether the binding was stored.
func (r *Registry) Register(svc service.Service, endpoint *settings.EndpointSettings) (bool, error) {
	if endpoint == nil {
		return false, &settings.ConfigurationError{Field: "settings", Message: "endpoint settings are nil", Cause: settings.ErrNilArgument}
	}
	return r.RegisterEndpoints(svc, []*settings.EndpointSettings{endpoint})
}

// RegisterEndpoints binds an ordered endpoint list to svc unless svc is
// already bound. An empty list is a configuration error.
func (r *Registry) RegisterEndpoints(svc service.Service, endpoints []*settings.EndpointSettings) (bool, error) {
	if svc.IsZero() {
		return false, &settings.ConfigurationError{Field: "service", Message: "service name is required"}
	}
	if len(endpoints) == 0 {
		return false, &settings.ConfigurationError{
			Field:   "endpoints",
			Message: fmt.Sprintf("service %s must have at least one endpoint", svc),
		}
	}
	for i, e := range endpoints {
		if e == nil {
			return false, &settings.ConfigurationError{
				Field:   "endpoints",
				Message: fmt.Sprintf("endpoint %s[%d] is nil", svc, i),
				Cause:   settings.ErrNilArgument,
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.services[svc]; ok {
		r.logger.Info("service already registered, keeping existing settings",
			"service", svc.String(),
			"endpoints", len(existing),
		)
		return false, nil
	}

	r.services[svc] = append([]*settings.EndpointSettings(nil), endpoints...)

	r.logger.Info("service registered",
		"service", svc.String(),
		"endpoints", len(endpoints),
		"total_services", len(r.services),
	)

	return true, nil
}

// Settings returns the endpoints bound to svc.
// The returned slice is a copy and safe to modify.
func (r *Registry) Settings(svc service.Service) ([]*settings.EndpointSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoints, ok := r.services[svc]
	if !ok {
		return nil, settings.NotConfigured(svc.String())
	}

	return append([]*settings.EndpointSettings(nil), endpoints...), nil
}

// IsRegistered reports whether svc is bound.
func (r *Registry) IsRegistered(svc service.Service) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.services[svc]
	return ok
}

// AllSettings returns a snapshot of every binding.
func (r *Registry) AllSettings() map[service.Service][]*settings.EndpointSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[service.Service][]*settings.EndpointSettings, len(r.services))
	for svc, endpoints := range r.services {
		out[svc] = append([]*settings.EndpointSettings(nil), endpoints...)
	}

	return out
}

// Services returns the registered services sorted by their string form.
func (r *Registry) Services() []service.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Service, 0, len(r.services))
	for svc := range r.services {
		out = append(out, svc)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})

	return out
}
