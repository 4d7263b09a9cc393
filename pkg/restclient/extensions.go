package restclient

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"mercator-hq/courier/pkg/settings"
)

// Transport properties read by PropertiesExtension.
const (
	PropertyMaxIdleConns        = "http.max_idle_conns"
	PropertyMaxIdleConnsPerHost = "http.max_idle_conns_per_host"
	PropertyMaxConnsPerHost     = "http.max_conns_per_host"
	PropertyIdleConnTimeout     = "http.idle_conn_timeout"
	PropertyDisableKeepAlives   = "http.disable_keep_alives"
	PropertyUserAgent           = "http.user_agent"

	// PropertyHeaderPrefix sets a default header, e.g. "header.X-Tenant"
	PropertyHeaderPrefix = "header."
)

type basicAuthExtension struct {
	auth *settings.BasicAuth
}

// BasicAuthExtension sends the credential on every request that has no
// Authorization header of its own.
func BasicAuthExtension(auth *settings.BasicAuth) settings.Extension {
	return basicAuthExtension{auth: auth}
}

func (basicAuthExtension) Name() string { return "basic-auth" }

func (e basicAuthExtension) Configure(b *settings.TransportBuilder) error {
	if e.auth == nil {
		return nil
	}
	b.Header.Set("Authorization", e.auth.AuthorizationHeader())
	return nil
}

type propertiesExtension struct{}

// PropertiesExtension applies transport and header properties. Keys it does
// not know are left for later extensions.
func PropertiesExtension() settings.Extension {
	return propertiesExtension{}
}

func (propertiesExtension) Name() string { return "properties" }

func (propertiesExtension) Configure(b *settings.TransportBuilder) error {
	keys := make([]string, 0, len(b.Properties))
	for k := range b.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := b.Properties[key]
		if err := applyProperty(b, key, value); err != nil {
			return &settings.ConfigurationError{
				Field:   key,
				Message: fmt.Sprintf("invalid value %q", value),
				Cause:   err,
			}
		}
	}
	return nil
}

func applyProperty(b *settings.TransportBuilder, key, value string) error {
	t := b.Transport
	switch key {
	case PropertyMaxIdleConns:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		t.MaxIdleConns = n
	case PropertyMaxIdleConnsPerHost:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		t.MaxIdleConnsPerHost = n
	case PropertyMaxConnsPerHost:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		t.MaxConnsPerHost = n
	case PropertyIdleConnTimeout:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		t.IdleConnTimeout = d
	case PropertyDisableKeepAlives:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		t.DisableKeepAlives = v
	case PropertyUserAgent:
		b.Header.Set("User-Agent", value)
	default:
		if name, ok := strings.CutPrefix(key, PropertyHeaderPrefix); ok && name != "" {
			b.Header.Set(http.CanonicalHeaderKey(name), value)
		}
	}
	return nil
}
