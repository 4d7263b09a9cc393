package restclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"mercator-hq/courier/pkg/settings"
)

// Target is an immutable request target bound to a client. Path, Query and
// Header return modified copies.
type Target struct {
	client *Client
	url    *url.URL
	header http.Header
}

func newTarget(c *Client, u *url.URL) *Target {
	return &Target{client: c, url: u, header: make(http.Header)}
}

func parseTargetURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &settings.ConfigurationError{Field: "url", Message: "invalid target url", Cause: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &settings.ConfigurationError{Field: "url", Message: fmt.Sprintf("target url %q is not absolute", rawURL)}
	}
	return u, nil
}

func (t *Target) clone() *Target {
	u := *t.url
	return &Target{client: t.client, url: &u, header: t.header.Clone()}
}

// Client returns the client the target sends through.
func (t *Target) Client() *Client {
	return t.client
}

// URL returns a copy of the target URL.
func (t *Target) URL() *url.URL {
	u := *t.url
	return &u
}

// String returns the target URL without credentials.
func (t *Target) String() string {
	return t.url.Redacted()
}

// Path returns a target with elem joined to the path.
func (t *Target) Path(elem ...string) *Target {
	next := t.clone()
	next.url = t.url.JoinPath(elem...)
	return next
}

// Query returns a target with the query values appended for key.
func (t *Target) Query(key string, values ...string) *Target {
	next := t.clone()
	q := next.url.Query()
	for _, v := range values {
		q.Add(key, v)
	}
	next.url.RawQuery = q.Encode()
	return next
}

// Header returns a target that sets the header on every request.
func (t *Target) Header(key, value string) *Target {
	next := t.clone()
	next.header.Set(key, value)
	return next
}

// NewRequest creates a request for the target.
func (t *Target) NewRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.url.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range t.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	return req, nil
}

// Do sends a request with the given method and body.
func (t *Target) Do(ctx context.Context, method string, body io.Reader) (*http.Response, error) {
	req, err := t.NewRequest(ctx, method, body)
	if err != nil {
		return nil, err
	}
	return t.client.Do(req)
}

// Get sends a GET request.
func (t *Target) Get(ctx context.Context) (*http.Response, error) {
	return t.Do(ctx, http.MethodGet, nil)
}

// Delete sends a DELETE request.
func (t *Target) Delete(ctx context.Context) (*http.Response, error) {
	return t.Do(ctx, http.MethodDelete, nil)
}

// Post sends a POST request with a raw body.
func (t *Target) Post(ctx context.Context, contentType string, body io.Reader) (*http.Response, error) {
	return t.withBody(ctx, http.MethodPost, contentType, body)
}

// Put sends a PUT request with a raw body.
func (t *Target) Put(ctx context.Context, contentType string, body io.Reader) (*http.Response, error) {
	return t.withBody(ctx, http.MethodPut, contentType, body)
}

// Send encodes v with the client codec and sends it with method.
func (t *Target) Send(ctx context.Context, method string, v any) (*http.Response, error) {
	var buf bytes.Buffer
	if err := t.client.codec.Encode(&buf, v); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return t.withBody(ctx, method, t.client.codec.ContentType(), &buf)
}

func (t *Target) withBody(ctx context.Context, method, contentType string, body io.Reader) (*http.Response, error) {
	req, err := t.NewRequest(ctx, method, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return t.client.Do(req)
}
