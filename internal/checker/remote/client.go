// Package remote performs the HTTP lookups checkers need. Endpoints are
// opaque: the client speaks generic authenticated JSON and classifies
// transport and status failures into the shared error taxonomy; it knows
// nothing about jurisdictions.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	dErrors "veristry/pkg/domain-errors"
)

//go:generate mockgen -source=client.go -destination=mocks/client.go -package=mocks

// Client fetches one endpoint with query parameters and returns the raw
// JSON body. Implementations must classify failures with the shared error
// codes so the resilience wrapper can decide retryability.
type Client interface {
	Lookup(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error)
}

// HTTPClient is the production Client.
type HTTPClient struct {
	http      *http.Client
	authToken string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAuthToken sets the bearer token attached to every lookup.
func WithAuthToken(token string) Option {
	return func(c *HTTPClient) { c.authToken = token }
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

func NewHTTPClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Lookup(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "malformed endpoint")
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build lookup request")
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read lookup response")
	}

	if code, ok := classifyStatus(resp.StatusCode); ok {
		return nil, dErrors.Newf(code, "lookup returned status %d", resp.StatusCode)
	}
	return json.RawMessage(body), nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lookup timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "lookup failed")
}

// classifyStatus maps a non-2xx status to an error code. The bool reports
// whether the status is an error at all.
func classifyStatus(status int) (dErrors.ErrorCode, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusNotFound:
		return dErrors.CodeNotFound, true
	case status == http.StatusTooManyRequests:
		return dErrors.CodeRateLimited, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return dErrors.CodeTimeout, true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return dErrors.CodeUnauthorized, true
	case status >= 500:
		return dErrors.CodeUnavailable, true
	case status >= 400:
		return dErrors.CodeBadRequest, true
	}
	return dErrors.CodeInternal, true
}

var _ Client = (*HTTPClient)(nil)

// Decode unmarshals a raw lookup body into a typed shape, classifying
// malformed payloads as unavailable so they count against the source.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, dErrors.Wrap(err, dErrors.CodeUnavailable, "malformed response payload")
	}
	return out, nil
}
