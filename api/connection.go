package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	schemeHttps = "https"
	maxPreview  = 120
)

type Connection interface {
	Request(ctx context.Context, endpoint *url.URL) (*http.Response, error)
}

type ClientHost struct {
	client  *http.Client
	scheme  string
	host    string
	backoff []time.Duration
}

type Client struct {
	Connection Connection
	ApiKey     string
}

// StatusError is a non 2xx answer from a remote host
type StatusError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Temporary reports whether another attempt could succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Request issues a GET and only hands back 2xx responses, the caller closes the body.
// Transport errors, 429 and 5xx answers are retried on the host's backoff schedule.
func (conn *ClientHost) Request(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
	endpoint.Scheme = conn.scheme
	endpoint.Host = conn.host
	targetUrl := endpoint.String()

	return Retry(ctx, conn.backoff, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetUrl, nil)
		if err != nil {
			return nil, Permanent(err)
		}
		req.Header.Set("Accept", "application/json, text/csv;q=0.9, */*;q=0.8")

		resp, err := conn.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxPreview))
			resp.Body.Close()
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Endpoint:   endpoint.Host + endpoint.Path,
				Message:    string(body),
			}
		}

		return resp, nil
	})
}

// ClientOption configures the ClientHost behind a Client
type ClientOption func(*ClientHost)

// WithScheme swaps https for another scheme, used against httptest servers
func WithScheme(scheme string) ClientOption {
	return func(ch *ClientHost) {
		ch.scheme = scheme
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(ch *ClientHost) {
		ch.client = client
	}
}

func WithBackoff(backoff []time.Duration) ClientOption {
	return func(ch *ClientHost) {
		ch.backoff = backoff
	}
}

func ClientFactory(host string, apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	clientHost := &ClientHost{
		client: &http.Client{
			Timeout: timeout,
		},
		scheme:  schemeHttps,
		host:    host,
		backoff: DefaultBackoff,
	}

	for _, opt := range opts {
		opt(clientHost)
	}

	return &Client{
		Connection: clientHost,
		ApiKey:     apiKey,
	}
}
