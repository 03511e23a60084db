package client

import (
	"net/http"
	"time"
)

const (
	DefaultServer  = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// Client is the pixelhub API client.
type Client struct {
	server     string
	httpClient *http.Client

	reconnect      bool
	reconnectDelay time.Duration
}

// Option configures the client.
type Option func(*Client)

// New creates a new pixelhub client.
func New(opts ...Option) *Client {
	c := &Client{
		server: DefaultServer,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		reconnect:      true,
		reconnectDelay: initialReconnectDelay,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithServer sets a custom server URL.
func WithServer(server string) Option {
	return func(c *Client) {
		if server != "" {
			c.server = server
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithReconnect controls whether sessions redial after losing the
// connection. Enabled by default.
func WithReconnect(enabled bool) Option {
	return func(c *Client) {
		c.reconnect = enabled
	}
}

// WithReconnectDelay sets the first backoff delay between redials.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// ServerURL returns the configured server URL.
func (c *Client) ServerURL() string {
	return c.server
}
