package helix

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the public Helix API endpoint.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// TokenSource supplies the current user access token at the moment of use,
// so a refresh between two calls is always picked up.
type TokenSource interface {
	Token() string
}

// Client provides access to the Twitch Helix REST API.
type Client struct {
	baseURL  string
	clientID string
	tokens   TokenSource
	refresh  func(context.Context) error

	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	subscribeRetries    int
	subscribeRetryDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new Helix API client.
func NewClient(clientID string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		clientID: clientID,
		tokens:   tokens,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:              slog.Default(),
		maxRetries:          3,
		retryBackoff:        time.Second,
		subscribeRetries:    3,
		subscribeRetryDelay: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration for reads.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithSubscribeRetries sets the retry configuration for subscription
// creation.
func WithSubscribeRetries(count int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.subscribeRetries = count
		c.subscribeRetryDelay = delay
	}
}

// WithAuthRefresh installs the hook called on a 401 before the single
// retried request.
func WithAuthRefresh(fn func(context.Context) error) ClientOption {
	return func(c *Client) {
		c.refresh = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
