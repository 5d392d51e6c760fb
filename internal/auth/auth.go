// Package auth renews Twitch OAuth access tokens using the refresh token grant.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTokenURL is the Twitch OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// Refresher exchanges a refresh token for fresh access tokens. Twitch
// rotates the refresh token on each grant; Refresher keeps the latest
// one for the next exchange, so a single instance must be shared.
type Refresher struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	logger       *slog.Logger

	mu           sync.Mutex
	refreshToken string
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(url string) Option {
	return func(r *Refresher) {
		r.tokenURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Refresher) {
		r.httpClient = hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// NewRefresher creates a Refresher from app credentials and the current
// refresh token.
func NewRefresher(clientID, clientSecret, refreshToken string, opts ...Option) (*Refresher, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	r := &Refresher{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     DefaultTokenURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		refreshToken: refreshToken,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Refresh exchanges the stored refresh token for a new access token and
// returns it. When the endpoint rotates the refresh token, the
// replacement is stored for the next call.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	refreshToken := r.refreshToken
	r.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", r.clientID)
	form.Set("client_secret", r.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response without access token")
	}

	if tr.RefreshToken != "" {
		r.mu.Lock()
		r.refreshToken = tr.RefreshToken
		r.mu.Unlock()
	}

	r.logger.Info("access token refreshed", "expires_in", tr.ExpiresIn)
	return tr.AccessToken, nil
}

// RefreshToken returns the refresh token currently held, which may have
// been rotated since construction. Callers persisting credentials should
// read it after each Refresh.
func (r *Refresher) RefreshToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshToken
}
