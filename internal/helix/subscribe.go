package helix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type subscriptionRequest struct {
	Type      string                `json:"type"`
	Version   string                `json:"version"`
	Condition subscriptionCondition `json:"condition"`
	Transport subscriptionTransport `json:"transport"`
}

type subscriptionCondition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
	UserID            string `json:"user_id"`
}

type subscriptionTransport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

type subscriptionResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// CreateChatSubscription registers a channel.chat.message subscription for
// broadcaster, delivered over the given WebSocket session. It returns the
// subscription id, empty when the subscription already existed.
//
// A 401 refreshes the token and retries exactly once. A 409 means a
// matching subscription exists and counts as success. Server errors retry
// a fixed number of times with a fixed delay before giving up.
func (c *Client) CreateChatSubscription(ctx context.Context, sessionID, broadcasterID, botUserID string) (string, error) {
	sub := subscriptionRequest{
		Type:    "channel.chat.message",
		Version: "1",
		Condition: subscriptionCondition{
			BroadcasterUserID: broadcasterID,
			UserID:            botUserID,
		},
		Transport: subscriptionTransport{
			Method:    "websocket",
			SessionID: sessionID,
		},
	}

	attempt := 0
	refreshed := false

	for {
		id, err := c.createSubscription(ctx, sub)
		if err == nil {
			return id, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == http.StatusUnauthorized && !refreshed && c.refresh != nil:
				c.logger.Info("subscribe unauthorized, refreshing token",
					"broadcaster_id", broadcasterID,
				)
				if rerr := c.refresh(ctx); rerr != nil {
					return "", fmt.Errorf("refresh token: %w", rerr)
				}
				refreshed = true
				continue

			case apiErr.StatusCode == http.StatusUnauthorized:
				return "", err

			case !apiErr.IsRetryable():
				return "", err
			}
		}

		attempt++
		if attempt > c.subscribeRetries {
			return "", fmt.Errorf("subscribe retries exhausted: %w", err)
		}
		c.logger.Warn("subscribe failed, retrying",
			"broadcaster_id", broadcasterID,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.subscribeRetryDelay):
		}
	}
}

// createSubscription performs one subscription POST. A conflict response
// is success: a matching subscription is already registered.
func (c *Client) createSubscription(ctx context.Context, sub subscriptionRequest) (string, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("marshal subscription: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/eventsub/subscriptions", nil, payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			c.logger.Debug("subscription already exists",
				"broadcaster_id", sub.Condition.BroadcasterUserID,
			)
			return "", nil
		}
		return "", err
	}

	var resp subscriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("subscription response without data")
	}

	return resp.Data[0].ID, nil
}
