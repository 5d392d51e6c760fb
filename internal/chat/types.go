package chat

import (
	"errors"
	"time"
)

var (
	// ErrClosed is returned when Connect runs after Close.
	ErrClosed = errors.New("client closed")

	// ErrAlreadyStarted is returned by a second Connect call.
	ErrAlreadyStarted = errors.New("client already started")
)

// ChannelInfo identifies a joinable channel.
type ChannelInfo struct {
	// Name is the channel's login name, lowercase, without '#'.
	Name string

	// ID is the broadcaster's user id, required to subscribe the
	// channel's chat events.
	ID string
}

// Message is one inbound chat message.
type Message struct {
	// ID is the platform's unique message id.
	ID string

	Channel      string
	ChatterID    string
	ChatterLogin string
	ChatterName  string
	Text         string
}

// Handler consumes inbound chat messages. It runs on the inbound read
// loop, once per message in arrival order; slow handlers delay
// subsequent events.
type Handler func(Message)

// Stats is a point-in-time snapshot of client state.
type Stats struct {
	EventSubState string
	IRCState      string
	Channels      int
	QueueLen      int
	LastActivity  time.Time
}

// Config configures the client.
type Config struct {
	// Token is the initial OAuth access token, with or without the
	// "oauth:" prefix.
	Token string

	// ClientID is the application client id, sent on Helix requests.
	ClientID string

	// BotUserID is the bot account's user id, the subscription
	// condition's user.
	BotUserID string

	// BotUsername is the bot account's login name.
	BotUsername string

	// Channels seeds the roster.
	Channels []ChannelInfo

	// OnMessage receives every inbound chat message.
	OnMessage Handler

	// EventSubURL, IRCURL and HelixURL override the production
	// endpoints.
	EventSubURL string
	IRCURL      string
	HelixURL    string

	// HandshakeTimeout bounds each transport's dial and handshake.
	HandshakeTimeout time.Duration

	// KeepaliveGrace is added to the advertised keepalive interval
	// before the inbound watchdog declares the connection silent.
	KeepaliveGrace time.Duration

	// ReconnectBaseWait and ReconnectMaxWait bound each transport's
	// reconnection backoff.
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration

	// QueueCapacity bounds the outgoing queue; overflow drops the oldest.
	QueueCapacity int

	// MessageLimit and MessageWindow cap outbound sends per rolling
	// window.
	MessageLimit  int
	MessageWindow time.Duration

	// DrainRetryDelay is how long the outbound transport waits before
	// retrying a drain once the rate window is exhausted.
	DrainRetryDelay time.Duration

	// HTTPTimeout bounds every Helix request.
	HTTPTimeout time.Duration

	// SubscribeRetries and SubscribeRetryDelay govern retryable
	// subscription failures.
	SubscribeRetries    int
	SubscribeRetryDelay time.Duration
}

// DefaultConfig returns the production defaults. Endpoint URLs are left
// empty; each component falls back to its own production endpoint.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:    10 * time.Second,
		KeepaliveGrace:      5 * time.Second,
		ReconnectBaseWait:   1 * time.Second,
		ReconnectMaxWait:    60 * time.Second,
		QueueCapacity:       128,
		MessageLimit:        18,
		MessageWindow:       30 * time.Second,
		DrainRetryDelay:     500 * time.Millisecond,
		HTTPTimeout:         10 * time.Second,
		SubscribeRetries:    3,
		SubscribeRetryDelay: 2 * time.Second,
	}
}
