package irc

import (
	"errors"
	"time"
)

// DefaultURL is the public Twitch chat endpoint, IRC over WebSocket.
const DefaultURL = "wss://irc-ws.chat.twitch.tv:443"

var (
	// ErrNotConnected is returned when a line is sent with no connection up.
	ErrNotConnected = errors.New("irc not connected")

	// ErrClosed is returned when an operation runs after Stop.
	ErrClosed = errors.New("transport closed")

	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("transport already started")
)

// State identifies where the outbound state machine currently is.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateJoining
	StateReady
	StateReconnecting
	StateClosing
)

// String returns the lowercase state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoining:
		return "joining"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// validTransition reports whether the machine may move from cur to next.
// StateClosing is terminal and reachable from every other state.
func validTransition(cur, next State) bool {
	if next == StateClosing {
		return cur != StateClosing
	}
	switch cur {
	case StateDisconnected, StateReconnecting:
		return next == StateConnecting
	case StateConnecting:
		return next == StateAuthenticating || next == StateReconnecting
	case StateAuthenticating:
		return next == StateJoining || next == StateReconnecting
	case StateJoining:
		return next == StateReady || next == StateReconnecting
	case StateReady:
		return next == StateReconnecting
	}
	return false
}

// Config configures the outbound transport.
type Config struct {
	// URL is the chat WebSocket endpoint.
	URL string

	// Nick is the bot's login name, sent with NICK and matched against
	// JOIN echoes.
	Nick string

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds every line write.
	WriteTimeout time.Duration

	// ReconnectBaseWait and ReconnectMaxWait bound the exponential backoff
	// between reconnection attempts.
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration

	// QueueCapacity bounds the outgoing queue; overflow drops the oldest.
	QueueCapacity int

	// MessageLimit and MessageWindow cap sends per rolling window.
	MessageLimit  int
	MessageWindow time.Duration

	// DrainRetryDelay is how long to wait before retrying a drain once the
	// window is exhausted with messages still queued.
	DrainRetryDelay time.Duration

	// JoinLimit and JoinWindow cap JOIN commands per rolling window.
	JoinLimit  int
	JoinWindow time.Duration

	// MaxMessageBytes hard-truncates outgoing message text.
	MaxMessageBytes int
}

// DefaultConfig returns the production defaults. The send and join rates
// sit under Twitch's documented caps (20 per 30s and 20 per 10s) to leave
// headroom for out-of-band lines.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		QueueCapacity:     128,
		MessageLimit:      18,
		MessageWindow:     30 * time.Second,
		DrainRetryDelay:   500 * time.Millisecond,
		JoinLimit:         18,
		JoinWindow:        10 * time.Second,
		MaxMessageBytes:   500,
	}
}

// TokenSource supplies the current access token at the moment of use, so a
// refresh between two connects is always picked up.
type TokenSource interface {
	Token() string
}

// Deps are the transport's collaborators.
type Deps struct {
	// Token supplies the credential for PASS.
	Token TokenSource

	// Channels lists the channels to join after authentication. Read at
	// join time, never cached.
	Channels func() []string

	// OnAuthFailure runs when the server rejects the login, before the
	// transport force-closes. Its job is to install a fresh token so the
	// reconnect authenticates with it.
	OnAuthFailure func()
}
