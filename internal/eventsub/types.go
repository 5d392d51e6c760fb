package eventsub

import (
	"errors"
	"time"
)

// DefaultURL is the public EventSub WebSocket endpoint.
const DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

// defaultKeepaliveSeconds is assumed when a welcome omits the keepalive
// interval.
const defaultKeepaliveSeconds = 10

var (
	// ErrClosed is returned when an operation runs after Stop.
	ErrClosed = errors.New("transport closed")

	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("transport already started")
)

// State identifies where the session state machine currently is.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateLive
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
	case StateHandshaking:
		return "handshaking"
	case StateLive:
		return "live"
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
		return next == StateHandshaking || next == StateReconnecting
	case StateHandshaking:
		return next == StateLive || next == StateReconnecting
	case StateLive:
		return next == StateReconnecting
	}
	return false
}

// Config configures the inbound transport.
type Config struct {
	// URL is the EventSub WebSocket endpoint.
	URL string

	// HandshakeTimeout bounds the dial plus the wait for the welcome.
	HandshakeTimeout time.Duration

	// KeepaliveGrace is added to the server-advertised keepalive interval
	// before the watchdog declares the connection silent.
	KeepaliveGrace time.Duration

	// ReconnectBaseWait and ReconnectMaxWait bound the exponential backoff
	// between reconnection attempts.
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		HandshakeTimeout:  10 * time.Second,
		KeepaliveGrace:    5 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}

// Handlers receive parsed inbound traffic. Nil fields are skipped.
type Handlers struct {
	// OnSession fires after every completed welcome handshake, fresh
	// connects and planned migrations alike. It runs on the connecting
	// goroutine once the read loop is up; handlers doing network work
	// should hand it off and return.
	OnSession func(Session)

	// OnNotification fires once per delivered event, in receive order.
	OnNotification func(Notification)

	// OnRevocation fires when the server revokes a subscription.
	OnRevocation func(Subscription)
}
