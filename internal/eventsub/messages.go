package eventsub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire values of metadata.message_type.
const (
	typeWelcome      = "session_welcome"
	typeKeepalive    = "session_keepalive"
	typeNotification = "notification"
	typeReconnect    = "session_reconnect"
	typeRevocation   = "revocation"
)

// Kind tags a parsed inbound message.
type Kind int

const (
	KindUnknown Kind = iota
	KindWelcome
	KindKeepalive
	KindNotification
	KindReconnect
	KindRevocation
)

// Metadata is the envelope header carried on every EventSub message.
type Metadata struct {
	MessageID        string    `json:"message_id"`
	MessageType      string    `json:"message_type"`
	MessageTimestamp time.Time `json:"message_timestamp"`
	SubscriptionType string    `json:"subscription_type,omitempty"`
}

// Session describes one EventSub WebSocket session. Welcome payloads carry
// the id and keepalive interval; reconnect payloads carry the URL of the
// replacement edge.
type Session struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

// Subscription identifies the server-side registration a notification or
// revocation belongs to.
type Subscription struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Notification is one delivered event. Event stays raw; decoding it is the
// consumer's job.
type Notification struct {
	Subscription Subscription
	Event        json.RawMessage
}

// Message is one parsed inbound envelope. Kind selects which of the other
// fields carry data; unknown message types yield KindUnknown and are
// ignored by the transport.
type Message struct {
	Kind         Kind
	Metadata     Metadata
	Session      Session
	Notification Notification
}

type envelope struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

type sessionPayload struct {
	Session Session `json:"session"`
}

type notificationPayload struct {
	Subscription Subscription    `json:"subscription"`
	Event        json.RawMessage `json:"event"`
}

// parseMessage decodes one envelope into its tagged variant. An
// unrecognized message_type is not an error, only malformed JSON is.
func parseMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	msg := Message{Metadata: env.Metadata}

	switch env.Metadata.MessageType {
	case typeWelcome, typeReconnect:
		var p sessionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("decode session payload: %w", err)
		}
		msg.Kind = KindWelcome
		if env.Metadata.MessageType == typeReconnect {
			msg.Kind = KindReconnect
		}
		msg.Session = p.Session

	case typeKeepalive:
		msg.Kind = KindKeepalive

	case typeNotification, typeRevocation:
		var p notificationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("decode notification payload: %w", err)
		}
		msg.Kind = KindNotification
		if env.Metadata.MessageType == typeRevocation {
			msg.Kind = KindRevocation
		}
		msg.Notification = Notification{
			Subscription: p.Subscription,
			Event:        p.Event,
		}

	default:
		msg.Kind = KindUnknown
	}

	return msg, nil
}
