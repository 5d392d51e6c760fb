package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEventSubURL = "wss://eventsub.wss.twitch.tv/ws"
	DefaultIRCURL      = "wss://irc-ws.chat.twitch.tv:443"
	DefaultHelixURL    = "https://api.twitch.tv/helix"
	DefaultTokenURL    = "https://id.twitch.tv/oauth2/token"
	DefaultHTTPTimeout = 10 * time.Second

	DefaultQueueCapacity       = 128
	DefaultMessageLimit        = 18
	DefaultMessageWindow       = 30 * time.Second
	DefaultDrainRetryDelay     = 500 * time.Millisecond
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultKeepaliveGrace      = 5 * time.Second
	DefaultReconnectBaseDelay  = 1 * time.Second
	DefaultReconnectMaxDelay   = 60 * time.Second
	DefaultSubscribeRetries    = 3
	DefaultSubscribeRetryDelay = 2 * time.Second
	DefaultStaleAfter          = 5 * time.Minute

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 4
	DefaultMinConns  = 1

	DefaultBatchSize     = 200
	DefaultFlushInterval = 2 * time.Second
	DefaultQueueSize     = 1024
	DefaultFlushTimeout  = 5 * time.Second

	DefaultHealthPort = 8080
)

func (c *Config) applyDefaults() {
	// Twitch defaults
	if c.Twitch.EventSubURL == "" {
		c.Twitch.EventSubURL = DefaultEventSubURL
	}
	if c.Twitch.IRCURL == "" {
		c.Twitch.IRCURL = DefaultIRCURL
	}
	if c.Twitch.HelixURL == "" {
		c.Twitch.HelixURL = DefaultHelixURL
	}
	if c.Twitch.TokenURL == "" {
		c.Twitch.TokenURL = DefaultTokenURL
	}
	if c.Twitch.HTTPTimeout == 0 {
		c.Twitch.HTTPTimeout = DefaultHTTPTimeout
	}

	// Chat defaults
	if c.Chat.QueueCapacity == 0 {
		c.Chat.QueueCapacity = DefaultQueueCapacity
	}
	if c.Chat.MessageLimit == 0 {
		c.Chat.MessageLimit = DefaultMessageLimit
	}
	if c.Chat.MessageWindow == 0 {
		c.Chat.MessageWindow = DefaultMessageWindow
	}
	if c.Chat.DrainRetryDelay == 0 {
		c.Chat.DrainRetryDelay = DefaultDrainRetryDelay
	}
	if c.Chat.HandshakeTimeout == 0 {
		c.Chat.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Chat.KeepaliveGrace == 0 {
		c.Chat.KeepaliveGrace = DefaultKeepaliveGrace
	}
	if c.Chat.ReconnectBaseDelay == 0 {
		c.Chat.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Chat.ReconnectMaxDelay == 0 {
		c.Chat.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Chat.SubscribeRetries == 0 {
		c.Chat.SubscribeRetries = DefaultSubscribeRetries
	}
	if c.Chat.SubscribeRetryDelay == 0 {
		c.Chat.SubscribeRetryDelay = DefaultSubscribeRetryDelay
	}
	if c.Chat.StaleAfter == 0 {
		c.Chat.StaleAfter = DefaultStaleAfter
	}

	// Chat log defaults
	applyDBDefaults(&c.ChatLog.Postgres)
	if c.ChatLog.BatchSize == 0 {
		c.ChatLog.BatchSize = DefaultBatchSize
	}
	if c.ChatLog.FlushInterval == 0 {
		c.ChatLog.FlushInterval = DefaultFlushInterval
	}
	if c.ChatLog.QueueSize == 0 {
		c.ChatLog.QueueSize = DefaultQueueSize
	}
	if c.ChatLog.FlushTimeout == 0 {
		c.ChatLog.FlushTimeout = DefaultFlushTimeout
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
