package config

import "time"

// Config is the root configuration for a bot instance.
type Config struct {
	Twitch  TwitchConfig  `yaml:"twitch"`
	Chat    ChatConfig    `yaml:"chat"`
	ChatLog ChatLogConfig `yaml:"chat_log"`
	Health  HealthConfig  `yaml:"health"`
}

// TwitchConfig holds account credentials and endpoint overrides.
type TwitchConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"` // required when refresh_token is set
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	BotUserID    string `yaml:"bot_user_id"`
	BotUsername  string `yaml:"bot_username"`

	EventSubURL string        `yaml:"eventsub_url"`
	IRCURL      string        `yaml:"irc_url"`
	HelixURL    string        `yaml:"helix_url"`
	TokenURL    string        `yaml:"token_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// ChatConfig holds the channel list and connection tuning.
type ChatConfig struct {
	Channels []ChannelConfig `yaml:"channels"`

	QueueCapacity       int           `yaml:"queue_capacity"`
	MessageLimit        int           `yaml:"message_limit"`
	MessageWindow       time.Duration `yaml:"message_window"`
	DrainRetryDelay     time.Duration `yaml:"drain_retry_delay"`
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
	KeepaliveGrace      time.Duration `yaml:"keepalive_grace"`
	ReconnectBaseDelay  time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay"`
	SubscribeRetries    int           `yaml:"subscribe_retries"`
	SubscribeRetryDelay time.Duration `yaml:"subscribe_retry_delay"`

	// StaleAfter is how long the inbound side may stay silent before
	// the process exits and lets the supervisor restart it.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// ChannelConfig names one channel to join. ID may be left empty; the bot
// resolves it through the Helix users endpoint at startup.
type ChannelConfig struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// ChatLogConfig holds the optional Postgres chat log sink.
type ChatLogConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`

	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
}

// HealthConfig holds the HTTP health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
