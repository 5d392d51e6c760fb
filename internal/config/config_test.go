package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	yaml := `
twitch:
  client_id: abc123
  access_token: tokentoken
  bot_user_id: "42"
  bot_username: botty
chat:
  channels:
    - name: somechannel
      id: "111"
    - name: otherchannel
chat_log:
  enabled: true
  postgres:
    host: localhost
    port: 5432
    name: chat
    user: bot
    password: hunter2
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Twitch.ClientID != "abc123" {
		t.Errorf("Twitch.ClientID = %q, want %q", cfg.Twitch.ClientID, "abc123")
	}
	if cfg.Twitch.BotUserID != "42" {
		t.Errorf("Twitch.BotUserID = %q, want %q", cfg.Twitch.BotUserID, "42")
	}
	if len(cfg.Chat.Channels) != 2 {
		t.Fatalf("len(Chat.Channels) = %d, want 2", len(cfg.Chat.Channels))
	}
	if cfg.Chat.Channels[0].Name != "somechannel" || cfg.Chat.Channels[0].ID != "111" {
		t.Errorf("Chat.Channels[0] = %+v, want somechannel/111", cfg.Chat.Channels[0])
	}
	if cfg.Chat.Channels[1].ID != "" {
		t.Errorf("Chat.Channels[1].ID = %q, want empty", cfg.Chat.Channels[1].ID)
	}
	if !cfg.ChatLog.Enabled {
		t.Error("ChatLog.Enabled = false, want true")
	}
	if cfg.ChatLog.Postgres.Host != "localhost" {
		t.Errorf("ChatLog.Postgres.Host = %q, want %q", cfg.ChatLog.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "secrettoken")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
twitch:
  client_id: abc123
  access_token: ${TEST_BOT_TOKEN}
chat_log:
  postgres:
    host: localhost
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Twitch.AccessToken != "secrettoken" {
		t.Errorf("Twitch.AccessToken = %q, want %q", cfg.Twitch.AccessToken, "secrettoken")
	}
	if cfg.ChatLog.Postgres.Password != "secret123" {
		t.Errorf("ChatLog.Postgres.Password = %q, want %q", cfg.ChatLog.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
twitch:
  client_id: abc123
  access_token: tokentoken
chat:
  channels:
    - name: somechannel
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Twitch.EventSubURL != DefaultEventSubURL {
		t.Errorf("Twitch.EventSubURL = %q, want default %q", cfg.Twitch.EventSubURL, DefaultEventSubURL)
	}
	if cfg.Twitch.IRCURL != DefaultIRCURL {
		t.Errorf("Twitch.IRCURL = %q, want default %q", cfg.Twitch.IRCURL, DefaultIRCURL)
	}
	if cfg.Twitch.HTTPTimeout != DefaultHTTPTimeout {
		t.Errorf("Twitch.HTTPTimeout = %v, want default %v", cfg.Twitch.HTTPTimeout, DefaultHTTPTimeout)
	}
	if cfg.Chat.MessageLimit != DefaultMessageLimit {
		t.Errorf("Chat.MessageLimit = %d, want default %d", cfg.Chat.MessageLimit, DefaultMessageLimit)
	}
	if cfg.Chat.StaleAfter != DefaultStaleAfter {
		t.Errorf("Chat.StaleAfter = %v, want default %v", cfg.Chat.StaleAfter, DefaultStaleAfter)
	}
	if cfg.ChatLog.Postgres.Port != DefaultDBPort {
		t.Errorf("ChatLog.Postgres.Port = %d, want default %d", cfg.ChatLog.Postgres.Port, DefaultDBPort)
	}
	if cfg.ChatLog.Postgres.SSLMode != DefaultDBSSLMode {
		t.Errorf("ChatLog.Postgres.SSLMode = %q, want default %q", cfg.ChatLog.Postgres.SSLMode, DefaultDBSSLMode)
	}
	if cfg.ChatLog.FlushInterval != DefaultFlushInterval {
		t.Errorf("ChatLog.FlushInterval = %v, want default %v", cfg.ChatLog.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
}

func TestValidate(t *testing.T) {
	validTwitch := TwitchConfig{
		ClientID:    "abc123",
		AccessToken: "tokentoken",
		BotUserID:   "42",
		BotUsername: "botty",
	}
	validChat := ChatConfig{
		Channels:      []ChannelConfig{{Name: "somechannel", ID: "111"}},
		QueueCapacity: 128,
		MessageLimit:  18,
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing client id",
			cfg:     Config{},
			wantErr: "twitch.client_id is required",
		},
		{
			name: "missing tokens",
			cfg: Config{
				Twitch: TwitchConfig{ClientID: "abc123"},
			},
			wantErr: "twitch.access_token or twitch.refresh_token is required",
		},
		{
			name: "refresh token without client secret",
			cfg: Config{
				Twitch: TwitchConfig{ClientID: "abc123", RefreshToken: "refresher"},
			},
			wantErr: "twitch.client_secret is required when twitch.refresh_token is set",
		},
		{
			name: "missing bot user id",
			cfg: Config{
				Twitch: TwitchConfig{ClientID: "abc123", AccessToken: "tokentoken"},
			},
			wantErr: "twitch.bot_user_id is required",
		},
		{
			name: "no channels",
			cfg: Config{
				Twitch: validTwitch,
			},
			wantErr: "chat.channels must list at least one channel",
		},
		{
			name: "channel without name",
			cfg: Config{
				Twitch: validTwitch,
				Chat: ChatConfig{
					Channels:      []ChannelConfig{{Name: "somechannel"}, {ID: "222"}},
					QueueCapacity: 128,
					MessageLimit:  18,
				},
			},
			wantErr: "chat.channels[1].name is required",
		},
		{
			name: "chat log enabled without host",
			cfg: Config{
				Twitch:  validTwitch,
				Chat:    validChat,
				ChatLog: ChatLogConfig{Enabled: true, BatchSize: 200, QueueSize: 1024},
			},
			wantErr: "chat_log.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: Config{
				Twitch: validTwitch,
				Chat:   validChat,
				ChatLog: ChatLogConfig{
					Enabled:   true,
					BatchSize: 200,
					QueueSize: 1024,
					Postgres: DBConfig{
						Host: "localhost", Name: "chat", User: "bot", Password: "pass",
						MaxConns: 2, MinConns: 5,
					},
				},
			},
			wantErr: "chat_log.postgres.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name: "bad health port",
			cfg: Config{
				Twitch: validTwitch,
				Chat:   validChat,
				Health: HealthConfig{Port: 70000},
			},
			wantErr: "health.port must be between 1 and 65535, got 70000",
		},
		{
			name: "valid without chat log",
			cfg: Config{
				Twitch: validTwitch,
				Chat:   validChat,
				Health: HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
		{
			name: "valid with refresh token only",
			cfg: Config{
				Twitch: TwitchConfig{
					ClientID:     "abc123",
					ClientSecret: "shhh",
					RefreshToken: "refresher",
					BotUserID:    "42",
					BotUsername:  "botty",
				},
				Chat:   validChat,
				Health: HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
		{
			name: "valid with chat log",
			cfg: Config{
				Twitch: validTwitch,
				Chat:   validChat,
				ChatLog: ChatLogConfig{
					Enabled:   true,
					BatchSize: 200,
					QueueSize: 1024,
					Postgres: DBConfig{
						Host: "localhost", Name: "chat", User: "bot", Password: "pass",
						MaxConns: 4, MinConns: 1,
					},
				},
				Health: HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
