package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Twitch.ClientID == "" {
		return errors.New("twitch.client_id is required")
	}
	if c.Twitch.AccessToken == "" && c.Twitch.RefreshToken == "" {
		return errors.New("twitch.access_token or twitch.refresh_token is required")
	}
	if c.Twitch.RefreshToken != "" && c.Twitch.ClientSecret == "" {
		return errors.New("twitch.client_secret is required when twitch.refresh_token is set")
	}
	if c.Twitch.BotUserID == "" {
		return errors.New("twitch.bot_user_id is required")
	}
	if c.Twitch.BotUsername == "" {
		return errors.New("twitch.bot_username is required")
	}

	if len(c.Chat.Channels) == 0 {
		return errors.New("chat.channels must list at least one channel")
	}
	for i, ch := range c.Chat.Channels {
		if ch.Name == "" {
			return fmt.Errorf("chat.channels[%d].name is required", i)
		}
	}
	if c.Chat.QueueCapacity < 1 {
		return errors.New("chat.queue_capacity must be >= 1")
	}
	if c.Chat.MessageLimit < 1 {
		return errors.New("chat.message_limit must be >= 1")
	}

	if c.ChatLog.Enabled {
		if err := c.ChatLog.Postgres.validate("chat_log.postgres"); err != nil {
			return err
		}
		if c.ChatLog.BatchSize < 1 {
			return errors.New("chat_log.batch_size must be >= 1")
		}
		if c.ChatLog.QueueSize < 1 {
			return errors.New("chat_log.queue_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
