// bot runs the duplex chat client against the channels listed in its
// config, optionally logging every inbound message to Postgres.
// Usage: go run ./cmd/bot -config configs/bot.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kwach/chatwire/internal/auth"
	"github.com/kwach/chatwire/internal/chat"
	"github.com/kwach/chatwire/internal/chatlog"
	"github.com/kwach/chatwire/internal/config"
	"github.com/kwach/chatwire/internal/helix"
	"github.com/kwach/chatwire/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/bot.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting bot",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"bot", cfg.Twitch.BotUsername,
		"channels", len(cfg.Chat.Channels),
		"chat_log", cfg.ChatLog.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Token refresher, present whenever a refresh token is configured
	var refresher *auth.Refresher
	if cfg.Twitch.RefreshToken != "" {
		refresher, err = auth.NewRefresher(
			cfg.Twitch.ClientID,
			cfg.Twitch.ClientSecret,
			cfg.Twitch.RefreshToken,
			auth.WithTokenURL(cfg.Twitch.TokenURL),
			auth.WithLogger(logger),
		)
		if err != nil {
			logger.Error("failed to build token refresher", "error", err)
			os.Exit(1)
		}
	}

	// Validation guarantees a refresher exists when the token is empty.
	accessToken := cfg.Twitch.AccessToken
	if accessToken == "" {
		accessToken, err = refresher.Refresh(ctx)
		if err != nil {
			logger.Error("initial token refresh failed", "error", err)
			os.Exit(1)
		}
		logger.Info("fetched initial access token")
	}

	// Resolve channel ids missing from the config
	channels, err := resolveChannels(ctx, cfg, accessToken, logger)
	if err != nil {
		logger.Error("failed to resolve channels", "error", err)
		os.Exit(1)
	}

	// Optional chat log sink
	var sink *chatlog.Sink
	onMessage := func(m chat.Message) {
		logger.Info("chat message",
			"channel", m.Channel,
			"chatter", m.ChatterLogin,
			"text", m.Text,
		)
	}
	if cfg.ChatLog.Enabled {
		logger.Info("connecting to database",
			"host", cfg.ChatLog.Postgres.Host,
			"port", cfg.ChatLog.Postgres.Port,
			"database", cfg.ChatLog.Postgres.Name,
		)

		pool, err := chatlog.Connect(ctx, cfg.ChatLog.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		logger.Info("database connected")

		sink = chatlog.New(chatlog.Config{
			BatchSize:     cfg.ChatLog.BatchSize,
			FlushInterval: cfg.ChatLog.FlushInterval,
			QueueSize:     cfg.ChatLog.QueueSize,
			FlushTimeout:  cfg.ChatLog.FlushTimeout,
		}, pool, logger.With("component", "chatlog"))

		if err := sink.Start(ctx); err != nil {
			logger.Error("failed to start chat log sink", "error", err)
			os.Exit(1)
		}

		logSink := sink
		onMessage = func(m chat.Message) {
			logSink.Enqueue(m)
		}
	}

	// Build and connect the chat client
	chatCfg := chat.DefaultConfig()
	chatCfg.Token = accessToken
	chatCfg.ClientID = cfg.Twitch.ClientID
	chatCfg.BotUserID = cfg.Twitch.BotUserID
	chatCfg.BotUsername = cfg.Twitch.BotUsername
	chatCfg.Channels = channels
	chatCfg.OnMessage = onMessage
	chatCfg.EventSubURL = cfg.Twitch.EventSubURL
	chatCfg.IRCURL = cfg.Twitch.IRCURL
	chatCfg.HelixURL = cfg.Twitch.HelixURL
	chatCfg.HTTPTimeout = cfg.Twitch.HTTPTimeout
	chatCfg.HandshakeTimeout = cfg.Chat.HandshakeTimeout
	chatCfg.KeepaliveGrace = cfg.Chat.KeepaliveGrace
	chatCfg.ReconnectBaseWait = cfg.Chat.ReconnectBaseDelay
	chatCfg.ReconnectMaxWait = cfg.Chat.ReconnectMaxDelay
	chatCfg.QueueCapacity = cfg.Chat.QueueCapacity
	chatCfg.MessageLimit = cfg.Chat.MessageLimit
	chatCfg.MessageWindow = cfg.Chat.MessageWindow
	chatCfg.DrainRetryDelay = cfg.Chat.DrainRetryDelay
	chatCfg.SubscribeRetries = cfg.Chat.SubscribeRetries
	chatCfg.SubscribeRetryDelay = cfg.Chat.SubscribeRetryDelay

	client := chat.New(chatCfg, logger)
	if refresher != nil {
		client.SetAuthRefresh(refresher.Refresh)
	}

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(client, sink, cfg.Chat.StaleAfter),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Liveness watchdog: exit nonzero when the inbound stream stays
	// silent past StaleAfter; the supervisor restarts the process.
	var stale atomic.Bool
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				last := client.LastActivity()
				if last.IsZero() {
					continue
				}
				if age := time.Since(last); age > cfg.Chat.StaleAfter {
					logger.Error("inbound stream stale, exiting",
						"last_activity", last,
						"age", age,
					)
					stale.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	logger.Info("bot running",
		"bot", cfg.Twitch.BotUsername,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	client.Close()
	if sink != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		sink.Stop(stopCtx)
	}

	logger.Info("bot stopped")

	if stale.Load() {
		os.Exit(1)
	}
}

// resolveChannels fills in broadcaster ids for channels configured by
// name only.
func resolveChannels(ctx context.Context, cfg *config.Config, token string, logger *slog.Logger) ([]chat.ChannelInfo, error) {
	var api *helix.Client
	out := make([]chat.ChannelInfo, 0, len(cfg.Chat.Channels))

	for _, ch := range cfg.Chat.Channels {
		if ch.ID != "" {
			out = append(out, chat.ChannelInfo{Name: ch.Name, ID: ch.ID})
			continue
		}

		if api == nil {
			api = helix.NewClient(cfg.Twitch.ClientID, staticToken(token),
				helix.WithBaseURL(cfg.Twitch.HelixURL),
				helix.WithTimeout(cfg.Twitch.HTTPTimeout),
				helix.WithLogger(logger.With("component", "helix")),
			)
		}

		user, err := api.UserByLogin(ctx, ch.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve channel %s: %w", ch.Name, err)
		}
		logger.Info("resolved channel", "channel", ch.Name, "broadcaster_id", user.ID)
		out = append(out, chat.ChannelInfo{Name: ch.Name, ID: user.ID})
	}

	return out, nil
}

type staticToken string

func (t staticToken) Token() string { return string(t) }

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(client *chat.Client, sink *chatlog.Sink, staleAfter time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := client.Stats()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["eventsub"] = stats.EventSubState
		health.Components["irc"] = stats.IRCState
		health.Components["channels"] = stats.Channels
		health.Components["queue_len"] = stats.QueueLen

		if !stats.LastActivity.IsZero() {
			age := time.Since(stats.LastActivity)
			health.Components["last_activity_age"] = age.String()
			if age > staleAfter {
				health.Status = "unhealthy"
			}
		}

		if health.Status == "healthy" && (stats.EventSubState != "live" || stats.IRCState != "ready") {
			health.Status = "degraded"
		}

		if sink != nil {
			logStats := sink.Stats()
			health.Components["chat_log"] = map[string]int64{
				"inserts":   logStats.Inserts,
				"conflicts": logStats.Conflicts,
				"errors":    logStats.Errors,
				"dropped":   logStats.Dropped,
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
