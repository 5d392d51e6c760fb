// sendprobe connects the chat client to one or more channels and prints
// every inbound message to the console. With -say it queues one outbound
// message for the first channel, exercising the full send path.
// Usage: go run ./cmd/sendprobe -channels somechannel,otherchannel
//
// Required environment variables:
//
//	TWITCH_CLIENT_ID    - application client id
//	TWITCH_ACCESS_TOKEN - user access token for the bot account
//	TWITCH_BOT_USER_ID  - the bot account's user id
//	TWITCH_BOT_USERNAME - the bot account's login name
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwach/chatwire/internal/chat"
	"github.com/kwach/chatwire/internal/helix"
)

func main() {
	channelList := flag.String("channels", "", "comma-separated channel names to join")
	say := flag.String("say", "", "message to send to the first channel")
	verbose := flag.Bool("verbose", false, "print full message structs")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if *channelList == "" {
		logger.Error("no channels given")
		logger.Info("Usage: sendprobe -channels somechannel,otherchannel [-say hello]")
		os.Exit(1)
	}

	clientID := os.Getenv("TWITCH_CLIENT_ID")
	accessToken := os.Getenv("TWITCH_ACCESS_TOKEN")
	botUserID := os.Getenv("TWITCH_BOT_USER_ID")
	botUsername := os.Getenv("TWITCH_BOT_USERNAME")
	if clientID == "" || accessToken == "" || botUserID == "" || botUsername == "" {
		logger.Error("missing credentials",
			"client_id_set", clientID != "",
			"access_token_set", accessToken != "",
			"bot_user_id_set", botUserID != "",
			"bot_username_set", botUsername != "",
		)
		logger.Info("Set TWITCH_CLIENT_ID, TWITCH_ACCESS_TOKEN, TWITCH_BOT_USER_ID and TWITCH_BOT_USERNAME")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Resolve channel names to broadcaster ids
	api := helix.NewClient(clientID, staticToken(accessToken), helix.WithLogger(logger))

	var channels []chat.ChannelInfo
	for _, name := range strings.Split(*channelList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		user, err := api.UserByLogin(ctx, name)
		if err != nil {
			logger.Error("failed to resolve channel", "channel", name, "error", err)
			os.Exit(1)
		}
		logger.Info("resolved channel", "channel", name, "broadcaster_id", user.ID)
		channels = append(channels, chat.ChannelInfo{Name: name, ID: user.ID})
	}
	if len(channels) == 0 {
		logger.Error("no channels left after parsing -channels")
		os.Exit(1)
	}

	cfg := chat.DefaultConfig()
	cfg.Token = accessToken
	cfg.ClientID = clientID
	cfg.BotUserID = botUserID
	cfg.BotUsername = botUsername
	cfg.Channels = channels
	cfg.OnMessage = func(m chat.Message) {
		if *verbose {
			fmt.Printf("[MESSAGE] %+v\n", m)
		} else {
			fmt.Printf("[%s] %s: %s\n", m.Channel, m.ChatterLogin, m.Text)
		}
	}

	client := chat.New(cfg, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Queued now, delivered once the outbound transport is ready.
	if *say != "" {
		client.Say(channels[0].Name, *say)
		logger.Info("queued message", "channel", channels[0].Name, "text", *say)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := client.Stats()
				logger.Info("stats",
					"eventsub", stats.EventSubState,
					"irc", stats.IRCState,
					"channels", stats.Channels,
					"queue_len", stats.QueueLen,
					"last_activity", stats.LastActivity,
				)
			}
		}
	}()

	logger.Info("probe running - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	client.Close()
	logger.Info("shutdown complete")
}

type staticToken string

func (t staticToken) Token() string { return string(t) }
