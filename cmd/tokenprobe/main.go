// tokenprobe runs one refresh-token grant and prints the tokens it gets
// back. Useful for minting the initial access token a config needs, and
// for checking that stored credentials still work.
// Usage: go run ./cmd/tokenprobe
//
// Required environment variables:
//
//	TWITCH_CLIENT_ID     - application client id
//	TWITCH_CLIENT_SECRET - application client secret
//	TWITCH_REFRESH_TOKEN - current refresh token
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kwach/chatwire/internal/auth"
)

func main() {
	// Tokens go to stdout; everything else to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	clientID := os.Getenv("TWITCH_CLIENT_ID")
	clientSecret := os.Getenv("TWITCH_CLIENT_SECRET")
	refreshToken := os.Getenv("TWITCH_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		logger.Error("missing credentials",
			"client_id_set", clientID != "",
			"client_secret_set", clientSecret != "",
			"refresh_token_set", refreshToken != "",
		)
		logger.Info("Set TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET and TWITCH_REFRESH_TOKEN")
		os.Exit(1)
	}

	refresher, err := auth.NewRefresher(clientID, clientSecret, refreshToken,
		auth.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to build refresher", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accessToken, err := refresher.Refresh(ctx)
	if err != nil {
		logger.Error("refresh failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("access_token: %s\n", accessToken)
	fmt.Printf("refresh_token: %s\n", refresher.RefreshToken())
}
