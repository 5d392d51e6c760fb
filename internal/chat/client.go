package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kwach/chatwire/internal/eventsub"
	"github.com/kwach/chatwire/internal/helix"
	"github.com/kwach/chatwire/internal/irc"
)

// Client is the duplex chat client: events in over EventSub, commands
// out over IRC. The two transports fail and recover independently; the
// roster and the credential store are the shared state each one reads at
// the moment of action.
type Client struct {
	cfg    Config
	logger *slog.Logger

	creds  *credentials
	roster *roster
	api    *helix.Client
	events *eventsub.Transport
	irc    *irc.Transport

	ctx    context.Context
	cancel context.CancelFunc

	// refreshMu serializes auth refreshes so concurrent rejections from
	// the two transports trigger a single hook call.
	refreshMu sync.Mutex

	hookMu      sync.Mutex
	authRefresh func(context.Context) (string, error)

	started atomic.Bool
	closing atomic.Bool
}

// New wires the transports, the roster and the credential store. Call
// Connect to start.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		creds:  newCredentials(cfg.Token),
		roster: newRoster(),
	}

	for _, ch := range cfg.Channels {
		ch.Name = normalizeChannel(ch.Name)
		if ch.Name == "" {
			continue
		}
		c.roster.Add(ch)
	}

	apiOpts := []helix.ClientOption{
		helix.WithLogger(logger.With("component", "helix")),
		helix.WithAuthRefresh(c.refreshToken),
	}
	if cfg.HelixURL != "" {
		apiOpts = append(apiOpts, helix.WithBaseURL(cfg.HelixURL))
	}
	if cfg.HTTPTimeout > 0 {
		apiOpts = append(apiOpts, helix.WithTimeout(cfg.HTTPTimeout))
	}
	if cfg.SubscribeRetries > 0 && cfg.SubscribeRetryDelay > 0 {
		apiOpts = append(apiOpts, helix.WithSubscribeRetries(cfg.SubscribeRetries, cfg.SubscribeRetryDelay))
	}
	c.api = helix.NewClient(cfg.ClientID, c.creds, apiOpts...)

	c.events = eventsub.New(
		eventsub.Config{
			URL:               cfg.EventSubURL,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			KeepaliveGrace:    cfg.KeepaliveGrace,
			ReconnectBaseWait: cfg.ReconnectBaseWait,
			ReconnectMaxWait:  cfg.ReconnectMaxWait,
		},
		eventsub.Handlers{
			OnSession:      c.handleSession,
			OnNotification: c.handleNotification,
			OnRevocation:   c.handleRevocation,
		},
		logger.With("transport", "eventsub"),
	)

	c.irc = irc.New(
		irc.Config{
			URL:               cfg.IRCURL,
			Nick:              cfg.BotUsername,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			ReconnectBaseWait: cfg.ReconnectBaseWait,
			ReconnectMaxWait:  cfg.ReconnectMaxWait,
			QueueCapacity:     cfg.QueueCapacity,
			MessageLimit:      cfg.MessageLimit,
			MessageWindow:     cfg.MessageWindow,
			DrainRetryDelay:   cfg.DrainRetryDelay,
		},
		irc.Deps{
			Token:         c.creds,
			Channels:      c.roster.Names,
			OnAuthFailure: c.handleAuthFailure,
		},
		logger.With("transport", "irc"),
	)

	return c
}

// Connect starts both transports. Each one dials and recovers on its own
// backoff; a failed first dial is retried there rather than reported
// here.
func (c *Client) Connect(ctx context.Context) error {
	if c.closing.Load() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.events.Start(c.ctx); err != nil {
		return fmt.Errorf("start inbound transport: %w", err)
	}
	if err := c.irc.Start(c.ctx); err != nil {
		c.events.Stop()
		return fmt.Errorf("start outbound transport: %w", err)
	}

	c.logger.Info("chat client connected", "channels", c.roster.Len())
	return nil
}

// Close shuts down both transports, dropping whatever is still queued.
// Idempotent.
func (c *Client) Close() {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info("closing chat client")
	if c.cancel != nil {
		c.cancel()
	}
	c.irc.Stop()
	c.events.Stop()
}

// Say queues text for a channel. Fire and forget: delivery waits for the
// outbound transport to be ready and for rate-limit headroom.
func (c *Client) Say(channel, text string) {
	c.irc.Say(channel, text)
}

// JoinChannel adds a channel to the roster, sends its JOIN, and
// subscribes its chat events when an event session is live. Joining a
// channel already on the roster is a no-op. Subscription failures are
// logged and retried on the next session, never returned; an error means
// the JOIN line did not go out, in which case the roster entry still
// guarantees a join on the next (re)connect.
func (c *Client) JoinChannel(ctx context.Context, info ChannelInfo) error {
	info.Name = normalizeChannel(info.Name)
	if info.Name == "" {
		return fmt.Errorf("empty channel name")
	}
	if !c.roster.Add(info) {
		return nil
	}

	c.logger.Info("joining channel", "channel", info.Name)

	if sess, ok := c.events.Session(); ok {
		go c.subscribeChannel(sess.ID, info)
	}

	// Not connected is fine: every (re)connect joins the whole roster.
	if err := c.irc.Join(ctx, info.Name); err != nil && !errors.Is(err, irc.ErrNotConnected) {
		return err
	}
	return nil
}

// LeaveChannel removes a channel from the roster and parts it. The event
// subscription is not torn down; the next session's resubscribe pass
// simply leaves the channel out. Absent channels are a no-op.
func (c *Client) LeaveChannel(name string) {
	name = normalizeChannel(name)
	if !c.roster.Remove(name) {
		return
	}
	c.logger.Info("leaving channel", "channel", name)
	c.irc.Part(name)
}

// HasChannel reports whether the channel is on the roster.
func (c *Client) HasChannel(name string) bool {
	return c.roster.Has(normalizeChannel(name))
}

// UpdateToken replaces the access token used by both transports and the
// Helix client from their next action onward.
func (c *Client) UpdateToken(token string) {
	c.creds.Set(token)
}

// SetAuthRefresh installs the hook that obtains a fresh access token
// after an authentication failure. The token it returns is stored for
// all subsequent authentication.
func (c *Client) SetAuthRefresh(fn func(context.Context) (string, error)) {
	c.hookMu.Lock()
	c.authRefresh = fn
	c.hookMu.Unlock()
}

// LastActivity returns the time of the last inbound event-stream
// traffic. A health loop can restart the process when it goes stale.
func (c *Client) LastActivity() time.Time {
	return c.events.LastActivity()
}

// Stats returns a point-in-time snapshot of both transports.
func (c *Client) Stats() Stats {
	return Stats{
		EventSubState: c.events.State().String(),
		IRCState:      c.irc.State().String(),
		Channels:      c.roster.Len(),
		QueueLen:      c.irc.QueueLen(),
		LastActivity:  c.events.LastActivity(),
	}
}

// refreshToken runs the installed refresh hook and stores the token it
// returns. Serialized: concurrent auth failures produce one hook call at
// a time.
func (c *Client) refreshToken(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.hookMu.Lock()
	fn := c.authRefresh
	c.hookMu.Unlock()
	if fn == nil {
		return errors.New("no auth refresh hook installed")
	}

	token, err := fn(ctx)
	if err != nil {
		return err
	}
	c.creds.Set(token)
	c.logger.Info("access token refreshed")
	return nil
}

// handleAuthFailure runs when IRC rejects the login, before the
// transport force-closes. Installing a fresh token here means the
// re-dial authenticates with it.
func (c *Client) handleAuthFailure() {
	ctx := c.ctx
	if ctx == nil {
		return
	}
	if err := c.refreshToken(ctx); err != nil {
		c.logger.Error("auth refresh failed", "error", err)
	}
}

// handleSession fires after every completed welcome handshake.
// Subscriptions never carry over into a new session, so the whole roster
// is resubscribed each time; 409 responses make the pass idempotent when
// the server did carry them over a planned migration.
func (c *Client) handleSession(sess eventsub.Session) {
	go c.subscribeAll(sess.ID)
}

func (c *Client) subscribeAll(sessionID string) {
	c.roster.ClearSubscriptions()

	channels := c.roster.Channels()
	c.logger.Info("subscribing channels",
		"session_id", sessionID,
		"count", len(channels),
	)

	for _, ch := range channels {
		if c.closing.Load() {
			return
		}
		// A newer session makes this pass stale; its own pass covers
		// the roster.
		if sess, ok := c.events.Session(); !ok || sess.ID != sessionID {
			return
		}
		c.subscribeChannel(sessionID, ch)
	}
}

// subscribeChannel registers chat events for one channel on the given
// session. Failures are logged; the next session's full pass retries.
func (c *Client) subscribeChannel(sessionID string, ch ChannelInfo) {
	if ch.ID == "" {
		c.logger.Warn("channel has no broadcaster id, cannot subscribe", "channel", ch.Name)
		return
	}

	subID, err := c.api.CreateChatSubscription(c.ctx, sessionID, ch.ID, c.cfg.BotUserID)
	if err != nil {
		c.logger.Warn("subscribe failed",
			"channel", ch.Name,
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	if c.closing.Load() {
		return
	}
	if subID != "" {
		c.roster.SetSubscription(ch.Name, subID)
	}
	c.logger.Debug("channel subscribed", "channel", ch.Name)
}

// chatMessageEvent is the channel.chat.message payload, reduced to the
// fields the handler consumes.
type chatMessageEvent struct {
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	ChatterUserID        string `json:"chatter_user_id"`
	ChatterUserLogin     string `json:"chatter_user_login"`
	ChatterUserName      string `json:"chatter_user_name"`
	MessageID            string `json:"message_id"`
	Message              struct {
		Text string `json:"text"`
	} `json:"message"`
}

// handleNotification decodes chat message events and hands them to the
// caller's handler in arrival order.
func (c *Client) handleNotification(n eventsub.Notification) {
	if n.Subscription.Type != "channel.chat.message" {
		return
	}
	if c.cfg.OnMessage == nil {
		return
	}

	var ev chatMessageEvent
	if err := json.Unmarshal(n.Event, &ev); err != nil {
		c.logger.Warn("malformed chat event", "error", err)
		return
	}

	c.cfg.OnMessage(Message{
		ID:           ev.MessageID,
		Channel:      ev.BroadcasterUserLogin,
		ChatterID:    ev.ChatterUserID,
		ChatterLogin: ev.ChatterUserLogin,
		ChatterName:  ev.ChatterUserName,
		Text:         ev.Message.Text,
	})
}

// handleRevocation drops the revoked subscription handle so the next
// session pass recreates it.
func (c *Client) handleRevocation(sub eventsub.Subscription) {
	name, ok := c.roster.ClearSubscriptionID(sub.ID)
	if !ok {
		c.logger.Warn("revocation for unknown subscription",
			"subscription_id", sub.ID,
			"status", sub.Status,
		)
		return
	}
	c.logger.Warn("subscription revoked", "channel", name, "status", sub.Status)
}
