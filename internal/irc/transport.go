package irc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kwach/chatwire/internal/backoff"
	"github.com/kwach/chatwire/internal/queue"
)

// Notices Twitch sends when the login is rejected.
var authFailureNotices = []string{
	"Login authentication failed",
	"Improperly formatted auth",
	"Login unsuccessful",
}

// Transport maintains the IRC-over-WebSocket connection used for sends. It
// owns the outgoing queue, the message-rate window, the join limiter, and
// its own backoff state; an outage here never touches the inbound
// transport.
type Transport struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	backoff     *backoff.Backoff
	sendQueue   *queue.Queue
	window      *queue.Window
	joinLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Write serialization
	writeMu sync.Mutex

	// Drain serialization: one drain pass at a time keeps window slots and
	// queue pops paired.
	drainMu sync.Mutex

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	closing      bool
	started      bool
	drainPending bool

	reconnecting atomic.Bool
}

// New creates the outbound transport. Zero config fields fall back to
// DefaultConfig values.
func New(cfg Config, deps Deps, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = def.ReconnectMaxWait
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = def.MessageLimit
	}
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = def.MessageWindow
	}
	if cfg.DrainRetryDelay <= 0 {
		cfg.DrainRetryDelay = def.DrainRetryDelay
	}
	if cfg.JoinLimit <= 0 {
		cfg.JoinLimit = def.JoinLimit
	}
	if cfg.JoinWindow <= 0 {
		cfg.JoinWindow = def.JoinWindow
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}

	return &Transport{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		backoff:   backoff.New(cfg.ReconnectBaseWait, cfg.ReconnectMaxWait),
		sendQueue: queue.New(cfg.QueueCapacity),
		window:    queue.NewWindow(cfg.MessageLimit, cfg.MessageWindow),
		joinLimiter: rate.NewLimiter(
			rate.Every(cfg.JoinWindow/time.Duration(cfg.JoinLimit)),
			cfg.JoinLimit,
		),
		state: StateDisconnected,
	}
}

// Start dials the first connection. A failed initial dial is not fatal;
// the transport keeps retrying with backoff until Stop.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	if err := t.connect(t.ctx); err != nil {
		t.logger.Warn("initial irc connect failed, retrying", "error", err)
		t.scheduleReconnect()
	}
	return nil
}

// Stop closes the connection and waits for all transport goroutines to
// exit. Messages still queued are dropped. Safe to call more than once.
func (t *Transport) Stop() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.setStateLocked(StateClosing)
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
	t.wg.Wait()

	if n := t.sendQueue.Len(); n > 0 {
		t.logger.Info("dropping queued messages on close", "count", n)
	}
	return nil
}

// State returns the current machine state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// QueueLen returns the number of messages waiting to be sent.
func (t *Transport) QueueLen() int {
	return t.sendQueue.Len()
}

// Say queues one chat message. Fire and forget: the queue bounds memory by
// dropping its oldest entry and the window paces the actual sends.
func (t *Transport) Say(channel, text string) {
	item := queue.Item{
		Channel: strings.TrimPrefix(channel, "#"),
		Text:    truncate(text, t.cfg.MaxMessageBytes),
		Nonce:   uuid.NewString(),
	}
	if evicted, dropped := t.sendQueue.Push(item); dropped {
		t.logger.Warn("send queue full, dropping oldest",
			"channel", evicted.Channel,
			"nonce", evicted.Nonce,
		)
	}
	t.drain()
}

// Join sends a JOIN for channel, paced by the flood limiter. Failing
// because no connection is up is reported but harmless: membership is
// re-requested on the next authentication pass.
func (t *Transport) Join(ctx context.Context, channel string) error {
	if err := t.joinLimiter.Wait(ctx); err != nil {
		return err
	}
	return t.writeLine("JOIN #" + strings.TrimPrefix(channel, "#"))
}

// Part sends a PART for channel. Best effort; a dead connection loses
// membership anyway.
func (t *Transport) Part(channel string) {
	if err := t.writeLine("PART #" + strings.TrimPrefix(channel, "#")); err != nil {
		t.logger.Debug("part failed", "channel", channel, "error", err)
	}
}

// connect dials the endpoint and sends the authentication lines. The 001
// confirmation arrives asynchronously through the read loop.
func (t *Transport) connect(ctx context.Context) error {
	t.setState(StateConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		t.setState(StateReconnecting)
		return fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.setStateLocked(StateAuthenticating)
	t.mu.Unlock()

	if err := t.authenticate(); err != nil {
		t.mu.Lock()
		t.conn = nil
		t.setStateLocked(StateReconnecting)
		t.mu.Unlock()
		conn.Close()
		return err
	}

	t.logger.Debug("irc connected, authenticating", "url", t.cfg.URL)

	t.wg.Add(1)
	go t.readLoop(conn)
	return nil
}

// authenticate sends the credential and identity lines plus the
// capability request. The token is read from the source now, not cached,
// so a refresh between connects always takes effect.
func (t *Transport) authenticate() error {
	token := ""
	if t.deps.Token != nil {
		token = t.deps.Token.Token()
	}

	lines := []string{
		passLine(token),
		"NICK " + t.cfg.Nick,
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
	}
	for _, line := range lines {
		if err := t.writeLine(line); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
	}
	return nil
}

// readLoop reads frames, splits them into lines, and dispatches each one.
func (t *Transport) readLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClosed(conn, err)
			return
		}

		// One frame may carry several CRLF-separated lines.
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			t.handleLine(conn, line)
		}
	}
}

// handleLine routes one inbound IRC line.
func (t *Transport) handleLine(conn *websocket.Conn, line string) {
	msg, err := parseLine(line)
	if err != nil {
		t.logger.Warn("skipping unparseable line", "error", err)
		return
	}

	switch msg.Command {
	case "PING":
		// Answered before any drain work so the server never sees us as
		// unresponsive.
		t.pong(msg)

	case "001":
		t.handleAuthenticated()

	case "JOIN":
		t.handleJoin(msg)

	case "NOTICE":
		t.handleNotice(msg)

	case "RECONNECT":
		t.logger.Info("server requested irc reconnect, closing")
		conn.Close()

	default:
		// Chat traffic is delivered on the event stream; PART echoes and
		// other numerics carry nothing we act on.
	}
}

func (t *Transport) pong(msg Message) {
	if err := t.writeLine("PONG :" + msg.Trailing()); err != nil {
		t.logger.Warn("pong failed", "error", err)
	}
}

// handleAuthenticated runs on the 001 numeric: the login was accepted.
func (t *Transport) handleAuthenticated() {
	t.backoff.Reset()
	t.setState(StateJoining)
	t.logger.Info("irc authenticated", "nick", t.cfg.Nick)

	channels := t.channelList()
	if len(channels) == 0 {
		t.becomeReady()
		return
	}

	t.wg.Add(1)
	go t.joinAll(channels)
}

// joinAll requests every configured channel, paced under the join flood
// limit.
func (t *Transport) joinAll(channels []string) {
	defer t.wg.Done()

	for _, name := range channels {
		if err := t.joinLimiter.Wait(t.ctx); err != nil {
			return
		}
		if err := t.writeLine("JOIN #" + name); err != nil {
			t.logger.Warn("join failed", "channel", name, "error", err)
			return
		}
	}
}

// handleJoin watches for the server echoing our own JOIN, which confirms
// membership and flips the transport to ready.
func (t *Transport) handleJoin(msg Message) {
	if !strings.EqualFold(msg.Nick(), t.cfg.Nick) {
		return
	}
	channel := ""
	if len(msg.Params) > 0 {
		channel = strings.TrimPrefix(msg.Params[0], "#")
	}
	t.logger.Debug("joined channel", "channel", channel)

	if t.State() == StateJoining {
		t.becomeReady()
	}
}

func (t *Transport) becomeReady() {
	t.setState(StateReady)
	t.logger.Info("irc ready", "queued", t.sendQueue.Len())
	t.drain()
}

// handleNotice checks server notices for the auth-rejection markers. A
// rejection invokes the refresh hook and force-closes; the reconnect then
// authenticates with whatever token the source holds. Never fatal.
func (t *Transport) handleNotice(msg Message) {
	text := msg.Trailing()
	if !isAuthFailure(text) {
		t.logger.Debug("server notice", "text", text)
		return
	}

	t.logger.Warn("authentication rejected", "notice", text)
	if t.deps.OnAuthFailure != nil {
		t.deps.OnAuthFailure()
	}
	t.forceClose()
}

func isAuthFailure(text string) bool {
	for _, marker := range authFailureNotices {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// forceClose tears down the current connection so the read loop takes the
// reconnect path.
func (t *Transport) forceClose() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// drain sends queued messages while the transport is ready and the rate
// window has headroom. When the window is exhausted with messages still
// queued, one delayed retry is scheduled instead of busy-looping.
func (t *Transport) drain() {
	t.drainMu.Lock()
	defer t.drainMu.Unlock()

	for {
		if t.State() != StateReady {
			return
		}
		if t.sendQueue.Len() == 0 {
			return
		}
		if !t.window.Allow() {
			t.scheduleDrainRetry()
			return
		}

		item, ok := t.sendQueue.Pop()
		if !ok {
			return
		}
		if err := t.writeLine(privmsgLine(item)); err != nil {
			t.logger.Warn("send failed, dropping message",
				"channel", item.Channel,
				"nonce", item.Nonce,
				"error", err,
			)
			return
		}
	}
}

// scheduleDrainRetry arms a single delayed drain. At most one retry is
// pending at a time.
func (t *Transport) scheduleDrainRetry() {
	t.mu.Lock()
	if t.drainPending || t.closing {
		t.mu.Unlock()
		return
	}
	t.drainPending = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		timer := time.NewTimer(t.cfg.DrainRetryDelay)
		defer timer.Stop()
		select {
		case <-t.ctx.Done():
			return
		case <-timer.C:
		}

		t.mu.Lock()
		t.drainPending = false
		t.mu.Unlock()
		t.drain()
	}()
}

// writeLine sends one IRC line on the current connection.
func (t *Transport) writeLine(line string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *Transport) channelList() []string {
	if t.deps.Channels == nil {
		return nil
	}
	return t.deps.Channels()
}

// handleClosed runs when a read loop ends. Closes caused by Stop are
// expected; anything else starts the reconnect path.
func (t *Transport) handleClosed(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.closing || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.setStateLocked(StateReconnecting)
	t.mu.Unlock()

	t.logger.Warn("irc connection lost", "error", err)
	t.scheduleReconnect()
}

// scheduleReconnect starts the reconnect loop unless one is already
// running or the transport is closing.
func (t *Transport) scheduleReconnect() {
	if t.isClosing() {
		return
	}
	if !t.reconnecting.CompareAndSwap(false, true) {
		return
	}
	t.wg.Add(1)
	go t.reconnectLoop()
}

// reconnectLoop redials with jittered exponential backoff until a
// connection is up or the transport stops. Attempts are strictly serial.
func (t *Transport) reconnectLoop() {
	defer t.wg.Done()
	defer t.reconnecting.Store(false)

	for {
		delay := backoff.Jitter(t.backoff.NextDelay())
		t.logger.Info("scheduling irc reconnect", "delay", delay.Round(time.Millisecond))

		timer := time.NewTimer(delay)
		select {
		case <-t.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if t.isClosing() {
			return
		}
		err := t.connect(t.ctx)
		if err == nil {
			return
		}
		if err == ErrClosed {
			return
		}
		t.logger.Warn("irc reconnect failed", "error", err)
	}
}

func (t *Transport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

// setState moves the machine to next under the transition rules. Illegal
// moves are logged and not applied.
func (t *Transport) setState(next State) {
	t.mu.Lock()
	t.setStateLocked(next)
	t.mu.Unlock()
}

func (t *Transport) setStateLocked(next State) {
	if t.state == next {
		return
	}
	if !validTransition(t.state, next) {
		t.logger.Warn("illegal state transition", "from", t.state, "to", next)
		return
	}
	t.logger.Debug("irc state change", "from", t.state, "to", next)
	t.state = next
}
