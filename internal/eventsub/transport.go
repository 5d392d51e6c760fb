package eventsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kwach/chatwire/internal/backoff"
)

// Transport maintains the EventSub WebSocket session. It owns exactly one
// live connection at a time, its keepalive watchdog, and its own backoff
// state; an outage here never touches the outbound transport.
type Transport struct {
	cfg      Config
	handlers Handlers
	logger   *slog.Logger
	backoff  *backoff.Backoff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	session      Session
	lastActivity time.Time
	closing      bool
	started      bool

	// Single-flight guards for the two recovery paths.
	reconnecting atomic.Bool
	migrating    atomic.Bool
}

// New creates the inbound transport. Zero config fields fall back to
// DefaultConfig values.
func New(cfg Config, handlers Handlers, logger *slog.Logger) *Transport {
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
	if cfg.KeepaliveGrace <= 0 {
		cfg.KeepaliveGrace = def.KeepaliveGrace
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = def.ReconnectMaxWait
	}

	return &Transport{
		cfg:      cfg,
		handlers: handlers,
		logger:   logger,
		backoff:  backoff.New(cfg.ReconnectBaseWait, cfg.ReconnectMaxWait),
		state:    StateDisconnected,
	}
}

// Start dials the first session. A failed initial dial is not fatal; the
// transport keeps retrying with backoff until Stop.
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
		t.logger.Warn("initial eventsub connect failed, retrying", "error", err)
		t.scheduleReconnect()
	}
	return nil
}

// Stop closes the session and waits for all transport goroutines to exit.
// Safe to call more than once.
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
	t.session = Session{}
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
	return nil
}

// State returns the current machine state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Session returns the live session, if any.
func (t *Transport) Session() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateLive {
		return Session{}, false
	}
	return t.session, true
}

// LastActivity returns the instant of the most recent inbound message.
func (t *Transport) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// connect dials the configured endpoint, completes the welcome handshake,
// and installs the new session.
func (t *Transport) connect(ctx context.Context) error {
	t.setState(StateConnecting)

	conn, err := t.dial(ctx, t.cfg.URL)
	if err != nil {
		t.setState(StateReconnecting)
		return err
	}

	t.setState(StateHandshaking)
	sess, err := t.awaitWelcome(conn)
	if err != nil {
		conn.Close()
		t.setState(StateReconnecting)
		return err
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.session = sess
	t.lastActivity = time.Now()
	t.setStateLocked(StateLive)
	t.backoff.Reset()
	t.mu.Unlock()

	t.logger.Info("eventsub session established",
		"session_id", sess.ID,
		"keepalive_s", sess.KeepaliveTimeoutSeconds,
	)

	t.startSessionLoops(conn, t.watchdogWindow(sess))
	if t.handlers.OnSession != nil {
		t.handlers.OnSession(sess)
	}
	return nil
}

// dial opens the WebSocket connection.
func (t *Transport) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// awaitWelcome reads until the session welcome arrives. The server sends
// it first; the read deadline bounds the whole wait.
func (t *Transport) awaitWelcome(conn *websocket.Conn) (Session, error) {
	conn.SetReadDeadline(time.Now().Add(t.cfg.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return Session{}, fmt.Errorf("awaiting welcome: %w", err)
		}

		msg, err := parseMessage(data)
		if err != nil {
			t.logger.Warn("skipping malformed message during handshake", "error", err)
			continue
		}
		if msg.Kind == KindWelcome {
			if msg.Session.ID == "" {
				return Session{}, fmt.Errorf("welcome without session id")
			}
			return msg.Session, nil
		}
		t.logger.Debug("ignoring pre-welcome message", "type", msg.Metadata.MessageType)
	}
}

// startSessionLoops runs the read loop and watchdog for one connection.
func (t *Transport) startSessionLoops(conn *websocket.Conn, window time.Duration) {
	t.wg.Add(2)
	go t.readLoop(conn)
	go t.watchdogLoop(conn, window)
}

// watchdogWindow is the silence allowance for a session: the advertised
// keepalive interval plus the configured grace.
func (t *Transport) watchdogWindow(sess Session) time.Duration {
	secs := sess.KeepaliveTimeoutSeconds
	if secs <= 0 {
		secs = defaultKeepaliveSeconds
	}
	return time.Duration(secs)*time.Second + t.cfg.KeepaliveGrace
}

// readLoop reads and dispatches messages until the connection dies or is
// replaced.
func (t *Transport) readLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClosed(conn, err)
			return
		}

		t.touch()

		msg, err := parseMessage(data)
		if err != nil {
			t.logger.Warn("skipping malformed message", "error", err)
			continue
		}
		t.dispatch(msg)
	}
}

// dispatch routes one parsed message. Notifications go to the handler
// synchronously so events reach the consumer in receive order.
func (t *Transport) dispatch(msg Message) {
	switch msg.Kind {
	case KindKeepalive:
		// The touch above already re-fed the watchdog.

	case KindNotification:
		if t.handlers.OnNotification != nil {
			t.handlers.OnNotification(msg.Notification)
		}

	case KindReconnect:
		url := msg.Session.ReconnectURL
		if url == "" {
			t.logger.Warn("reconnect request without url, waiting for server close")
			return
		}
		if !t.migrating.CompareAndSwap(false, true) {
			t.logger.Debug("session migration already in flight")
			return
		}
		t.logger.Info("server requested session migration")
		t.wg.Add(1)
		go t.migrate(url)

	case KindRevocation:
		t.logger.Warn("subscription revoked",
			"subscription_id", msg.Notification.Subscription.ID,
			"status", msg.Notification.Subscription.Status,
		)
		if t.handlers.OnRevocation != nil {
			t.handlers.OnRevocation(msg.Notification.Subscription)
		}

	case KindWelcome:
		t.logger.Debug("unexpected welcome outside handshake", "session_id", msg.Session.ID)

	default:
		t.logger.Debug("ignoring unknown message type", "type", msg.Metadata.MessageType)
	}
}

// migrate follows a server-issued reconnect URL. The replacement must
// complete its own welcome handshake before the old connection closes, so
// a planned reconnect introduces no receive gap. On failure the old
// connection is left alone: the server closes it eventually and the
// unplanned path takes over.
func (t *Transport) migrate(url string) {
	defer t.wg.Done()
	defer t.migrating.Store(false)

	conn, err := t.dial(t.ctx, url)
	if err != nil {
		t.logger.Warn("migration dial failed, waiting for server close", "error", err)
		return
	}
	sess, err := t.awaitWelcome(conn)
	if err != nil {
		conn.Close()
		t.logger.Warn("migration handshake failed, waiting for server close", "error", err)
		return
	}

	t.mu.Lock()
	if t.closing || t.conn == nil {
		// Stopped, or the old connection already died and the unplanned
		// path owns recovery now.
		t.mu.Unlock()
		conn.Close()
		return
	}
	old := t.conn
	t.conn = conn
	t.session = sess
	t.lastActivity = time.Now()
	t.backoff.Reset()
	t.mu.Unlock()

	old.Close()
	t.logger.Info("session migrated", "session_id", sess.ID)

	t.startSessionLoops(conn, t.watchdogWindow(sess))
	if t.handlers.OnSession != nil {
		t.handlers.OnSession(sess)
	}
}

// watchdogLoop force-closes the connection when no inbound message arrives
// within the keepalive window. It exits once the connection is replaced or
// the transport stops.
func (t *Transport) watchdogLoop(conn *websocket.Conn, window time.Duration) {
	defer t.wg.Done()

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-timer.C:
		}

		t.mu.Lock()
		current := t.conn
		last := t.lastActivity
		t.mu.Unlock()

		if current != conn {
			return
		}

		idle := time.Since(last)
		if idle >= window {
			t.logger.Warn("keepalive window exceeded, forcing close",
				"idle", idle.Round(time.Millisecond),
				"window", window,
			)
			conn.Close()
			return
		}
		timer.Reset(window - idle)
	}
}

// touch records inbound activity for the watchdog and liveness probes.
func (t *Transport) touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// handleClosed runs when a read loop ends. Closes caused by Stop or by a
// migration swap are expected; anything else starts the reconnect path.
func (t *Transport) handleClosed(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.closing || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.session = Session{}
	t.setStateLocked(StateReconnecting)
	t.mu.Unlock()

	t.logger.Warn("eventsub connection lost", "error", err)
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

// reconnectLoop redials with jittered exponential backoff until a session
// is established or the transport stops. Attempts are strictly serial.
func (t *Transport) reconnectLoop() {
	defer t.wg.Done()
	defer t.reconnecting.Store(false)

	for {
		delay := backoff.Jitter(t.backoff.NextDelay())
		t.logger.Info("scheduling eventsub reconnect", "delay", delay.Round(time.Millisecond))

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
		t.logger.Warn("eventsub reconnect failed", "error", err)
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
	t.logger.Debug("eventsub state change", "from", t.state, "to", next)
	t.state = next
}
