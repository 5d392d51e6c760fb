package eventsub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func welcomeJSON(sessionID string, keepaliveSec int) []byte {
	return []byte(fmt.Sprintf(`{"metadata":{"message_id":"m1","message_type":"session_welcome"},"payload":{"session":{"id":%q,"status":"connected","keepalive_timeout_seconds":%d}}}`, sessionID, keepaliveSec))
}

func reconnectJSON(url string) []byte {
	return []byte(fmt.Sprintf(`{"metadata":{"message_id":"m2","message_type":"session_reconnect"},"payload":{"session":{"id":"old","status":"reconnecting","reconnect_url":%q}}}`, url))
}

func notificationJSON(text string) []byte {
	return []byte(fmt.Sprintf(`{"metadata":{"message_id":"m3","message_type":"notification","subscription_type":"channel.chat.message"},"payload":{"subscription":{"id":"sub1","type":"channel.chat.message","version":"1"},"event":{"broadcaster_user_login":"somechannel","chatter_user_login":"alice","message":{"text":%q}}}}`, text))
}

func waitSession(t *testing.T, sessions <-chan Session, wantID string) {
	t.Helper()
	select {
	case s := <-sessions:
		if s.ID != wantID {
			t.Fatalf("session id = %q, want %q", s.ID, wantID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for session %q", wantID)
	}
}

func eventText(t *testing.T, n Notification) string {
	t.Helper()
	var event struct {
		Message struct {
			Text string `json:"text"`
		} `json:"message"`
	}
	if err := json.Unmarshal(n.Event, &event); err != nil {
		t.Fatalf("unmarshal event failed: %v", err)
	}
	return event.Message.Text
}

func TestTransport_EstablishesSession(t *testing.T) {
	sessions := make(chan Session, 8)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, welcomeJSON("abc", 10))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	tr := New(Config{URL: wsURL(server)}, Handlers{
		OnSession: func(s Session) { sessions <- s },
	}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	waitSession(t, sessions, "abc")

	if got := tr.State(); got != StateLive {
		t.Errorf("State = %v, want live", got)
	}
	sess, ok := tr.Session()
	if !ok {
		t.Fatal("Session() reported no live session")
	}
	if sess.KeepaliveTimeoutSeconds != 10 {
		t.Errorf("KeepaliveTimeoutSeconds = %d, want 10", sess.KeepaliveTimeoutSeconds)
	}
	if tr.LastActivity().IsZero() {
		t.Error("LastActivity should be set after handshake")
	}
}

func TestTransport_ForwardsNotificationsInOrder(t *testing.T) {
	events := make(chan Notification, 8)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, welcomeJSON("abc", 10))
		for _, text := range []string{"one", "two", "three"} {
			conn.WriteMessage(websocket.TextMessage, notificationJSON(text))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	tr := New(Config{URL: wsURL(server)}, Handlers{
		OnNotification: func(n Notification) { events <- n },
	}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	for _, want := range []string{"one", "two", "three"} {
		select {
		case n := <-events:
			if got := eventText(t, n); got != want {
				t.Errorf("event text = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %q", want)
		}
	}
}

func TestTransport_SkipsMalformedMessages(t *testing.T) {
	events := make(chan Notification, 8)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, welcomeJSON("abc", 10))
		conn.WriteMessage(websocket.TextMessage, []byte(`{this is not json`))
		conn.WriteMessage(websocket.TextMessage, notificationJSON("still alive"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	tr := New(Config{URL: wsURL(server)}, Handlers{
		OnNotification: func(n Notification) { events <- n },
	}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	select {
	case n := <-events:
		if got := eventText(t, n); got != "still alive" {
			t.Errorf("event text = %q, want %q", got, "still alive")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification after malformed message never arrived")
	}
}

func TestTransport_WatchdogForcesReconnect(t *testing.T) {
	var dials atomic.Int32
	sessions := make(chan Session, 8)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := dials.Add(1)
		conn.WriteMessage(websocket.TextMessage, welcomeJSON(fmt.Sprintf("s%d", n), 1))
		// No keepalives after the welcome; the client watchdog must close
		// the connection on its own.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := Config{
		URL:               wsURL(server),
		KeepaliveGrace:    200 * time.Millisecond,
		ReconnectBaseWait: 50 * time.Millisecond,
	}
	tr := New(cfg, Handlers{OnSession: func(s Session) { sessions <- s }}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	waitSession(t, sessions, "s1")
	waitSession(t, sessions, "s2")

	if got := dials.Load(); got < 2 {
		t.Errorf("dials = %d, want at least 2", got)
	}
}

func TestTransport_KeepalivesHoldConnectionOpen(t *testing.T) {
	var dials atomic.Int32
	keepalive := []byte(`{"metadata":{"message_id":"k","message_type":"session_keepalive"},"payload":{}}`)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		conn.WriteMessage(websocket.TextMessage, welcomeJSON("abc", 1))
		for i := 0; i < 8; i++ {
			time.Sleep(300 * time.Millisecond)
			if err := conn.WriteMessage(websocket.TextMessage, keepalive); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := Config{
		URL:            wsURL(server),
		KeepaliveGrace: 500 * time.Millisecond,
	}
	tr := New(cfg, Handlers{}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	// Window is 1.5s and keepalives arrive every 300ms, so the connection
	// must survive well past several windows.
	time.Sleep(2 * time.Second)

	if got := tr.State(); got != StateLive {
		t.Errorf("State = %v, want live", got)
	}
	if got := dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestTransport_SessionMigration(t *testing.T) {
	var dials atomic.Int32
	urlCh := make(chan string, 1)
	oldClosed := make(chan struct{})
	sessions := make(chan Session, 8)
	events := make(chan Notification, 8)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		switch dials.Add(1) {
		case 1:
			conn.WriteMessage(websocket.TextMessage, welcomeJSON("s1", 10))
			conn.WriteMessage(websocket.TextMessage, reconnectJSON(<-urlCh))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					close(oldClosed)
					return
				}
			}
		default:
			// The old connection must stay open until this handshake is
			// done; stall to widen the observation window.
			select {
			case <-oldClosed:
				t.Error("old connection closed before replacement handshake finished")
			case <-time.After(300 * time.Millisecond):
			}
			conn.WriteMessage(websocket.TextMessage, welcomeJSON("s2", 10))
			conn.WriteMessage(websocket.TextMessage, notificationJSON("after migration"))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	})
	defer server.Close()
	urlCh <- wsURL(server)

	tr := New(Config{URL: wsURL(server)}, Handlers{
		OnSession:      func(s Session) { sessions <- s },
		OnNotification: func(n Notification) { events <- n },
	}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	waitSession(t, sessions, "s1")
	waitSession(t, sessions, "s2")

	select {
	case n := <-events:
		if got := eventText(t, n); got != "after migration" {
			t.Errorf("event text = %q, want %q", got, "after migration")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after migration")
	}

	select {
	case <-oldClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("old connection never closed after migration")
	}
}

func TestTransport_RetriesInitialConnect(t *testing.T) {
	var requests atomic.Int32
	sessions := make(chan Session, 8)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, welcomeJSON("s1", 10))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := Config{
		URL:               wsURL(server),
		ReconnectBaseWait: 50 * time.Millisecond,
	}
	tr := New(cfg, Handlers{OnSession: func(s Session) { sessions <- s }}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	waitSession(t, sessions, "s1")

	if got := requests.Load(); got < 2 {
		t.Errorf("requests = %d, want at least 2", got)
	}
}

func TestTransport_StopIsIdempotent(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, welcomeJSON("abc", 10))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	sessions := make(chan Session, 8)
	tr := New(Config{URL: wsURL(server)}, Handlers{
		OnSession: func(s Session) { sessions <- s },
	}, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, sessions, "abc")

	if err := tr.Stop(); err != nil {
		t.Errorf("first Stop failed: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}

	if err := tr.Start(context.Background()); err != ErrClosed {
		t.Errorf("Start after Stop = %v, want ErrClosed", err)
	}
	if _, ok := tr.Session(); ok {
		t.Error("Session() reported a live session after Stop")
	}
}
