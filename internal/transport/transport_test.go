package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bken/chatserver/internal/chat"
	"bken/chatserver/internal/ratelimit"
	"bken/chatserver/internal/usernames"
	"bken/chatserver/internal/wireproto"
)

func startTestServer(t *testing.T, cfg Config) (*httptest.Server, string) {
	t.Helper()
	s := New(cfg)
	httpServer := httptest.NewServer(s.Echo())
	t.Cleanup(httpServer.Close)
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	return httpServer, wsURL
}

func baseConfig(hub *chat.Hub) Config {
	return Config{
		Usernames: usernames.New(3, 20),
		Hub:       hub,
		MaxMsgLen: 200,
		RateLimit: ratelimit.Config{MinTimeHard: 0, MinTimeSoft: 0, KickBurst: 1 << 30},
	}
}

func TestSocketUpgradeDeliversSetupFrame(t *testing.T) {
	hub := chat.New(chat.Config{MaxStoredMessages: 5})
	defer hub.Shutdown()

	_, baseURL := startTestServer(t, baseConfig(hub))

	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/socket/v1?username=alice", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read setup frame: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("expected binary setup frame, got type %d", mt)
	}
	setup, err := wireproto.DecodeSetup(data)
	if err != nil {
		t.Fatalf("decode setup: %v", err)
	}
	if setup.SessionID != 1 {
		t.Fatalf("expected session id 1, got %d", setup.SessionID)
	}
}

func TestSocketUpgradeRejectsMissingUsername(t *testing.T) {
	hub := chat.New(chat.Config{MaxStoredMessages: 5})
	defer hub.Shutdown()

	_, baseURL := startTestServer(t, baseConfig(hub))

	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/socket/v1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close frame for a missing username, got %v", err)
	}
	if closeErr.Code != websocket.CloseInternalServerErr {
		t.Fatalf("expected close code %d, got %d", websocket.CloseInternalServerErr, closeErr.Code)
	}
}

func TestHealthReflectsRosterSize(t *testing.T) {
	hub := chat.New(chat.Config{MaxStoredMessages: 5})
	defer hub.Shutdown()

	_, baseURL := startTestServer(t, baseConfig(hub))
	httpURL := "http" + strings.TrimPrefix(baseURL, "ws")

	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/socket/v1?username=alice", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read setup frame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(httpURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK && hub.RosterSize() == 1 {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("health never reflected one connected client")
}

func TestOfflineConfigReturns503(t *testing.T) {
	hub := chat.New(chat.Config{MaxStoredMessages: 5})
	defer hub.Shutdown()

	cfg := baseConfig(hub)
	cfg.Offline = true
	_, baseURL := startTestServer(t, cfg)
	httpURL := "http" + strings.TrimPrefix(baseURL, "ws")

	resp, err := http.Get(httpURL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
