package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/metrics"
)

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		MaxSubscriberQueue: 32,
		PingInterval:       30 * time.Second,
		PongDeadline:       10 * time.Second,
		WriteTimeout:       5 * time.Second,
	}
}

func setupTestManager(t *testing.T, cfg config.StreamConfig) (*Broadcaster, *httptest.Server) {
	t.Helper()

	b := NewBroadcaster(cfg.MaxSubscriberQueue, metrics.NewRecorder())
	manager := NewConnectionManager(b, cfg)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))

	t.Cleanup(func() { server.Close() })
	return b, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	conn.SetReadLimit(1 << 20)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestConnectionManager_Welcome(t *testing.T) {
	_, server := setupTestManager(t, testStreamConfig())
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, TypeWelcome, msg["type"])
	assert.NotEmpty(t, msg["subscriber_id"])
}

func TestConnectionManager_FreshSubscriberIDPerConnection(t *testing.T) {
	_, server := setupTestManager(t, testStreamConfig())

	first := readJSON(t, connectWS(t, server))
	second := readJSON(t, connectWS(t, server))
	assert.NotEqual(t, first["subscriber_id"], second["subscriber_id"])
}

func TestConnectionManager_SubscribeAndReceive(t *testing.T) {
	b, server := setupTestManager(t, testStreamConfig())
	conn := connectWS(t, server)
	readJSON(t, conn) // welcome

	writeJSON(t, conn, ClientMessage{Action: ActionSubscribe, Topics: []string{AgentTopic("a1"), TopicAll}})

	msg := readJSON(t, conn)
	assert.Equal(t, TypeSubscriptionConfirmed, msg["type"])

	// subscription.confirmed means the topic registration is visible.
	b.Publish(AgentTopic("a1"), AgentLogPayload{Type: TypeAgentLog, AgentID: "a1", Timestamp: NowRFC3339()})

	msg = readJSON(t, conn)
	assert.Equal(t, TypeAgentLog, msg["type"])
	assert.Equal(t, "a1", msg["agent_id"])
}

func TestConnectionManager_SubscribeRequiresTopics(t *testing.T) {
	_, server := setupTestManager(t, testStreamConfig())
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: ActionSubscribe})
	msg := readJSON(t, conn)
	assert.Equal(t, TypeSubscriptionError, msg["type"])
}

func TestConnectionManager_Unsubscribe(t *testing.T) {
	b, server := setupTestManager(t, testStreamConfig())
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: ActionSubscribe, Topics: []string{TopicAll}})
	readJSON(t, conn) // confirmed

	writeJSON(t, conn, ClientMessage{Action: ActionUnsubscribe, Topics: []string{TopicAll}})
	require.Eventually(t, func() bool {
		return b.topicSubscribers(TopicAll) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// A ping after publishing proves nothing else was delivered first.
	b.Publish(TopicAll, ControlFrame{Type: "should-not-arrive"})
	writeJSON(t, conn, ClientMessage{Action: ActionPing})
	msg := readJSON(t, conn)
	assert.Equal(t, TypePong, msg["type"])
}

func TestConnectionManager_ClientPingPong(t *testing.T) {
	_, server := setupTestManager(t, testStreamConfig())
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: ActionPing})
	msg := readJSON(t, conn)
	assert.Equal(t, TypePong, msg["type"])
}

func TestConnectionManager_ServerPingKeepsLiveConnection(t *testing.T) {
	cfg := testStreamConfig()
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PongDeadline = 200 * time.Millisecond
	_, server := setupTestManager(t, cfg)
	conn := connectWS(t, server)
	readJSON(t, conn)

	// Answer pings; the connection must survive several intervals.
	deadline := time.Now().Add(400 * time.Millisecond)
	pings := 0
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			break
		}
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == TypePing {
			pings++
			writeJSON(t, conn, ClientMessage{Action: ActionPong})
		}
	}
	assert.GreaterOrEqual(t, pings, 2)
}

func TestConnectionManager_MissedPongDisconnects(t *testing.T) {
	cfg := testStreamConfig()
	cfg.PingInterval = 30 * time.Millisecond
	cfg.PongDeadline = 30 * time.Millisecond
	b, server := setupTestManager(t, cfg)
	conn := connectWS(t, server)
	readJSON(t, conn)

	// Never answer pings; expect a terminal close frame, then EOF.
	sawClose := false
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			break
		}
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == TypeClose {
			sawClose = true
		}
	}
	assert.True(t, sawClose, "terminal close frame before disconnect")
	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionManager_SlowSubscriberIsolation(t *testing.T) {
	cfg := testStreamConfig()
	cfg.WriteTimeout = time.Second
	b, server := setupTestManager(t, cfg)

	fast := connectWS(t, server)
	readJSON(t, fast)
	writeJSON(t, fast, ClientMessage{Action: ActionSubscribe, Topics: []string{TopicAll}})
	readJSON(t, fast)

	slow := connectWS(t, server)
	readJSON(t, slow)
	writeJSON(t, slow, ClientMessage{Action: ActionSubscribe, Topics: []string{TopicAll}})
	readJSON(t, slow)

	// Padding defeats socket buffering so the slow connection's writer
	// actually blocks once the client stops reading.
	padding := strings.Repeat("x", 8*1024)
	total := 10 * cfg.MaxSubscriberQueue

	fastMsgs := make(chan string, total)
	go func() {
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, data, err := fast.Read(ctx)
			cancel()
			if err != nil {
				close(fastMsgs)
				return
			}
			var msg map[string]any
			if json.Unmarshal(data, &msg) == nil && msg["type"] == "seq" {
				fastMsgs <- msg["message"].(string)
			}
		}
	}()

	for i := 0; i < total; i++ {
		b.Publish(TopicAll, ControlFrame{
			Type:    "seq",
			Message: fmt.Sprintf("%d|%s", i, padding),
		})
		time.Sleep(500 * time.Microsecond)
	}

	// The fast subscriber got everything, in order.
	for i := 0; i < total; i++ {
		select {
		case got, ok := <-fastMsgs:
			require.True(t, ok, "fast subscriber disconnected at message %d", i)
			require.True(t, strings.HasPrefix(got, fmt.Sprintf("%d|", i)),
				"out of order at %d: %.20s", i, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("fast subscriber stalled at message %d", i)
		}
	}

	// The slow one was dropped server-side. Resume reading to observe
	// the best-effort overflow frame before the connection closes.
	sawOverflow := false
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, data, err := slow.Read(ctx)
		cancel()
		if err != nil {
			break
		}
		var msg map[string]any
		if json.Unmarshal(data, &msg) == nil && msg["type"] == TypeOverflow {
			sawOverflow = true
		}
	}
	assert.True(t, sawOverflow, "overflow frame delivered")
	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
