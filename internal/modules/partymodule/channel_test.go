package partymodule

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/watchparty/internal/config"
)

func testPartyConfig() config.PartyConfig {
	return config.PartyConfig{
		SyncInterval:     3 * time.Second,
		DriftInterval:    2 * time.Second,
		DriftHardLimitMs: 5000,
		DriftSoftLimitMs: 1500,
		SlowRate:         0.95,
		FastRate:         1.05,
		ReconnectBase:    time.Second,
		ReconnectCap:     30 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	cap := 30 * time.Second

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, backoffDelay(attempt, base, cap), "attempt %d", attempt)
	}
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestChannel_DeliversDecodableFrames(t *testing.T) {
	frames := []string{
		`{"type":"play","position_ms":5000}`,
		`not json at all`,
		`{"type":"hologram"}`,
		`{"type":"pause","position_ms":6000}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
		// Hold the connection open until the client walks away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []Message
	ch := NewChannel(hclog.NewNullLogger(), testPartyConfig(), func(m *Message) {
		mu.Lock()
		got = append(got, *m)
		mu.Unlock()
	}, nil)
	ch.Connect(testContext(t), wsURL(srv))
	defer ch.Disconnect()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, KindPlay, got[0].Type)
	assert.Equal(t, int64(5000), got[0].PositionMs)
	assert.Equal(t, KindPause, got[1].Type)
}

func TestChannel_SendReachesServer(t *testing.T) {
	received := make(chan Message, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, ok := DecodeMessage(data)
		if ok {
			received <- *msg
		}
	}))
	defer srv.Close()

	ch := NewChannel(hclog.NewNullLogger(), testPartyConfig(), nil, nil)
	ch.Connect(testContext(t), wsURL(srv))
	defer ch.Disconnect()

	require.Eventually(t, func() bool {
		return ch.State() == ChannelOpen
	}, 2*time.Second, 10*time.Millisecond)

	ch.Send(&Message{Type: KindSeek, PositionMs: 77_000})

	select {
	case msg := <-received:
		assert.Equal(t, KindSeek, msg.Type)
		assert.Equal(t, int64(77_000), msg.PositionMs)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestChannel_SendIsNoOpWhenNotOpen(t *testing.T) {
	ch := NewChannel(hclog.NewNullLogger(), testPartyConfig(), nil, nil)

	// Never connected.
	ch.Send(&Message{Type: KindPlay})

	// Closed after a failed connect attempt.
	cfg := testPartyConfig()
	cfg.ReconnectBase = 10 * time.Millisecond
	ch = NewChannel(hclog.NewNullLogger(), cfg, nil, nil)
	ch.Connect(testContext(t), "ws://127.0.0.1:1/party")
	ch.Disconnect()
	ch.Send(&Message{Type: KindPlay})
	assert.Equal(t, ChannelClosed, ch.State())
}

func TestChannel_DisconnectCancelsReconnect(t *testing.T) {
	cfg := testPartyConfig()
	cfg.ReconnectBase = 20 * time.Millisecond

	var mu sync.Mutex
	var states []ChannelState
	ch := NewChannel(hclog.NewNullLogger(), cfg, nil, func(s ChannelState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	// Nothing listens here; every dial fails.
	ch.Connect(testContext(t), "ws://127.0.0.1:1/party")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range states {
			if s == ChannelReconnecting {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	ch.Disconnect()
	mu.Lock()
	settled := len(states)
	mu.Unlock()

	// No further state transitions arrive once closed.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, settled, len(states))
	assert.Equal(t, ChannelClosed, states[len(states)-1])
}

func TestChannel_ReconnectsAfterDisconnect(t *testing.T) {
	received := make(chan Message, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msg, ok := DecodeMessage(data); ok {
				received <- *msg
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(hclog.NewNullLogger(), testPartyConfig(), nil, nil)
	ch.Connect(testContext(t), wsURL(srv))
	require.Eventually(t, func() bool {
		return ch.State() == ChannelOpen
	}, 2*time.Second, 10*time.Millisecond)

	ch.Disconnect()
	require.Equal(t, ChannelClosed, ch.State())

	// Joining a new room reuses the channel; it must come back to life.
	ch.Connect(testContext(t), wsURL(srv))
	defer ch.Disconnect()
	require.Eventually(t, func() bool {
		return ch.State() == ChannelOpen
	}, 2*time.Second, 10*time.Millisecond)

	ch.Send(&Message{Type: KindJoin, Name: "amy"})
	select {
	case msg := <-received:
		assert.Equal(t, KindJoin, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message after reconnect")
	}
}

func TestChannel_AttemptResetsOnOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(hclog.NewNullLogger(), testPartyConfig(), nil, nil)
	ch.mu.Lock()
	ch.attempt = 7
	ch.mu.Unlock()

	ch.Connect(testContext(t), wsURL(srv))
	defer ch.Disconnect()

	require.Eventually(t, func() bool {
		return ch.State() == ChannelOpen
	}, 2*time.Second, 10*time.Millisecond)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Equal(t, 0, ch.attempt)
}
