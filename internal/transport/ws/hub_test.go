package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"axle-monitor/core/internal/notify"
)

func dial(t *testing.T, srv *httptest.Server, recipient string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?recipient=" + recipient
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversToRecipient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ops := dial(t, srv, "ops@rail.example")
	other := dial(t, srv, "other@rail.example")
	require.Eventually(t, func() bool { return hub.Clients("ops@rail.example") == 1 }, time.Second, 10*time.Millisecond)

	err := hub.Notify(context.Background(), "ops@rail.example", notify.Message{Kind: notify.KindWarning, Title: "Hot"})
	require.NoError(t, err)

	var got notify.Message
	ops.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, ops.ReadJSON(&got))
	assert.Equal(t, "Hot", got.Title)
	assert.Equal(t, notify.KindWarning, got.Kind)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_NoClientsIsNotAnError(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.NoError(t, hub.Notify(context.Background(), "nobody", notify.Message{}))
	assert.Equal(t, "ws", hub.Name())
}

func TestHub_RequiresRecipient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "r")
	require.Eventually(t, func() bool { return hub.Clients("r") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients("r") == 0 }, 2*time.Second, 10*time.Millisecond)
}
