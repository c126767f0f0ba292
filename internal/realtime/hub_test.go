package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) contracts.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev contracts.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_BroadcastsWithFilter(t *testing.T) {
	hub := NewHub(logger.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	only2 := dial(t, srv, "?strategy=2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	hub.Publish(ctx, contracts.Event{Type: contracts.EventLedgerAppended, StrategyID: 1, Date: "2025-01-02"})
	hub.Publish(ctx, contracts.Event{Type: contracts.EventLedgerAppended, StrategyID: 2, Date: "2025-01-02"})
	hub.Publish(ctx, contracts.Event{Type: contracts.EventScoresRefreshed})

	assert.Equal(t, int64(1), readEvent(t, all).StrategyID)
	assert.Equal(t, int64(2), readEvent(t, all).StrategyID)
	assert.Equal(t, contracts.EventScoresRefreshed, readEvent(t, all).Type)

	assert.Equal(t, int64(2), readEvent(t, only2).StrategyID)
	assert.Equal(t, contracts.EventScoresRefreshed, readEvent(t, only2).Type)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub := NewHub(logger.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestParseStrategies(t *testing.T) {
	ids := parseStrategies("1, 2,x,-3,")
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, int64(1))
	assert.Contains(t, ids, int64(2))
	assert.Empty(t, parseStrategies(""))
}
