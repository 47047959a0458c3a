package handlers

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
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/services/events"
)

func TestWebSocketBroadcastsBusEvents(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()

	h := NewWebSocketHandler(bus, arbor.NewLogger())
	defer h.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// connection registration races the publish; wait for it
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(context.Background(), models.Event{
		Type: models.EventJobStatusChange,
		Payload: models.JobStatusChangePayload{
			ID:      "job-1",
			Library: "react",
			Status:  models.JobStatusCompleted,
		},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Type    models.EventType `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, models.EventJobStatusChange, frame.Type)

	var payload models.JobStatusChangePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "job-1", payload.ID)
	assert.Equal(t, models.JobStatusCompleted, payload.Status)
}

func TestWebSocketClientDisconnectIsCleanedUp(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()

	h := NewWebSocketHandler(bus, arbor.NewLogger())
	defer h.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
