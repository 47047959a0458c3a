package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tooling connects from arbitrary origins
	},
}

// WebSocketHandler re-broadcasts pipeline events to connected clients. Each
// frame is the event envelope serialized as JSON, so remote proxies can
// replay it on their own bus unchanged.
type WebSocketHandler struct {
	logger       arbor.ILogger
	eventService interfaces.EventService

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	subs        []interfaces.Subscription
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:       logger,
		eventService: eventService,
		clients:      make(map[*websocket.Conn]bool),
		clientMutex:  make(map[*websocket.Conn]*sync.Mutex),
	}

	if eventService != nil {
		h.subscribe()
	}
	return h
}

func (h *WebSocketHandler) subscribe() {
	forward := func(ctx context.Context, event models.Event) {
		h.Broadcast(event)
	}
	for _, t := range []models.EventType{
		models.EventJobStatusChange,
		models.EventJobProgress,
		models.EventLibraryChange,
	} {
		h.subs = append(h.subs, h.eventService.Subscribe(t, forward))
	}
}

// HandleWebSocket handles WebSocket connections on /ws.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", total)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Drain client messages to detect disconnects; clients never send
	// anything meaningful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// Broadcast sends an event to every connected client.
func (h *WebSocketHandler) Broadcast(event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutexes[i].Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send event to client")
		}
	}
}

// Close releases event subscriptions and drops all client connections.
func (h *WebSocketHandler) Close() {
	for _, sub := range h.subs {
		sub.Unsubscribe()
	}
	h.subs = nil

	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
}
