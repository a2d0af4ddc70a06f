package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every websocket frame
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler streams pipeline events to connected clients. The
// stream is best-effort observability: a dropped frame or slow client
// never affects the pipeline, and consumers still poll the REST API for
// authoritative state.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	events           interfaces.EventService
	stepThrottler    *rate.Limiter // step_started floods during a drain, throttle it
	serverInstanceID string        // clients use this to detect a server restart
}

func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		events:           events,
		stepThrottler:    rate.NewLimiter(rate.Every(250*time.Millisecond), 10),
		serverInstanceID: uuid.New().String(),
	}

	if events != nil {
		h.subscribe()
	}

	return h
}

// HandleWebSocket handles GET /ws connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendHello(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read loop keeps the connection alive; clients do not send commands
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendHello tells a new client which server instance it is talking to
func (h *WebSocketHandler) sendHello(conn *websocket.Conn) {
	msg := WSMessage{
		Type: "hello",
		Payload: map[string]interface{}{
			"server_instance_id": h.serverInstanceID,
			"connected_at":       time.Now().Format(time.RFC3339),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal hello message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send hello to client")
		}
		mutex.Unlock()
	}
}

// broadcast sends one frame to every connected client
func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	msg := WSMessage{Type: msgType, Payload: payload}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal websocket message")
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
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msgType).Msg("Failed to send message to client")
		}
	}
}

// subscribe wires the event bus into the broadcast path
func (h *WebSocketHandler) subscribe() {
	forward := func(eventType interfaces.EventType) {
		h.events.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			h.broadcast(string(event.Type), event.Payload)
			return nil
		})
	}

	forward(interfaces.EventSourceCreated)
	forward(interfaces.EventSourceDeleted)
	forward(interfaces.EventSourceLive)
	forward(interfaces.EventSourceErrored)
	forward(interfaces.EventJobQueued)
	forward(interfaces.EventJobStarted)
	forward(interfaces.EventJobCompleted)
	forward(interfaces.EventJobFailed)
	forward(interfaces.EventJobRequeued)
	forward(interfaces.EventStepCompleted)
	forward(interfaces.EventStepFailed)
	forward(interfaces.EventHealthChecked)

	// Step starts are the chattiest event during a drain, so they go
	// through the throttler. Skipped frames only delay the UI until the
	// next event, the timeline endpoint remains complete.
	h.events.Subscribe(interfaces.EventStepStarted, func(ctx context.Context, event interfaces.Event) error {
		if h.stepThrottler != nil && !h.stepThrottler.Allow() {
			return nil
		}
		h.broadcast(string(event.Type), event.Payload)
		return nil
	})
}
