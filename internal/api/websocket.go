package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypeConvert = "convert"
	MsgTypePing    = "ping"

	// Server -> Client messages
	MsgTypeConnected  = "connected"
	MsgTypeConversion = "conversion"
	MsgTypeError      = "error"
	MsgTypePong       = "pong"
)

// clientBuffer bounds the per-connection outbound queue. A client that falls
// this far behind misses events rather than stalling conversions.
const clientBuffer = 32

// WSMessage is the envelope for every WebSocket frame.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ConvertPayload carries a whole spectrum file in one message.
type ConvertPayload struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64 encoded file
}

// WSErrorResponse is the payload of an error message.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type wsClient struct {
	send chan WSMessage
}

// EventHub fans conversion events out to WebSocket clients and accepts
// conversions submitted over the socket.
type EventHub struct {
	converter Converter
	outputDir string
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewEventHub creates a hub. converter may be nil, in which case convert
// messages are rejected.
func NewEventHub(converter Converter, outputDir string, logger *slog.Logger) *EventHub {
	return &EventHub{
		converter: converter,
		outputDir: outputDir,
		logger:    logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish sends an event to every connected client.
func (h *EventHub) Publish(msgType string, payload any) {
	msg := WSMessage{Type: msgType, Payload: mustJSON(payload), Timestamp: time.Now().UnixMilli()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Warn("dropping event for slow client", "type", msgType)
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection and serves the event protocol
func (h *EventHub) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	client := &wsClient{send: make(chan WSMessage, clientBuffer)}
	h.register(client)
	defer h.unregister(client)
	h.logger.Debug("client connected", "remote", c.RealIP())

	done := make(chan struct{})
	defer close(done)
	go h.writeLoop(ws, client, done)

	client.send <- WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()}

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("connection error", "error", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			h.reply(client, WSMessage{Type: MsgTypePong, ID: msg.ID})
		case MsgTypeConvert:
			h.handleConvert(c, client, msg)
		default:
			h.replyError(client, msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	h.logger.Debug("client disconnected")
	return nil
}

// handleConvert converts a file sent inline. The result is broadcast to every
// client, including the sender.
func (h *EventHub) handleConvert(c echo.Context, client *wsClient, msg WSMessage) {
	if h.converter == nil {
		h.replyError(client, msg.ID, "conversion is not available", "UNAVAILABLE")
		return
	}

	var payload ConvertPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.replyError(client, msg.ID, "Invalid convert payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if payload.Name == "" {
		h.replyError(client, msg.ID, "name is required", "INVALID_PAYLOAD")
		return
	}
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		h.replyError(client, msg.ID, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	res := h.converter.ConvertBytes(c.Request().Context(), msg.ID, filepath.Base(payload.Name), data, h.outputDir)
	h.Publish(MsgTypeConversion, res)
}

func (h *EventHub) writeLoop(ws *websocket.Conn, client *wsClient, done <-chan struct{}) {
	for {
		select {
		case msg := <-client.send:
			if err := ws.WriteJSON(msg); err != nil {
				h.logger.Warn("failed to send message", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

func (h *EventHub) reply(client *wsClient, msg WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	select {
	case client.send <- msg:
	default:
		h.logger.Warn("dropping reply for slow client", "type", msg.Type)
	}
}

func (h *EventHub) replyError(client *wsClient, id, message, code string) {
	h.reply(client, WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func (h *EventHub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *EventHub) unregister(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
