package eventbus

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades admitted requests to a WebSocket stream of bus events
// (spec §4.9 "WebSocket handler"). Authentication/authorization happens in
// the caller, before this handler is reached: any role >= viewer is
// sufficient, same as the rest of the credential-verifier gate.
type Handler struct {
	bus    *Bus
	logger *slog.Logger
}

// NewHandler returns a Handler broadcasting from bus.
func NewHandler(bus *Bus, logger *slog.Logger) *Handler {
	return &Handler{bus: bus, logger: logger}
}

// ServeHTTP upgrades the connection and runs the single cooperative
// forward-events/ping-pong loop until the client disconnects or a send
// fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	receiver, err := h.bus.Subscribe()
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseServiceRestart, "event bus closed"))
		return
	}
	defer receiver.Close()

	go h.readPump(conn, receiver)

	h.writePump(conn, receiver)
}

// readPump drains inbound frames. Close frames terminate the receiver; text
// frames are reserved for future per-topic subscriptions and are currently
// logged and ignored (spec §4.9).
func (h *Handler) readPump(conn *websocket.Conn, receiver *Receiver) {
	defer receiver.Close()

	conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))

		return nil
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if messageType == websocket.TextMessage {
			h.logger.Debug("websocket text frame ignored", slog.Int("bytes", len(message)))
		}
	}
}

// writePump forwards events as JSON text frames and sends pings every
// pingInterval, closing the connection if a pong doesn't land within
// pongTimeout of the next tick.
func (h *Handler) writePump(conn *websocket.Conn, receiver *Receiver) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-receiver.Events():
			if !ok {
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", slog.String("error", err.Error()))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
