package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types sent over WebSocket, besides the calibration events the
// service publishes.
const (
	EventConnected  = "connected"
	EventSubscribed = "subscribed"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type          string `json:"type"`
	CalibrationID string `json:"calibration_id"`
	Data          any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action        string `json:"action"` // "subscribe" or "unsubscribe"
	CalibrationID string `json:"calibration_id"`
}

// WSConn wraps a WebSocket connection with its peer address and send queue.
type WSConn struct {
	conn *websocket.Conn
	addr string
	send chan []byte
}

// Hub manages WebSocket connections and calibration subscriptions.
type Hub struct {
	mu           sync.RWMutex
	connections  map[*WSConn]bool
	calibrations map[string]map[*WSConn]bool // calibrationID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections:  make(map[*WSConn]bool),
		calibrations: make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connections[c] {
		return
	}
	delete(h.connections, c)
	for id, conns := range h.calibrations {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.calibrations, id)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a calibration channel.
func (h *Hub) Subscribe(c *WSConn, calibrationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calibrations[calibrationID] == nil {
		h.calibrations[calibrationID] = make(map[*WSConn]bool)
	}
	h.calibrations[calibrationID][c] = true
}

// Unsubscribe removes a connection from a calibration channel.
func (h *Hub) Unsubscribe(c *WSConn, calibrationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.calibrations[calibrationID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.calibrations, calibrationID)
		}
	}
}

// Broadcast sends an event to all connections subscribed to its calibration.
func (h *Hub) Broadcast(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("calibrationId", event.CalibrationID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.calibrations[event.CalibrationID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("addr", c.addr).Str("calibrationId", event.CalibrationID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// SendTo sends an event to a single registered connection.
func (h *Hub) SendTo(c *WSConn, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connections[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("addr", c.addr).Msg("Dropping WebSocket message, buffer full")
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SubscriberCount returns the number of connections subscribed to a calibration.
func (h *Hub) SubscriberCount(calibrationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.calibrations[calibrationID])
}
