package notify

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the write side of one dashboard observer connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans new-message and new-conversation events out to connected
// dashboard observers. Delivery is best effort: an observer whose write
// fails is skipped, never retried, and never surfaces an error to the
// caller. Observers register and unregister independently of any call
// lifecycle, so the set must tolerate concurrent mutation.
type Hub struct {
	mu      sync.Mutex
	clients map[string]Conn
	logger  *log.Logger
}

// NewHub creates an empty observer hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[string]Conn),
		logger:  logger,
	}
}

// Register adds an observer. A second registration under the same client ID
// replaces the previous connection.
func (h *Hub) Register(clientID string, conn Conn) {
	h.mu.Lock()
	if old, ok := h.clients[clientID]; ok {
		_ = old.Close()
	}
	h.clients[clientID] = conn
	h.mu.Unlock()
	h.logger.Printf("notify: client %s connected", clientID)
}

// Unregister removes an observer.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	delete(h.clients, clientID)
	h.mu.Unlock()
	h.logger.Printf("notify: client %s disconnected", clientID)
}

// Broadcast pushes one event to every connected observer.
func (h *Hub) Broadcast(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Printf("notify: failed to marshal broadcast: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// The reader loop for this client will notice the broken
			// connection and unregister it.
			h.logger.Printf("notify: skipping client %s: %v", id, err)
		}
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// MessageEvent is broadcast when a single message is added to an existing
// conversation.
type MessageEvent struct {
	Type           string      `json:"type"` // "new_message"
	ConversationID string      `json:"conversation_id"`
	Message        MessageBody `json:"message"`
}

// MessageBody is the message payload inside a broadcast event.
type MessageBody struct {
	Direction string `json:"direction"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ConversationEvent is broadcast when a finished call produces a new
// conversation with its transcript and summary.
type ConversationEvent struct {
	Type         string `json:"type"` // "new_conversation"
	Conversation any    `json:"conversation"`
}
