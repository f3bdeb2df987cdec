// Package notify fans session notices out to websocket clients.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/DukeRupert/cropbatch/internal/metrics"
	"github.com/google/uuid"
)

// MessageTypeNotice is the type of every message the hub sends.
const MessageTypeNotice = "notice"

// Message is the JSON frame written to clients.
type Message struct {
	Type      string        `json:"type"`
	SessionID uuid.UUID     `json:"session_id"`
	Notice    domain.Notice `json:"notice"`
	Timestamp time.Time     `json:"timestamp"`
}

// Hub tracks the clients listening to each session and broadcasts notices to
// them. All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub. Call Run to start delivering.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is canceled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for sessionID, clients := range h.clients {
				for client := range clients {
					close(client.send)
					metrics.NoticeSubscribers.Dec()
				}
				delete(h.clients, sessionID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[*Client]bool)
			}
			h.clients[client.sessionID][client] = true
			h.mu.Unlock()
			metrics.NoticeSubscribers.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			payload, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("failed to marshal notice", "error", err)
				continue
			}

			h.mu.RLock()
			var slow []*Client
			for client := range h.clients[message.SessionID] {
				select {
				case client.send <- payload:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				h.logger.Warn("dropping slow notice client", "session_id", client.sessionID)
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.sessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	metrics.NoticeSubscribers.Dec()
	if len(clients) == 0 {
		delete(h.clients, client.sessionID)
	}
}

// Notify queues a notice for every client of the session. It never blocks;
// notices are dropped if the queue is full or the hub has stopped.
func (h *Hub) Notify(sessionID uuid.UUID, notice domain.Notice) {
	message := &Message{
		Type:      MessageTypeNotice,
		SessionID: sessionID,
		Notice:    notice,
		Timestamp: time.Now().UTC(),
	}

	select {
	case <-h.done:
	case h.broadcast <- message:
	default:
		h.logger.Warn("notice queue full, dropping notice",
			"session_id", sessionID,
			"message", notice.Message,
		)
	}
}

// ClientCount returns the number of clients listening to a session.
func (h *Hub) ClientCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}
