package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/snake-arena/internal/domain"
)

// Message types
const (
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeNewBest           = "new_best"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypeSubscribed        = "subscribed"
	MessageTypeUnsubscribed      = "unsubscribed"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string          `json:"type"`
	Mode      domain.GameMode `json:"mode,omitempty"`
	Data      any             `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// LeaderboardUpdate is a top-N snapshot of one mode
type LeaderboardUpdate struct {
	Mode    domain.GameMode      `json:"mode"`
	Entries []domain.RankedEntry `json:"entries"`
}

// NewBest announces an accepted personal best
type NewBest struct {
	Username string          `json:"username"`
	Mode     domain.GameMode `json:"mode"`
	Score    int64           `json:"score"`
	Rank     int64           `json:"rank"`
	Date     string          `json:"date"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Subscribed clients by game mode
	clients map[domain.GameMode]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	mode   domain.GameMode
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[domain.GameMode]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for mode, clients := range h.clients {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.clients, mode)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.mode]; !ok {
				h.clients[req.mode] = make(map[*Client]bool)
			}
			h.clients[req.mode][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "mode", req.mode)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.mode]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.mode)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "mode", req.mode)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the mode's subscribers, or to every
// client when the message has no mode
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.Mode != "" {
		targets = h.clients[message.Mode]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastLeaderboard sends a top-N snapshot to the mode's subscribers
func (h *Hub) BroadcastLeaderboard(mode domain.GameMode, records []domain.ScoreRecord) {
	h.enqueue(&Message{
		Type: MessageTypeLeaderboardUpdate,
		Mode: mode,
		Data: LeaderboardUpdate{
			Mode:    mode,
			Entries: domain.RankRecords(records),
		},
		Timestamp: time.Now(),
	})
}

// NotifyScoreAccepted pushes a new_best message to the record's mode
func (h *Hub) NotifyScoreAccepted(record domain.ScoreRecord, rank int64) {
	h.enqueue(&Message{
		Type: MessageTypeNewBest,
		Mode: record.Mode,
		Data: NewBest{
			Username: record.Username,
			Mode:     record.Mode,
			Score:    record.Score,
			Rank:     rank,
			Date:     record.Date.Format(domain.DateLayout),
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a mode subscription
func (h *Hub) Subscribe(client *Client, mode domain.GameMode) {
	h.subscribe <- &subscriptionRequest{client: client, mode: mode}
}

// Unsubscribe removes a client from a mode subscription
func (h *Hub) Unsubscribe(client *Client, mode domain.GameMode) {
	h.unsubscribe <- &subscriptionRequest{client: client, mode: mode}
}

// GetSubscriberCount returns the number of subscribers for a mode
func (h *Hub) GetSubscriberCount(mode domain.GameMode) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[mode])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// Stats returns connection and per-mode subscription counts
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make(map[string]int, len(h.clients))
	for mode, clients := range h.clients {
		subs[string(mode)] = len(clients)
	}
	return map[string]any{
		"total_connections": len(h.allClients),
		"subscriptions":     subs,
	}
}
