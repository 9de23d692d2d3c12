package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/humanwheel-leaderboard/internal/domain"
)

// Message types
const (
	MessageTypeLeaderboardUpdate = "leaderboard_update"
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
	Type      string      `json:"type"`
	Category  string      `json:"category,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// LeaderboardUpdate is the ranked list of one category
type LeaderboardUpdate struct {
	Category string                `json:"category"`
	Players  []domain.RankedPlayer `json:"players"`
}

// Loader reads the current ranking of a category, sent to new subscribers
type Loader func(ctx context.Context, category string) ([]domain.RankedPlayer, error)

// Hub tracks connected clients and their category subscriptions
type Hub struct {
	// subscribers by category
	clients map[string]map[*Client]bool

	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	loader Loader

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client   *Client
	category string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
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

// SetLoader sets the function used to greet new subscribers with the
// current ranking
func (h *Hub) SetLoader(loader Loader) {
	h.loader = loader
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.category]; !ok {
				h.clients[req.category] = make(map[*Client]bool)
			}
			h.clients[req.category][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "category", req.category)
			h.greet(req)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.category]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.category)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "category", req.category)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	for category, clients := range h.clients {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, category)
		}
	}
	close(client.send)
	h.logger.Debug("client unregistered", "client_id", client.id)
}

// greet sends the current ranking to a fresh subscriber. It runs on its own
// goroutine so a slow store never stalls the hub loop.
func (h *Hub) greet(req *subscriptionRequest) {
	if h.loader == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
		defer cancel()

		players, err := h.loader(ctx, req.category)
		if err != nil {
			h.logger.Warn("failed to load leaderboard for subscriber", "category", req.category, "error", err)
			return
		}
		h.BroadcastLeaderboard(req.category, players)
	}()
}

// broadcastMessage sends a message to the category's subscribers
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.clients[message.Category] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastLeaderboard queues a category's ranking for its subscribers.
// Nothing is queued when nobody is listening.
func (h *Hub) BroadcastLeaderboard(category string, players []domain.RankedPlayer) {
	if h.GetSubscriberCount(category) == 0 {
		return
	}
	if players == nil {
		players = []domain.RankedPlayer{}
	}

	message := &Message{
		Type:     MessageTypeLeaderboardUpdate,
		Category: category,
		Data: LeaderboardUpdate{
			Category: category,
			Players:  players,
		},
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "category", category)
	}
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

// Subscribe adds a client to a category's subscribers
func (h *Hub) Subscribe(client *Client, category string) {
	h.subscribe <- &subscriptionRequest{client: client, category: category}
}

// Unsubscribe removes a client from a category's subscribers
func (h *Hub) Unsubscribe(client *Client, category string) {
	h.unsubscribe <- &subscriptionRequest{client: client, category: category}
}

// GetSubscriberCount returns the number of subscribers for a category
func (h *Hub) GetSubscriberCount(category string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[category])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
