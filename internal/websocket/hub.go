// Package websocket fans listing events out to connected browsers.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thereayou/sellboard/internal/models"
)

// EventType определяет типы событий ленты
type EventType string

const (
	TypePing        EventType = "ping"
	TypeSellCreated EventType = "sell_created"
	TypeSellDeleted EventType = "sell_deleted"

	hubPingPeriod = 30 * time.Second
	broadcastSize = 64
)

type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type SellPayload struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Price      float64   `json:"price"`
	Author     string    `json:"author"`
	Picture    string    `json:"picture"`
	DatePosted time.Time `json:"date_posted"`
}

type SellDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

type Hub struct {
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu  sync.RWMutex
	log logrus.FieldLogger

	// закрывается, когда Run завершился
	stopped chan struct{}
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastSize),
		log:        log,
		stopped:    make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		h.closeAll()
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			if data, err := encode(TypePing, nil); err == nil {
				h.broadcastMessage(data)
			}
		}
	}
}

// Register blocks until the hub accepts the client or stops.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Publish queues an event without waiting for delivery.
func (h *Hub) Publish(t EventType, payload interface{}) error {
	data, err := encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return ErrHubBusy
	}
}

func (h *Hub) SellCreated(sell *models.Sell) error {
	return h.Publish(TypeSellCreated, SellPayload{
		ID:         sell.ID,
		Title:      sell.Title,
		Price:      sell.Price,
		Author:     sell.Author.Username,
		Picture:    sell.PictureFile,
		DatePosted: sell.DatePosted,
	})
}

func (h *Hub) SellDeleted(id uuid.UUID) error {
	return h.Publish(TypeSellDeleted, SellDeletedPayload{ID: id})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.log.WithField("client", client.ID).Debug("feed client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropUnsafe(client)
}

func (h *Hub) dropUnsafe(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	h.log.WithField("client", client.ID).Debug("feed client unregistered")
}

// broadcastMessage drops clients whose queue is full.
func (h *Hub) broadcastMessage(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		if err := client.offer(message); err != nil {
			h.log.WithError(err).WithField("client", client.ID).Warn("dropping slow feed client")
			h.dropUnsafe(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		h.dropUnsafe(client)
	}
}

func encode(t EventType, payload interface{}) ([]byte, error) {
	ev := Event{Type: t, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		ev.Data = data
	}
	return json.Marshal(ev)
}
