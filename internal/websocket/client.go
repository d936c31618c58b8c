package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Браузер ленты шлёт только управляющие кадры
	maxMessageSize = 512
	sendQueueSize  = 32
)

// Client is one browser watching the feed.
type Client struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New(),
		Conn: conn,
		Send: make(chan []byte, sendQueueSize),
		Hub:  hub,
	}
}

// offer queues message without blocking.
func (c *Client) offer(message []byte) error {
	select {
	case c.Send <- message:
		return nil
	default:
		return ErrClientQueueFull
	}
}

// Serve attaches conn to the feed and returns once both pumps are started.
// The connection is closed when the hub refuses it.
func (h *Hub) Serve(conn *websocket.Conn) error {
	client := NewClient(h, conn)
	if err := h.Register(client); err != nil {
		conn.Close()
		return err
	}
	go client.WritePump()
	go client.ReadPump()
	return nil
}

// ReadPump discards whatever the browser sends and keeps the pong deadline
// moving. It unregisters the client when the socket goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	extend := func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.Conn.SetReadLimit(maxMessageSize)
	_ = extend("")
	c.Conn.SetPongHandler(extend)

	for {
		_, _, err := c.Conn.NextReader()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			c.Hub.log.WithError(err).WithField("client", c.ID).Debug("feed socket closed")
		}
		return
	}
}

// WritePump drains Send and pings on a timer. A closed Send means the hub
// dropped the client.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		var err error
		select {
		case event, ok := <-c.Send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			err = c.write(websocket.TextMessage, event)
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteMessage(kind, payload)
}
