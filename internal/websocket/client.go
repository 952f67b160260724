package websocket

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxFrameSize = 16 * 1024
	sendBuffer   = 64
)

// Client is one device's notification channel. acked is the highest
// server_since the device reported as pulled.
type Client struct {
	ID       string
	UserID   string
	DeviceID string
	Conn     *websocket.Conn
	Manager  *Manager
	Send     chan []byte

	acked atomic.Int64
}

func NewClient(id, userID, deviceID string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		DeviceID: deviceID,
		Conn:     conn,
		Manager:  manager,
		Send:     make(chan []byte, sendBuffer),
	}
}

func (c *Client) Acked() int64 {
	return c.acked.Load()
}

// ack raises the acknowledged position. Older acks are ignored.
func (c *Client) ack(serverSince int64) {
	for {
		cur := c.acked.Load()
		if serverSince <= cur || c.acked.CompareAndSwap(cur, serverSince) {
			return
		}
	}
}

// wants reports whether a change at serverSince is news to this device.
func (c *Client) wants(serverSince int64) bool {
	return serverSince > c.acked.Load()
}

// deliver queues frame without blocking and reports whether it fit.
func (c *Client) deliver(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// ReadPump forwards the device's text frames to the manager until the
// connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
	})

	for {
		kind, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] device %s dropped: %v", c.DeviceID, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		select {
		case c.Manager.HandleMessage <- &ClientMessage{Client: c, Message: frame}:
		case <-c.Manager.done:
			return
		}
	}
}

// WritePump drains Send and keeps the connection alive with pings. A closed
// Send ends the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Manager.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
