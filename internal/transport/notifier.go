package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPath            = "/ws"
	typeHistoryChange = "history_changed"
	typeAck           = "ack"

	minReconnectDelay = time.Second
	maxReconnectDelay = time.Minute
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChangeListener keeps a websocket open to the history service and calls
// onChange for every history_changed message. It reconnects with exponential
// backoff until its context ends.
type ChangeListener struct {
	url      string
	token    string
	dialer   *websocket.Dialer
	onChange func()

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewChangeListener(baseURL, token, deviceID string, onChange func()) (*ChangeListener, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + wsPath)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	u.RawQuery = q.Encode()

	return &ChangeListener{
		url:      u.String(),
		token:    token,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onChange: onChange,
	}, nil
}

func (l *ChangeListener) Run(ctx context.Context) error {
	delay := minReconnectDelay
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = minReconnectDelay
		}
		log.Printf("[Notify] connection lost: %v; retrying in %v", err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// listen runs one connection. connected reports whether the handshake
// succeeded.
func (l *ChangeListener) listen(ctx context.Context) (connected bool, err error) {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}

	conn, _, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[Notify] ignoring malformed message: %v", err)
			continue
		}
		if msg.Type == typeHistoryChange && l.onChange != nil {
			l.onChange()
		}
	}
}

// Ack tells the server this device has pulled up to serverSince, so older
// changes are not announced to it again. Without a live connection it does
// nothing.
func (l *ChangeListener) Ack(serverSince int64) error {
	payload, err := json.Marshal(map[string]int64{"server_since": serverSince})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	l.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return l.conn.WriteJSON(wsMessage{Type: typeAck, Payload: payload})
}
