package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks the live connections of every user and fans history change
// notifications out to them.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	done           chan struct{}
}

func NewManager(maxConnPerUser int, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		maxConnPerUser: maxConnPerUser,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		done:           make(chan struct{}),
	}
}

// Run serves registrations and inbound messages until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			close(m.done)
			return

		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		log.Printf("[WS] max connections reached for user %s", client.UserID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true

	log.Printf("[WS] client registered: %s (user: %s, device: %s)", client.ID, client.UserID, client.DeviceID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.userIndex[client.UserID], client.ID)

		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}

		close(client.Send)
		log.Printf("[WS] client unregistered: %s", client.ID)
	}
}

// unregister hands client to Run, or gives up once Run has exited.
func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("[WS] error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case TypePing:
		pong, _ := NewMessage(TypePong, nil)
		m.SendToClient(clientMsg.Client.ID, pong)
	case TypeAck:
		var ack AckPayload
		if err := msg.UnmarshalPayload(&ack); err != nil {
			log.Printf("[WS] bad ack from %s: %v", clientMsg.Client.ID, err)
			return
		}
		clientMsg.Client.ack(ack.ServerSince)
	default:
		log.Printf("[WS] ignoring message type %q from %s", msg.Type, clientMsg.Client.ID)
	}
}

// broadcast queues message on every connection of userID that include
// accepts. Connections with a full buffer are dropped.
func (m *Manager) broadcast(userID string, message *Message, include func(*Client) bool) error {
	frame, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var stale []*Client

	m.clientsMutex.RLock()
	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		if client == nil || !include(client) {
			continue
		}
		if !client.deliver(frame) {
			log.Printf("[WS] client %s send buffer full, closing connection", clientID)
			stale = append(stale, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range stale {
		go m.unregister(client)
	}
	return nil
}

// NotifyHistoryChanged tells the user's other devices that the history moved
// to serverSince. Devices that already acknowledged that far are skipped.
func (m *Manager) NotifyHistoryChanged(userID, originDeviceID string, serverSince int64, recordIDs []string) {
	msg, err := NewMessage(TypeHistoryChanged, &HistoryChangedPayload{
		ServerSince: serverSince,
		RecordIDs:   recordIDs,
		DeviceID:    originDeviceID,
	})
	if err != nil {
		log.Printf("[WS] failed to build history_changed: %v", err)
		return
	}
	err = m.broadcast(userID, msg, func(c *Client) bool {
		return c.DeviceID != originDeviceID && c.wants(serverSince)
	})
	if err != nil {
		log.Printf("[WS] failed to broadcast history_changed: %v", err)
	}
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	frame, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if !client.deliver(frame) {
		log.Printf("[WS] client %s send buffer full", clientID)
	}
	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.userIndex[userID]; exists {
		return len(clients)
	}
	return 0
}
