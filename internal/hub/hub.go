package hub

import (
	"encoding/json"
	"sync"

	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/pkg/log"
)

// Hub owns the live client registry and per-conversation channel
// subscriptions. Fan-out is best-effort: a client whose send buffer is
// full is dropped rather than blocking the broadcaster.
type Hub struct {
	clients    map[string]*Client            // sessionID -> client
	channels   map[string]map[string]*Client // channel -> sessionID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *channelMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type channelMessage struct {
	Channel string
	Message []byte
	Exclude string // session ID to exclude
	Global  bool   // deliver to every connected client
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *channelMessage, 256),
		config:     cfg,
	}
}

// Run processes register/unregister/broadcast events until the process
// exits. Start it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldSessionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for name, subs := range h.channels {
					delete(subs, client.ID)
					if len(subs) == 0 {
						delete(h.channels, name)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldSessionID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if msg.Global {
				for id, client := range h.clients {
					if id == msg.Exclude {
						continue
					}
					h.push(client, msg.Message)
				}
			} else if subs, ok := h.channels[msg.Channel]; ok {
				for id, client := range subs {
					if id == msg.Exclude {
						continue
					}
					h.push(client, msg.Message)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		// Slow consumer: evict instead of blocking fan-out.
		go h.removeClient(client)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a channel.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[string]*Client)
	}
	h.channels[channel][client.ID] = client
	l := log.L()
	l.Info().Str(log.FieldSessionID, client.ID).Str(log.FieldChannel, channel).Msg("client subscribed")
}

// Unsubscribe removes a client from a channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.channels[channel]; ok {
		delete(subs, client.ID)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	l := log.L()
	l.Info().Str(log.FieldSessionID, client.ID).Str(log.FieldChannel, channel).Msg("client unsubscribed")
}

// BroadcastToChannel sends a JSON-encoded message to all subscribers of
// a channel, optionally excluding one session.
func (h *Hub) BroadcastToChannel(channel string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &channelMessage{
		Channel: channel,
		Message: data,
		Exclude: exclude,
	}
	return nil
}

// BroadcastGlobal sends a JSON-encoded message to every connected client.
func (h *Hub) BroadcastGlobal(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &channelMessage{
		Message: data,
		Global:  true,
	}
	return nil
}

// CloseSession closes the connection of the client registered under the
// given session id, if any. Closing the socket makes the client's read
// pump exit, which unregisters it and drops every subscription, so a
// session evicted by the gateway stops receiving fan-out.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if client.Conn != nil {
		client.Conn.Close()
		return
	}
	h.removeClient(client)
}

// ChannelSubscriberCount returns the number of subscribers on a channel.
func (h *Hub) ChannelSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if subs, ok := h.channels[channel]; ok {
		return len(subs)
	}
	return 0
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
