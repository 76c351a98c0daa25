package devapi

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/protocol"
)

// Hub maintains the set of active subscribers and fans change notices out to
// them
type Hub struct {
	// Registered clients by connection ID
	clients map[uuid.UUID]*Client

	// Connections per user, for personal notices
	userClients map[int64]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *notice

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	// Sequence number for dispatch messages
	sequence int64
	seqMu    sync.Mutex

	logger zerolog.Logger
}

// notice is a change notice for everyone, or for one user when userID is set
type notice struct {
	userID  int64
	message *protocol.Message
}

// NewHub creates a new Hub instance
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[int64]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *notice, 256),
		done:        make(chan struct{}),
		logger:      logger.With().Str("component", "hub").Logger(),
	}
}

// Run is the hub's main loop; it returns when ctx ends, closing every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case n := <-h.broadcast:
			h.deliver(n)
		}
	}
}

// Register adds a client; it reports false once the hub has stopped
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if h.userClients[client.UserID] == nil {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client

	h.logger.Debug().Str("conn", client.ID.String()).Int64("user_id", client.UserID).Msg("client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	delete(h.clients, client.ID)
	if conns := h.userClients[client.UserID]; conns != nil {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.userClients, client.UserID)
		}
	}

	// Close the client's send channel
	close(client.send)

	h.logger.Debug().Str("conn", client.ID.String()).Msg("client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Senders may still be running, so send channels stay open
	for id, client := range h.clients {
		close(client.quit)
		delete(h.clients, id)
	}
	clear(h.userClients)
}

// deliver sends a notice to its targets without blocking on slow clients
func (h *Hub) deliver(n *notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[uuid.UUID]*Client
	if n.userID > 0 {
		targets = h.userClients[n.userID]
	} else {
		targets = h.clients
	}

	for _, client := range targets {
		select {
		case client.send <- n.message:
		default:
			// Client's buffer is full, skip
			h.logger.Warn().Str("conn", client.ID.String()).Msg("client buffer full, dropping notice")
		}
	}
}

// NextSequence returns the next sequence number for dispatch messages
func (h *Hub) NextSequence() int64 {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	h.sequence++
	return h.sequence
}

// Broadcast tells every subscriber that topic changed
func (h *Hub) Broadcast(topic protocol.Topic, id int64) {
	h.publish(topic, 0, id)
}

// SendToUser tells one user's subscriptions that topic changed
func (h *Hub) SendToUser(userID int64, topic protocol.Topic, id int64) {
	h.publish(topic, userID, id)
}

func (h *Hub) publish(topic protocol.Topic, userID, id int64) {
	msg, err := protocol.NewDispatch(topic, h.NextSequence(), &protocol.ChangePayload{ID: id, UserID: userID})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build notice")
		return
	}

	select {
	case h.broadcast <- &notice{userID: userID, message: msg}:
	default:
		h.logger.Warn().Str("topic", string(topic)).Msg("hub backlog full, dropping notice")
	}
}

// ClientCount returns the number of open subscriptions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
