package devapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send heartbeats
	maxMessageSize = 4 * 1024

	sendBufferSize = 64

	// Heartbeat interval sent to subscribers, in milliseconds
	heartbeatInterval = 45000
)

// Client is one websocket subscription
type Client struct {
	ID     uuid.UUID
	UserID int64

	conn *websocket.Conn
	hub  *Hub
	send chan *protocol.Message

	// Closed by the hub when it shuts down
	quit chan struct{}

	// valid re-checks the subscription's token on every heartbeat
	valid func() bool

	logger zerolog.Logger
}

// NewClient creates a subscription for userID over conn
func NewClient(conn *websocket.Conn, hub *Hub, userID int64, valid func() bool, logger zerolog.Logger) *Client {
	id := uuid.New()
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		hub:    hub,
		send:   make(chan *protocol.Message, sendBufferSize),
		quit:   make(chan struct{}),
		valid:  valid,
		logger: logger.With().Str("conn", id.String()).Logger(),
	}
}

// SendHello queues the initial HELLO message
func (c *Client) SendHello() {
	msg, err := protocol.NewMessage(protocol.OpHello, &protocol.HelloPayload{HeartbeatInterval: heartbeatInterval})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to create hello message")
		return
	}
	c.send <- msg
}

// ReadPump reads heartbeats until the connection ends
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("failed to parse message")
			continue
		}

		if msg.Op != protocol.OpHeartbeat {
			c.logger.Debug().Int("op", int(msg.Op)).Msg("unknown opcode")
			continue
		}

		if c.valid != nil && !c.valid() {
			// WritePump closes the connection, which ends this loop
			c.reject()
			continue
		}

		ack, _ := protocol.NewMessage(protocol.OpHeartbeatAck, nil)
		select {
		case c.send <- ack:
		default:
		}
	}
}

// reject tells the subscriber its token is no longer accepted. A nil message
// after the notice makes WritePump close with CloseAuthFailed.
func (c *Client) reject() {
	msg, err := protocol.NewMessage(protocol.OpInvalidSession, &protocol.ErrorPayload{
		Code:    int(protocol.CloseAuthFailed),
		Message: "session expired",
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
	select {
	case c.send <- nil:
	default:
	}
}

// WritePump writes queued messages and keepalive pings to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(int(protocol.CloseGoingAway), ""))
				return
			}
			if msg == nil {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(int(protocol.CloseAuthFailed), "session expired"))
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("failed to write message")
				return
			}

		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(int(protocol.CloseGoingAway), "server shutting down"))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
