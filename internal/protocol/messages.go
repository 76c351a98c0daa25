package protocol

import (
	"encoding/json"
)

// OpCode represents the type of WebSocket message
type OpCode int

const (
	// Client -> Server operations
	OpHeartbeat OpCode = 1 // Keep-alive, carries the last sequence seen

	// Server -> Client operations
	OpDispatch       OpCode = 10 // Change notice
	OpHeartbeatAck   OpCode = 11 // Heartbeat acknowledgment
	OpHello          OpCode = 12 // Initial connection info
	OpInvalidSession OpCode = 14 // Token rejected; do not reconnect with it
)

// Topic names the collection a change notice is about. Clients do not read
// data from notices; they refresh the matching resources.
type Topic string

const (
	TopicFeed            Topic = "FEED"
	TopicPosts           Topic = "POSTS"
	TopicReplies         Topic = "REPLIES"
	TopicReflections     Topic = "REFLECTIONS"
	TopicCarets          Topic = "CARETS"
	TopicInbox           Topic = "INBOX"
	TopicRecommendations Topic = "RECOMMENDATIONS"
	TopicLeaderboard     Topic = "LEADERBOARD"
	TopicVerifications   Topic = "VERIFICATIONS"
)

// Message represents a WebSocket message envelope
type Message struct {
	Op    OpCode          `json:"op"`
	Data  json.RawMessage `json:"d,omitempty"`
	Seq   *int64          `json:"s,omitempty"` // Sequence number for dispatches
	Topic Topic           `json:"t,omitempty"` // Topic for dispatches
}

// NewMessage creates a new protocol message
func NewMessage(op OpCode, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Op:   op,
		Data: rawData,
	}, nil
}

// NewDispatch creates a change notice
func NewDispatch(topic Topic, seq int64, data any) (*Message, error) {
	msg, err := NewMessage(OpDispatch, data)
	if err != nil {
		return nil, err
	}
	msg.Seq = &seq
	msg.Topic = topic
	return msg, nil
}

// HelloPayload is sent on connection
type HelloPayload struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // Milliseconds
}

// HeartbeatPayload is sent to keep the connection alive
type HeartbeatPayload struct {
	LastSequence *int64 `json:"last_sequence"`
}

// ChangePayload identifies what changed and, for personal notices, whom it
// concerns
type ChangePayload struct {
	ID     int64 `json:"id,omitempty"`
	UserID int64 `json:"user_id,omitempty"`
}

// ErrorPayload describes why a session was rejected
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CloseCode represents WebSocket close codes
type CloseCode int

const (
	CloseNormal         CloseCode = 1000
	CloseGoingAway      CloseCode = 1001
	CloseAuthFailed     CloseCode = 4004
	CloseSessionTimeout CloseCode = 4009
)
