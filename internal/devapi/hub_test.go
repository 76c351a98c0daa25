package devapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recach/recach/internal/protocol"
)

func testClient(hub *Hub, userID int64) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		hub:    hub,
		send:   make(chan *protocol.Message, sendBufferSize),
		quit:   make(chan struct{}),
		logger: zerolog.Nop(),
	}
}

func receive(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHubRoutesNotices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	ada, grace := testClient(hub, 1), testClient(hub, 2)
	require.True(t, hub.Register(ada))
	require.True(t, hub.Register(grace))
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.SendToUser(1, protocol.TopicCarets, 7)
	msg := receive(t, ada)
	assert.Equal(t, protocol.OpDispatch, msg.Op)
	assert.Equal(t, protocol.TopicCarets, msg.Topic)
	require.NotNil(t, msg.Seq)

	var change protocol.ChangePayload
	require.NoError(t, json.Unmarshal(msg.Data, &change))
	assert.Equal(t, int64(7), change.ID)
	assert.Equal(t, int64(1), change.UserID)

	hub.Broadcast(protocol.TopicFeed, 3)
	first := receive(t, ada)
	second := receive(t, grace)
	assert.Equal(t, protocol.TopicFeed, second.Topic)
	require.NotNil(t, first.Seq)
	assert.Greater(t, *first.Seq, *msg.Seq)
	assert.Empty(t, grace.send)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	c := testClient(hub, 1)
	require.True(t, hub.Register(c))
	hub.Unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Zero(t, hub.ClientCount())

	// A second unregister is a no-op
	hub.Unregister(c)
}

func TestHubShutdownQuitsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	c := testClient(hub, 1)
	require.True(t, hub.Register(c))
	cancel()

	select {
	case <-c.quit:
	case <-time.After(time.Second):
		t.Fatal("client not told to quit")
	}
	assert.False(t, hub.Register(testClient(hub, 2)))
}
