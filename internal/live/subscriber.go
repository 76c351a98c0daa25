package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/events"
	"github.com/recach/recach/internal/protocol"
)

// ErrInvalidSession is returned when the server rejects the token
var ErrInvalidSession = errors.New("live: session rejected")

var errKicked = errors.New("live: token changed")

const (
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 64 * 1024
)

// Options configures a Subscriber
type Options struct {
	BaseURL string
	Tokens  *auth.Store
	Bus     *events.Bus
	Backoff *Backoff
	Dialer  *websocket.Dialer
	Clock   clock.Clock
	Logger  zerolog.Logger
}

// Subscriber keeps a websocket subscription to server change notices open
// while a user is signed in. Every notice publishes events.RemoteUpdate;
// caret notices also publish events.CaretUpdated.
type Subscriber struct {
	endpoint *url.URL
	tokens   *auth.Store
	bus      *events.Bus
	backoff  *Backoff
	dialer   *websocket.Dialer
	clock    clock.Clock
	logger   zerolog.Logger

	mu        sync.RWMutex
	connected bool
	lastSeq   int64
}

// New creates a subscriber for the API at baseURL
func New(opts Options) (*Subscriber, error) {
	endpoint, err := wsURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	s := &Subscriber{
		endpoint: endpoint,
		tokens:   opts.Tokens,
		bus:      opts.Bus,
		backoff:  opts.Backoff,
		dialer:   opts.Dialer,
		clock:    opts.Clock,
		logger:   opts.Logger.With().Str("component", "live").Logger(),
	}
	if s.backoff == nil {
		s.backoff = DefaultBackoff()
	}
	if s.dialer == nil {
		s.dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		}
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	return s, nil
}

// wsURL maps the API base to its websocket endpoint
func wsURL(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid server address %q", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u, nil
}

// Connected reports whether a subscription is open
func (s *Subscriber) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastSequence returns the last notice sequence received
func (s *Subscriber) LastSequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// Run holds the subscription until ctx ends. It waits while signed out,
// reconnects with backoff after failures, and starts over with the new
// token whenever events.AuthChanged fires. A rejected token is not retried
// until the token changes.
func (s *Subscriber) Run(ctx context.Context) error {
	kick := make(chan struct{}, 1)
	unsub := s.bus.Subscribe(events.AuthChanged, func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer unsub()

	attempt := 0
	for {
		token := s.tokens.Get(ctx, auth.User)
		if token == "" {
			if err := s.waitKick(ctx, kick); err != nil {
				return err
			}
			attempt = 0
			continue
		}

		connected, err := s.session(ctx, token, kick)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempt = 0
		}

		switch {
		case errors.Is(err, errKicked):
			attempt = 0
			continue
		case errors.Is(err, ErrInvalidSession):
			s.logger.Warn().Msg("subscription rejected, waiting for a new token")
			if err := s.waitKick(ctx, kick); err != nil {
				return err
			}
			attempt = 0
			continue
		}

		if !s.backoff.ShouldRetry(attempt) {
			return fmt.Errorf("live: giving up after %d attempts: %w", attempt, err)
		}
		s.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("reconnecting")
		woken, err := s.backoff.Sleep(ctx, s.clock, attempt, kick)
		if err != nil {
			return err
		}
		attempt++
		if woken {
			attempt = 0
		}
	}
}

func (s *Subscriber) waitKick(ctx context.Context, kick <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-kick:
		return nil
	}
}

// session runs one connection until it fails, ctx ends or the token changes
func (s *Subscriber) session(ctx context.Context, token string, kick <-chan struct{}) (bool, error) {
	u := *s.endpoint
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrInvalidSession
		}
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	s.setConnected(true)
	defer s.setConnected(false)
	s.logger.Info().Str("endpoint", s.endpoint.String()).Msg("subscribed to live updates")

	hello := make(chan time.Duration, 1)
	readErr := make(chan error, 1)
	go func() { readErr <- s.readPump(conn, hello) }()

	ping := s.clock.Ticker(pingInterval)
	defer ping.Stop()
	var heartbeat *clock.Ticker
	var beats <-chan time.Time
	defer func() {
		if heartbeat != nil {
			heartbeat.Stop()
		}
	}()

	closeWith := func(code protocol.CloseCode) {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(int(code), ""))
	}

	for {
		select {
		case <-ctx.Done():
			closeWith(protocol.CloseNormal)
			return true, ctx.Err()

		case <-kick:
			closeWith(protocol.CloseNormal)
			return true, errKicked

		case err := <-readErr:
			return true, err

		case interval := <-hello:
			if heartbeat != nil {
				heartbeat.Stop()
			}
			heartbeat = s.clock.Ticker(interval)
			beats = heartbeat.C

		case <-beats:
			seq := s.LastSequence()
			msg, err := protocol.NewMessage(protocol.OpHeartbeat, &protocol.HeartbeatPayload{LastSequence: &seq})
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return true, fmt.Errorf("failed to send heartbeat: %w", err)
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return true, fmt.Errorf("failed to ping: %w", err)
			}
		}
	}
}

// readPump reads notices until the connection fails
func (s *Subscriber) readPump(conn *websocket.Conn, hello chan<- time.Duration) error {
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == int(protocol.CloseAuthFailed) {
				return ErrInvalidSession
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("failed to parse message")
			continue
		}

		switch msg.Op {
		case protocol.OpHello:
			var payload protocol.HelloPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.HeartbeatInterval <= 0 {
				continue
			}
			select {
			case hello <- time.Duration(payload.HeartbeatInterval) * time.Millisecond:
			default:
			}

		case protocol.OpInvalidSession:
			return ErrInvalidSession

		case protocol.OpDispatch:
			s.dispatch(&msg)
		}
	}
}

func (s *Subscriber) dispatch(msg *protocol.Message) {
	if msg.Seq != nil {
		s.mu.Lock()
		s.lastSeq = *msg.Seq
		s.mu.Unlock()
	}

	s.logger.Debug().Str("topic", string(msg.Topic)).Msg("change notice")
	s.bus.Publish(events.RemoteUpdate)
	if msg.Topic == protocol.TopicCarets {
		s.bus.Publish(events.CaretUpdated)
	}
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
}
