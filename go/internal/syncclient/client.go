// Package syncclient keeps a local auction store in step with the relay.
// Local changes are pushed as whole snapshots and snapshots from the
// relay replace local state.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/internal/auction"
	"github.com/mcdev12/vanguard/go/internal/models"
	"github.com/mcdev12/vanguard/go/internal/relay"
)

// Store is the part of auction.Store the client drives.
type Store interface {
	Subscribe(fn func(auction.Change)) func()
	RestoreState(ctx context.Context, st *models.AuctionState, origin auction.Origin) (*models.AuctionState, error)
}

type Config struct {
	URL      string
	Room     string
	ClientID string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
}

func DefaultConfig(rawURL, room, clientID string) Config {
	return Config{
		URL:              rawURL,
		Room:             room,
		ClientID:         clientID,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      90 * time.Second,
		MinBackoff:       200 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
	}
}

// Client is one agent's connection to the relay.
type Client struct {
	cfg   Config
	store Store
	clock clockwork.Clock

	connected atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	// pending holds at most the newest outgoing snapshot.
	pending chan []byte

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(cfg Config, store Store, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Room == "" {
		cfg.Room = relay.DefaultRoom
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	return &Client{
		cfg:     cfg,
		store:   store,
		clock:   clock,
		pending: make(chan []byte, 1),
		done:    make(chan struct{}),
	}
}

// Connected reports whether the relay link is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Start runs the client in the background until Close or ctx ends.
func (c *Client) Start(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx, endpoint)
	})
	return nil
}

// Close stops the client and waits for the connection to shut down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel == nil {
			close(c.done)
			return
		}
		c.cancel()
		c.disconnect()
		<-c.done
	})
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid relay url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid relay url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("room", c.cfg.Room)
	if c.cfg.ClientID != "" {
		q.Set("client_id", c.cfg.ClientID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) run(ctx context.Context, endpoint string) {
	defer close(c.done)

	unsubscribe := c.store.Subscribe(c.onChange)
	defer unsubscribe()

	backoff := c.cfg.MinBackoff
	for {
		err := c.connectAndReadLoop(ctx, endpoint, func() { backoff = c.cfg.MinBackoff })
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Str("url", c.cfg.URL).Msg("relay connection lost")

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

func (c *Client) connectAndReadLoop(ctx context.Context, endpoint string, onConnect func()) error {
	d := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, endpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	// Anything queued while offline is stale; the relay snapshot wins.
	c.drainPending()

	if err := c.write(conn, relay.MessageRequestSync, nil); err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	onConnect()
	log.Info().Str("url", c.cfg.URL).Str("room", c.cfg.Room).Msg("connected to relay")

	stopWriter := make(chan struct{})
	go c.writeLoop(ctx, conn, stopWriter)
	defer func() {
		close(stopWriter)
		c.connected.Store(false)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := relay.Decode(msg)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring malformed relay message")
			continue
		}
		if env.Type == relay.MessageSyncState {
			c.applySnapshot(ctx, env.Payload)
		}
	}
}

func (c *Client) applySnapshot(ctx context.Context, payload json.RawMessage) {
	var st models.AuctionState
	if err := json.Unmarshal(payload, &st); err != nil {
		log.Warn().Err(err).Msg("ignoring undecodable relay snapshot")
		return
	}
	if _, err := c.store.RestoreState(ctx, &st, auction.OriginRemote); err != nil {
		log.Warn().Err(err).Msg("ignoring invalid relay snapshot")
		return
	}
	log.Debug().Time("updated_at", st.UpdatedAt).Msg("applied relay snapshot")
}

// onChange forwards local changes only. Peer and remote changes were
// already sent by whoever made them.
func (c *Client) onChange(change auction.Change) {
	if change.Origin != auction.OriginLocal {
		return
	}
	if !c.Connected() {
		log.Debug().Msg("relay offline, local change not sent")
		return
	}
	payload, err := json.Marshal(change.State)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode state for relay")
		return
	}
	c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) {
	for {
		select {
		case c.pending <- payload:
			return
		default:
		}
		// Replace the older snapshot.
		select {
		case <-c.pending:
		default:
		}
	}
}

func (c *Client) drainPending() {
	select {
	case <-c.pending:
	default:
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case payload := <-c.pending:
			if err := c.write(conn, relay.MessageUpdateState, payload); err != nil {
				log.Warn().Err(err).Msg("failed to send state to relay")
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, t relay.MessageType, payload json.RawMessage) error {
	frame, err := relay.Encode(t, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	return nil
}

func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
