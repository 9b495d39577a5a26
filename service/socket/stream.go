package socket

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prydesocial/go-pryde/service/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	redialDelay       = 5 * time.Second
	seenEventTTL      = 30 * time.Second

	joinEvent      = "phx_join"
	heartbeatEvent = "heartbeat"
	ackEvent       = "phx_reply"
)

type wireMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     int64           `json:"ref,omitempty"`
}

// SeenSet deduplicates raw messages across concurrent streams. Keys are hashes of
// the raw payload and are evicted after a short TTL; we only need to suppress
// duplicates arriving near-simultaneously on parallel connections.
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewSeenSet() *SeenSet {
	return &SeenSet{seen: map[string]bool{}}
}

// Add records the message and returns false if it was already seen, true otherwise.
func (s *SeenSet) Add(message []byte) bool {
	hash := sha256.Sum256(message)
	key := string(hash[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false
	}
	s.seen[key] = true

	go func() {
		time.Sleep(seenEventTTL)
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.seen, key)
	}()

	return true
}

// Client is a reconnecting websocket transport for the comment event stream. It
// implements Transport: named-event listeners, one-shot connect hooks, and
// ref-correlated request/ack.
type Client struct {
	url   string
	topic string
	seen  *SeenSet

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	connectHooks []func()
	listeners    map[string]map[int]func([]byte)
	nextListener int
	pending      map[int64]chan []byte

	nextRef atomic.Int64

	numConnections atomic.Int32
}

// NewClient creates a stream client for the given websocket URL and topic. A nil
// seen set disables cross-stream dedup.
func NewClient(url, topic string, seen *SeenSet) *Client {
	return &Client{
		url:       url,
		topic:     topic,
		seen:      seen,
		listeners: map[string]map[int]func([]byte){},
		pending:   map[int64]chan []byte{},
	}
}

// Connected reports whether a live connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnConnect registers a one-shot hook for the next successful connect, invoking
// it immediately if already connected.
func (c *Client) OnConnect(hook func()) {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		hook()
		return
	}
	c.connectHooks = append(c.connectHooks, hook)
	c.mu.Unlock()
}

// Listen subscribes a handler to a named event. The returned func removes the
// handler and is safe to call more than once.
func (c *Client) Listen(event string, handler func(payload []byte)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listeners[event] == nil {
		c.listeners[event] = map[int]func([]byte){}
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[event][id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[event], id)
	}
}

// Request sends an event with a fresh ref and returns the channel its ack will be
// delivered on. The channel is closed without a payload if the connection drops
// before the ack arrives.
func (c *Client) Request(ctx context.Context, event string, data interface{}) (<-chan []byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	ref := c.nextRef.Add(1)
	ack := make(chan []byte, 1)

	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNoTransport
	}
	c.pending[ref] = ack
	conn := c.conn
	c.mu.Unlock()

	msg := wireMessage{Topic: c.topic, Event: event, Payload: payload, Ref: ref}
	if err := c.writeJSON(conn, msg); err != nil {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
		return nil, err
	}

	return ack, nil
}

// Run connects and streams events until the context is cancelled, reconnecting
// after errors the way the upstream push service expects.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn := c.dial(ctx)
		if conn == nil {
			return
		}

		c.stream(ctx, conn)
	}
}

func (c *Client) dial(ctx context.Context) *websocket.Conn {
	dialer := websocket.DefaultDialer

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, _, err := dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			logger.For(ctx).Errorf("error connecting to event stream: %s", err)
			time.Sleep(redialDelay)
			continue
		}

		join := wireMessage{Topic: c.topic, Event: joinEvent, Payload: json.RawMessage(`{}`), Ref: c.nextRef.Add(1)}
		if err := c.writeJSON(conn, join); err != nil {
			conn.Close()
			logger.For(ctx).Errorf("error subscribing to comment updates: %s", err)
			time.Sleep(redialDelay)
			continue
		}

		c.onConnect(conn)
		return conn
	}
}

func (c *Client) onConnect(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	hooks := c.connectHooks
	c.connectHooks = nil
	c.mu.Unlock()

	c.numConnections.Add(1)

	for _, hook := range hooks {
		hook()
	}
}

func (c *Client) onDisconnect(ctx context.Context) {
	c.mu.Lock()
	c.conn = nil
	c.connected = false
	pending := c.pending
	c.pending = map[int64]chan []byte{}
	c.mu.Unlock()

	for _, ack := range pending {
		close(ack)
	}

	if current := c.numConnections.Add(-1); current == 0 {
		logger.For(ctx).Errorf("no active stream connections. events will be missed until we reconnect...")
	}
}

func (c *Client) stream(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	logger.For(ctx).Infof("subscribed to comment events on topic %s", c.topic)

	errChan := make(chan error, 1)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				errChan <- err
				return
			}
			c.handleMessage(ctx, message)
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hb := wireMessage{Topic: "phoenix", Event: heartbeatEvent, Payload: json.RawMessage(`{}`), Ref: c.nextRef.Add(1)}
			if err := c.writeJSON(conn, hb); err != nil {
				logger.For(ctx).Errorf("error sending heartbeat: %s", err)
			}
		case err := <-errChan:
			c.onDisconnect(ctx)
			logger.For(ctx).Errorf("stream error: %s", err)
			logger.For(ctx).Info("reconnecting to event stream...")
			return
		case <-ctx.Done():
			c.onDisconnect(ctx)
			return
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, message []byte) {
	var msg wireMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.For(ctx).Errorf("unmarshaling error on stream message: %s", err)
		return
	}

	if msg.Event == ackEvent && msg.Ref != 0 {
		c.mu.Lock()
		ack, ok := c.pending[msg.Ref]
		delete(c.pending, msg.Ref)
		c.mu.Unlock()
		if ok {
			ack <- msg.Payload
		}
		return
	}

	if c.seen != nil && !c.seen.Add(message) {
		return
	}

	c.mu.Lock()
	handlers := make([]func([]byte), 0, len(c.listeners[msg.Event]))
	for _, h := range c.listeners[msg.Event] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg.Payload)
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, msg wireMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteJSON(msg)
}
