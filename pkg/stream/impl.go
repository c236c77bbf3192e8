// Package stream delivers live feed price updates over WebSocket, pushing
// what the REST oracle client would otherwise have to poll for.
package stream

import (
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
)

// PriceUpdate is one pushed feed reading.
type PriceUpdate struct {
	Pair      string
	FeedID    oracle.FeedID
	Price     decimal.Decimal
	Timestamp time.Time
}

// Client streams feed updates.
type Client interface {
	// SubscribePrices streams updates for the given pairs. The returned
	// cancel function releases the subscription.
	SubscribePrices(pairs ...string) (<-chan PriceUpdate, func(), error)
	// Close tears the connection down and closes all subscriptions.
	Close() error
}

type subscription struct {
	id    uint64
	feeds map[oracle.FeedID]bool
	ch    chan PriceUpdate
}

type clientImpl struct {
	url string
	cfg ClientConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[uint64]*subscription
	nextID  uint64
	done    chan struct{}
	closing sync.Once
}

// NewClient creates a stream client and starts its read loop.
func NewClient(rawURL string, cfg ClientConfig) (Client, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	c := &clientImpl{
		url:  rawURL,
		cfg:  cfg.normalize(),
		subs: make(map[uint64]*subscription),
		done: make(chan struct{}),
	}
	go c.run()
	go c.pingLoop()
	return c, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return errors.New("stream URL must use ws:// or wss://")
	}
	if parsed.Host == "" {
		return errors.New("stream URL host is required")
	}
	return nil
}

func (c *clientImpl) SubscribePrices(pairs ...string) (<-chan PriceUpdate, func(), error) {
	if len(pairs) == 0 {
		return nil, nil, errors.New("at least one pair is required")
	}
	feeds := make(map[oracle.FeedID]bool, len(pairs))
	ids := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		id, err := oracle.FeedIDForPair(oracle.CategoryCrypto, pair)
		if err != nil {
			return nil, nil, err
		}
		feeds[id] = true
		ids = append(ids, id.Hex())
	}

	c.mu.Lock()
	c.nextID++
	sub := &subscription{
		id:    c.nextID,
		feeds: feeds,
		ch:    make(chan PriceUpdate, c.cfg.Buffer),
	}
	c.subs[sub.id] = sub
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = c.sendSubscribe(conn, ids)
	}

	cancel := func() {
		c.mu.Lock()
		if s, ok := c.subs[sub.id]; ok {
			delete(c.subs, sub.id)
			close(s.ch)
		}
		c.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

func (c *clientImpl) Close() error {
	c.closing.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		for id, sub := range c.subs {
			delete(c.subs, id)
			close(sub.ch)
		}
		c.mu.Unlock()
	})
	return nil
}

type subscribeMessage struct {
	Action  string   `json:"action"`
	FeedIDs []string `json:"feed_ids"`
}

type updateMessage struct {
	ID        string `json:"id"`
	Value     int64  `json:"value"`
	Decimals  int32  `json:"decimals"`
	Timestamp int64  `json:"timestamp"`
}

func (c *clientImpl) sendSubscribe(conn *websocket.Conn, feedIDs []string) error {
	return conn.WriteJSON(subscribeMessage{Action: "subscribe", FeedIDs: feedIDs})
}

// run owns the connection lifecycle: dial, resubscribe, read until error,
// reconnect up to the configured bound.
func (c *clientImpl) run() {
	attempt := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			if !c.shouldReconnect(attempt) {
				return
			}
			attempt++
			c.sleep()
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		ids := c.activeFeedIDs()
		c.mu.Unlock()
		if len(ids) > 0 {
			_ = c.sendSubscribe(conn, ids)
		}

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		if !c.shouldReconnect(attempt) {
			return
		}
		attempt++
		c.sleep()
	}
}

func (c *clientImpl) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg updateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		c.dispatch(msg)
	}
}

func (c *clientImpl) dispatch(msg updateMessage) {
	id, err := oracle.ParseFeedID(msg.ID)
	if err != nil {
		return
	}
	update := PriceUpdate{
		Pair:      id.Pair(),
		FeedID:    id,
		Price:     decimal.New(msg.Value, -msg.Decimals),
		Timestamp: time.Unix(msg.Timestamp, 0),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if !sub.feeds[id] {
			continue
		}
		select {
		case sub.ch <- update:
		default:
			// Slow consumer: drop rather than stall the read loop.
		}
	}
}

func (c *clientImpl) activeFeedIDs() []string {
	seen := map[oracle.FeedID]bool{}
	var ids []string
	for _, sub := range c.subs {
		for id := range sub.feeds {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id.Hex())
			}
		}
	}
	return ids
}

func (c *clientImpl) shouldReconnect(attempt int) bool {
	if !c.cfg.Reconnect {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	return attempt < c.cfg.ReconnectMax
}

func (c *clientImpl) sleep() {
	select {
	case <-time.After(c.cfg.ReconnectDelay):
	case <-c.done:
	}
}

func (c *clientImpl) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(c.cfg.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
			}
		}
	}
}
