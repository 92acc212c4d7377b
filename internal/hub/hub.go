// Package hub fans live events out to stream subscribers.
//
// Every broadcast runs inside a store transaction, so the order in which
// events reach a subscriber's queue is the order in which their mutations
// were applied. Each subscriber owns a bounded queue drained by a dedicated
// writer goroutine; a slow or broken connection is deregistered without
// delaying anyone else.
package hub

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/store"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
	streamlog "decharge/gateway/logging/stream"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second

	// DefaultBuffer is the per-subscriber queue length.
	DefaultBuffer = 256
)

// Drop reasons reported to metrics and logs.
const (
	ReasonClosed   = "closed"
	ReasonSlow     = "slow"
	ReasonWrite    = "write_failed"
	ReasonShutdown = "shutdown"
)

// Conn is the subset of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Mirror receives a copy of every encoded broadcast. It must not block.
type Mirror interface {
	Mirror(eventType proto.Type, frame []byte)
}

// Config tunes a hub. Zero values select the package defaults.
type Config struct {
	Buffer       int
	WriteWait    time.Duration
	PingInterval time.Duration
	Logger       telemetry.Logger
	Publisher    logging.Publisher
	Metrics      *telemetry.Metrics
	Mirror       Mirror
}

// Options modify a single broadcast.
type Options struct {
	// Transient events are delivered but not kept in the recent-event buffer.
	Transient bool
}

// Hub fans encoded events out to websocket subscribers. Each subscriber has
// its own queue and writer goroutine, so a slow one never delays the rest.
type Hub struct {
	store *store.Store
	cfg   Config

	mu          sync.Mutex
	subscribers map[string]*subscriber
	closed      bool

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New constructs a hub broadcasting on behalf of s.
func New(s *store.Store, cfg Config) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = writeWait
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = pingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Discard()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return &Hub{
		store:       s,
		cfg:         cfg,
		subscribers: make(map[string]*subscriber),
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// Store returns the store the hub broadcasts for.
func (h *Hub) Store() *store.Store { return h.store }

// Broadcast appends event to the recent-event buffer, unless transient, and
// enqueues it for every subscriber. It must be called inside tx's Update.
func (h *Hub) Broadcast(tx *store.Tx, event proto.Event, opts Options) error {
	frame, err := proto.Encode(event)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if !opts.Transient {
		tx.AppendEvent(event)
		h.cfg.Metrics.SetRecentEvents(tx.RecentEventCount())
	}
	h.fanout(frame)
	h.cfg.Metrics.Broadcast(string(event.Type()))
	if h.cfg.Mirror != nil {
		h.cfg.Mirror.Mirror(event.Type(), frame)
	}
	return nil
}

// Publish broadcasts event in its own store transaction. It suits events that
// carry no mutation of their own; a caller that changes state must call
// Broadcast inside its Update instead.
func (h *Hub) Publish(event proto.Event, opts Options) error {
	return h.store.Update(func(tx *store.Tx) error {
		return h.Broadcast(tx, event, opts)
	})
}

func (h *Hub) fanout(frame []byte) {
	var slow []*subscriber
	h.mu.Lock()
	for _, sub := range h.subscribers {
		select {
		case sub.send <- frame:
		default:
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		h.removeLocked(sub)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	for _, sub := range slow {
		h.dropped(sub, ReasonSlow, count)
	}
}

// Attach registers conn and queues initial as its first frame. Callers hold a
// store view while building initial so no broadcast can slip between the
// snapshot and registration.
func (h *Hub) Attach(conn Conn, initial []byte) (string, error) {
	sub := &subscriber{
		id:   h.nextID(),
		conn: conn,
		send: make(chan []byte, h.cfg.Buffer),
		done: make(chan struct{}),
	}
	sub.send <- initial

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", fmt.Errorf("hub closed")
	}
	h.subscribers[sub.id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.cfg.Metrics.SetSubscribers(count)
	streamlog.SubscriberJoined(context.Background(), h.cfg.Publisher, subscriberRef(sub.id), streamlog.SubscriberPayload{Subscribers: count})

	go h.writeLoop(sub)
	return sub.id, nil
}

// Detach deregisters a subscriber after its client went away.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		h.removeLocked(sub)
	}
	count := len(h.subscribers)
	h.mu.Unlock()
	if ok {
		h.dropped(sub, ReasonClosed, count)
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close deregisters every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
		h.removeLocked(sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		h.dropped(sub, ReasonShutdown, 0)
	}
}

func (h *Hub) removeLocked(sub *subscriber) {
	if current, ok := h.subscribers[sub.id]; ok && current == sub {
		delete(h.subscribers, sub.id)
	}
	sub.stop()
}

func (h *Hub) dropped(sub *subscriber, reason string, remaining int) {
	h.cfg.Metrics.SetSubscribers(remaining)
	h.cfg.Metrics.SubscriberDropped(reason)
	if reason != ReasonClosed {
		h.cfg.Logger.Printf("dropping subscriber %s: %s", sub.id, reason)
	}
	streamlog.SubscriberDropped(context.Background(), h.cfg.Publisher, subscriberRef(sub.id), streamlog.SubscriberPayload{Subscribers: remaining, Reason: reason})
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case <-sub.done:
			return
		case frame := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.fail(sub, err)
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.fail(sub, err)
				return
			}
		}
	}
}

func (h *Hub) fail(sub *subscriber, err error) {
	h.mu.Lock()
	_, ok := h.subscribers[sub.id]
	h.removeLocked(sub)
	count := len(h.subscribers)
	h.mu.Unlock()
	if ok {
		h.cfg.Logger.Printf("write to subscriber %s failed: %v", sub.id, err)
		h.dropped(sub, ReasonWrite, count)
	}
}

func (h *Hub) nextID() string {
	h.entropyMu.Lock()
	defer h.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), h.entropy).String()
}

func subscriberRef(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindSubscriber}
}

type subscriber struct {
	id       string
	conn     Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
