// Package hub is the WebSocket fan-out hub: per-subscriber bounded queues,
// backpressure handling, and slow-client eviction. Each subscriber gets a
// dedicated sender goroutine; a subscriber that can't keep up loses its
// oldest queued message first and its registration after repeated drops.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// DefaultQueueSize is WS_QUEUE's default.
	DefaultQueueSize = 64
	// DefaultPutTimeout is the per-subscriber broadcast put timeout.
	DefaultPutTimeout = 250 * time.Millisecond
	// DefaultMaxBackpressureRetries evicts a subscriber after this many
	// consecutive drops.
	DefaultMaxBackpressureRetries = 3
)

// Socket is the minimal send/close surface the hub needs from a WebSocket
// connection; internal/api wraps *websocket.Conn to satisfy it, and tests
// use a fake.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Metrics is the subset of metrics.Registry the hub updates.
type Metrics interface {
	NoteWSSent()
	NoteWSDropped()
}

// subscriber is a hub-registered WebSocket connection.
type subscriber struct {
	id     string
	socket Socket
	queue  chan string

	mu           sync.Mutex
	dropStreak   int
	disconnected bool

	done chan struct{}
}

// Hub owns the subscriber registry exclusively.
// All fields besides the map/mutex are immutable configuration.
type Hub struct {
	queueSize    int
	putTimeout   time.Duration
	maxRetries   int
	metrics      Metrics
	log          zerolog.Logger

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

// Option configures a Hub at construction.
type Option func(*Hub)

func WithQueueSize(n int) Option       { return func(h *Hub) { h.queueSize = n } }
func WithPutTimeout(d time.Duration) Option { return func(h *Hub) { h.putTimeout = d } }
func WithMaxRetries(n int) Option      { return func(h *Hub) { h.maxRetries = n } }

// New constructs a Hub with the given metrics sink and logger, applying any
// options over the package defaults.
func New(metrics Metrics, log zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		queueSize:   DefaultQueueSize,
		putTimeout:  DefaultPutTimeout,
		maxRetries:  DefaultMaxBackpressureRetries,
		metrics:     metrics,
		log:         log.With().Str("component", "hub").Logger(),
		subscribers: make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect registers socket as a subscriber, starts its dedicated sender
// goroutine, and returns the subscriber id (for later Disconnect calls).
func (h *Hub) Connect(socket Socket) string {
	sub := &subscriber{
		id:     uuid.NewString(),
		socket: socket,
		queue:  make(chan string, h.queueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	go h.sendLoop(sub)
	return sub.id
}

// Disconnect removes a subscriber, stops its sender, and closes the socket.
// Idempotent and safe to call from the sender goroutine itself or from a
// concurrent broadcast eviction.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	sub.mu.Lock()
	already := sub.disconnected
	sub.disconnected = true
	sub.mu.Unlock()
	if already {
		return
	}

	close(sub.done)
	_ = sub.socket.Close()
}

// SubscriberCount reports the current registry size (for metrics/health).
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Broadcast fans message out to every subscriber in a single traversal over
// a membership snapshot; subscribers never block each other.
func (h *Hub) Broadcast(message string) {
	h.mu.Lock()
	snapshot := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	for _, sub := range snapshot {
		h.deliver(sub, message)
	}
}

func (h *Hub) deliver(sub *subscriber, message string) {
	select {
	case sub.queue <- message:
		sub.mu.Lock()
		sub.dropStreak = 0
		sub.mu.Unlock()
		return
	case <-time.After(h.putTimeout):
	}

	// Backpressure: drop the oldest queued message, then retry once.
	h.metrics.NoteWSDropped()
	sub.mu.Lock()
	sub.dropStreak++
	streak := sub.dropStreak
	sub.mu.Unlock()

	select {
	case <-sub.queue:
	default:
	}

	select {
	case sub.queue <- message:
	default:
		h.metrics.NoteWSDropped()
		h.Disconnect(sub.id)
		return
	}

	if streak >= h.maxRetries {
		h.Disconnect(sub.id)
	}
}

// sendLoop is the subscriber's dedicated sender task: pop, send, repeat,
// until the queue's owning subscriber is disconnected or a send fails.
func (h *Hub) sendLoop(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.queue:
			if err := sub.socket.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				h.log.Debug().Err(err).Str("subscriber", sub.id).Msg("send failed, disconnecting")
				h.Disconnect(sub.id)
				return
			}
			h.metrics.NoteWSSent()
		}
	}
}
