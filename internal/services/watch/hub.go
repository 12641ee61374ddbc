package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"wash-sync/internal/logger"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Subscriber represents a device connection that receives sync events.
type Subscriber struct {
	UserID bson.ObjectID
	Ch     chan Event
	Done   chan struct{}
}

// ConnInfo holds connection metadata.
type ConnInfo struct {
	ID          ulid.ULID
	ConnectedAt time.Time
	Subscriber  *Subscriber
}

// userConns holds the connections of one user.
type userConns struct {
	mu sync.RWMutex
	m  map[ulid.ULID]ConnInfo
}

// Hub fans sync events out to every open connection of a user. One user may
// hold several devices; each gets its own buffered outbox, and a slow outbox
// drops events rather than stalling the watchers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[bson.ObjectID]*userConns
	connIndex   map[ulid.ULID]bson.ObjectID
	bufferSize  int
	dropped     uint64
}

// NewHub creates a hub with the given per-connection buffer size.
func NewHub(bufferSize int) *Hub {
	return &Hub{
		subscribers: make(map[bson.ObjectID]*userConns),
		connIndex:   make(map[ulid.ULID]bson.ObjectID),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a connection for userID and returns its subscriber plus
// a cancel func. Cancel is idempotent.
func (h *Hub) Subscribe(connULID ulid.ULID, userID bson.ObjectID) (*Subscriber, func()) {
	log := logger.L()
	if log != nil && log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("subscribing connection", "conn_id", connULID.String(), "user_id", userID.Hex())
	}

	h.mu.Lock()
	bucket, exists := h.subscribers[userID]
	if !exists {
		bucket = &userConns{
			m: make(map[ulid.ULID]ConnInfo),
		}
		h.subscribers[userID] = bucket
	}
	h.connIndex[connULID] = userID
	h.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	sub := &Subscriber{
		UserID: userID,
		Ch:     make(chan Event, h.bufferSize),
		Done:   make(chan struct{}),
	}
	bucket.m[connULID] = ConnInfo{
		ID:          connULID,
		ConnectedAt: time.Now(),
		Subscriber:  sub,
	}

	cancel := func() {
		h.Unsubscribe(connULID)
	}
	return sub, cancel
}

// Unsubscribe removes a connection. Calling it twice is harmless.
func (h *Hub) Unsubscribe(connULID ulid.ULID) {
	log := logger.L()
	if log != nil && log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("unsubscribing connection", "conn_id", connULID.String())
	}

	h.mu.RLock()
	uid, ok := h.connIndex[connULID]
	bucket := h.subscribers[uid]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if bucket == nil {
		h.mu.Lock()
		delete(h.connIndex, connULID)
		h.mu.Unlock()
		return
	}

	bucket.mu.Lock()
	connInfo, exists := bucket.m[connULID]
	if exists {
		delete(bucket.m, connULID)
	}
	empty := len(bucket.m) == 0
	bucket.mu.Unlock()

	if exists {
		close(connInfo.Subscriber.Ch)
		close(connInfo.Subscriber.Done)
	}

	h.mu.Lock()
	delete(h.connIndex, connULID)
	if empty {
		delete(h.subscribers, uid)
	}
	h.mu.Unlock()
}

// Broadcast delivers ev to every connection of userID.
func (h *Hub) Broadcast(_ context.Context, userID bson.ObjectID, ev Event) {
	log := logger.L()
	if log != nil && log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("broadcasting event", "user_id", userID.Hex(), "event_type", ev.Type)
	}

	bucket := h.bucket(userID)
	if bucket == nil {
		return
	}

	bucket.mu.RLock()
	for _, connInfo := range bucket.m {
		sendOrDrop(connInfo.Subscriber.Ch, ev, func() {
			atomic.AddUint64(&h.dropped, 1)
			if log != nil {
				log.Warn("outbox full, dropping event",
					"conn_id", connInfo.ID.String(), "user_id", userID.Hex(), "event_type", ev.Type)
			}
		})
	}
	bucket.mu.RUnlock()
}

// ConnCount returns how many connections userID currently holds.
func (h *Hub) ConnCount(userID bson.ObjectID) int {
	bucket := h.bucket(userID)
	if bucket == nil {
		return 0
	}
	bucket.mu.RLock()
	defer bucket.mu.RUnlock()
	return len(bucket.m)
}

// Stats returns subscriber and drop counters for observability / tests.
func (h *Hub) Stats() (subscribers int, dropped uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, bucket := range h.subscribers {
		bucket.mu.RLock()
		total += len(bucket.m)
		bucket.mu.RUnlock()
	}
	return total, atomic.LoadUint64(&h.dropped)
}

// sendOrDrop is the only place allowed to decide to drop an event.
func sendOrDrop(ch chan Event, ev Event, onDrop func()) {
	select {
	case ch <- ev:
	default:
		onDrop()
	}
}

func (h *Hub) bucket(uid bson.ObjectID) *userConns {
	h.mu.RLock()
	b := h.subscribers[uid]
	h.mu.RUnlock()
	return b
}
