package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrSessionRoleMismatch is returned when a device presents a role claim
// different from the one the user's live session was started with. Watchers
// are filtered by role, so sharing the session would serve the wrong view.
var ErrSessionRoleMismatch = errors.New("session already live with a different role")

// Manager keeps at most one session per user, reference-counted by device
// connections. The first connection starts the watchers, the last one
// tearing down closes them — before any later connection can start a fresh
// session for the same user.
type Manager struct {
	store     Store
	hub       *Hub
	carwashes CarwashSource
	cfg       SessionConfig
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[bson.ObjectID]*managedSession

	// dispatch totals of already-closed sessions; live ones are summed on
	// read so the exported counters stay monotonic across session churn
	closedDispatched uint64
	closedDeduped    uint64
}

type managedSession struct {
	sess *Session
	refs int
}

// NewManager creates a session manager.
func NewManager(store Store, hub *Hub, carwashes CarwashSource, cfg SessionConfig, log *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		hub:       hub,
		carwashes: carwashes,
		cfg:       cfg,
		log:       log,
		sessions:  make(map[bson.ObjectID]*managedSession),
	}
}

// Acquire returns the user's session, starting one if none is live. Every
// device of a user must present the same role claim; a mismatch is refused
// rather than silently reusing the other role's watchers. A session whose
// watchers fail to start is closed and the error returned.
func (m *Manager) Acquire(ctx context.Context, userID bson.ObjectID, role Role) (*Session, error) {
	m.mu.Lock()
	if ms, ok := m.sessions[userID]; ok {
		if ms.sess.role != role {
			m.mu.Unlock()
			return nil, ErrSessionRoleMismatch
		}
		ms.refs++
		m.mu.Unlock()
		return ms.sess, nil
	}

	sess := NewSession(m.store, m.hub, m.carwashes, userID, role, m.cfg, m.log)
	m.sessions[userID] = &managedSession{sess: sess, refs: 1}
	m.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		sess.Close()
		m.retire(sess)
		m.mu.Lock()
		delete(m.sessions, userID)
		m.mu.Unlock()
		return nil, err
	}

	m.log.Info("session started", "user_id", userID.Hex(), "role", string(role))
	return sess, nil
}

// Release drops one reference; the session closes when the last device
// disconnects. Releasing an unknown user is harmless.
func (m *Manager) Release(userID bson.ObjectID) {
	m.mu.Lock()
	ms, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	ms.refs--
	if ms.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, userID)
	m.mu.Unlock()

	ms.sess.Close()
	m.retire(ms.sess)
	m.log.Info("session closed", "user_id", userID.Hex())
}

// retire folds a closed session's dispatch counters into the totals.
func (m *Manager) retire(sess *Session) {
	dispatched, deduped := sess.dispatcher.Stats()
	m.mu.Lock()
	m.closedDispatched += dispatched
	m.closedDeduped += deduped
	m.mu.Unlock()
}

// DispatchTotals returns process-wide notification counters: closed sessions
// plus everything the live ones have announced so far.
func (m *Manager) DispatchTotals() (dispatched, deduped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatched, deduped = m.closedDispatched, m.closedDeduped
	for _, ms := range m.sessions {
		d, dd := ms.sess.dispatcher.Stats()
		dispatched += d
		deduped += dd
	}
	return dispatched, deduped
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live session regardless of refcounts.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[bson.ObjectID]*managedSession)
	m.mu.Unlock()

	for uid, ms := range sessions {
		ms.sess.Close()
		m.retire(ms.sess)
		m.log.Debug("session closed on shutdown", "user_id", uid.Hex())
	}
}
