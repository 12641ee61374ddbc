package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wash-sync/internal/services/reservations"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CarwashSource yields the owned-carwash id set that seeds owner-side
// filters.
type CarwashSource interface {
	OwnedIDs(ctx context.Context, ownerID bson.ObjectID) ([]bson.ObjectID, error)
}

// SessionConfig carries the tuning knobs a session needs.
type SessionConfig struct {
	DedupTTL      time.Duration
	DedupCapacity int
}

// Session owns every watcher started for one authenticated user: the
// reservation view watcher plus the global notification watcher. It is the
// single scope responsible for tearing all of them down — no ambient globals,
// no cross-session notification leakage.
type Session struct {
	userID     bson.ObjectID
	role       Role
	store      Store
	hub        *Hub
	carwashes  CarwashSource
	dispatcher *Dispatcher
	log        *slog.Logger

	mu       sync.Mutex
	closed   bool
	watchers []*Watcher
	viewW    *Watcher
}

// NewSession wires a session for one user; watchers start on Start.
//
// The notification dedup set lives on the session, shared by every
// notification-emitting watcher it owns, so the global watcher and the view
// watcher observing the same change announce it once.
func NewSession(store Store, hub *Hub, carwashes CarwashSource, userID bson.ObjectID, role Role, cfg SessionConfig, log *slog.Logger) *Session {
	s := &Session{
		userID:    userID,
		role:      role,
		store:     store,
		hub:       hub,
		carwashes: carwashes,
		log:       log,
	}
	s.dispatcher = NewDispatcher(s, cfg.DedupTTL, cfg.DedupCapacity, log)
	return s
}

// ShowTransientMessage implements Presenter by pushing a notification frame
// to every device connection of the session's user.
func (s *Session) ShowTransientMessage(title, message string) {
	s.hub.Broadcast(context.Background(), s.userID, NotificationEvent(title, message))
}

// Start brings up the session's watchers.
func (s *Session) Start(ctx context.Context) error {
	if err := s.startReservationWatcher(ctx); err != nil {
		return err
	}
	return s.startGlobalNotificationWatcher(ctx)
}

// startReservationWatcher maintains the role-dependent reservation view. On
// the owner side it doubles as a notification source for new bookings, the
// way the reservations screen behaves on the device; duplicates against the
// global watcher collapse in the dispatcher.
func (s *Session) startReservationWatcher(ctx context.Context) error {
	if !s.role.Manages() {
		w := NewWatcher(s.store, s.dispatcher, Config{
			Role:     s.role,
			Filter:   ClientFilter(s.userID),
			Notify:   false,
			OnUpdate: s.viewBroadcaster(false),
		}, s.log)
		if !s.register(w, true) {
			return nil
		}
		return w.Start(ctx)
	}

	ids, err := s.carwashes.OwnedIDs(ctx, s.userID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		// Nothing to watch; tell the device its view is empty.
		s.hub.Broadcast(ctx, s.userID, ViewEvent(nil, Badge{}, false))
		return nil
	}

	degraded := len(ids) > MaxFilterIDs
	w := NewWatcher(s.store, s.dispatcher, Config{
		Role:     s.role,
		Filter:   OwnerFilter(ids),
		Notify:   !degraded,
		OnUpdate: s.viewBroadcaster(degraded),
	}, s.log)
	if !s.register(w, true) {
		return nil
	}

	if degraded {
		s.log.Info("owned carwashes exceed fan-out limit, view is not real-time",
			"user_id", s.userID.Hex(), "carwashes", len(ids))
		return w.StartDegraded(ctx)
	}
	return w.Start(ctx)
}

// startGlobalNotificationWatcher mirrors the app-wide watcher: clients hear
// about terminal status changes, owners about new bookings. Above the
// fan-out limit no global watcher runs at all.
func (s *Session) startGlobalNotificationWatcher(ctx context.Context) error {
	var filter Filter
	if s.role.Manages() {
		ids, err := s.carwashes.OwnedIDs(ctx, s.userID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if len(ids) > MaxFilterIDs {
			s.log.Info("skipping global watcher above fan-out limit",
				"user_id", s.userID.Hex(), "carwashes", len(ids))
			return nil
		}
		filter = OwnerFilter(ids)
	} else {
		filter = ClientFilter(s.userID)
	}

	w := NewWatcher(s.store, s.dispatcher, Config{
		Role:   s.role,
		Filter: filter,
		Notify: true,
	}, s.log)
	if !s.register(w, false) {
		return nil
	}
	return w.Start(ctx)
}

// Reload refreshes a degraded view (manual pull). No-op on live sessions.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	w := s.viewW
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Reload(ctx)
}

// Close stops every watcher the session owns. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	watchers := s.watchers
	s.watchers = nil
	s.viewW = nil
	s.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	s.log.Debug("session closed", "user_id", s.userID.Hex(), "watchers", len(watchers))
}

// register adds w to the session unless it already closed; a watcher refused
// here is stopped on the spot so the subscription can never outlive its
// session.
func (s *Session) register(w *Watcher, isView bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		w.Stop()
		return false
	}
	s.watchers = append(s.watchers, w)
	if isView {
		s.viewW = w
	}
	s.mu.Unlock()
	return true
}

func (s *Session) viewBroadcaster(degraded bool) UpdateFunc {
	return func(list []reservations.Reservation, badge Badge) {
		s.hub.Broadcast(context.Background(), s.userID, ViewEvent(list, badge, degraded))
	}
}
