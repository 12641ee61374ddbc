package watch

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"wash-sync/internal/services/reservations"

	"github.com/oklog/ulid/v2"
)

// State is the explicit lifecycle of a watcher. Transitions only go forward:
//
//	Created → AwaitingInitial → Live → Stopped
//	Created → Degraded → Stopped
//
// Degraded is the no-subscription mode used when the owned-carwash set
// exceeds the store's fan-out limit; such a watcher only refreshes on
// explicit reload.
type State int

const (
	StateCreated State = iota
	StateAwaitingInitial
	StateLive
	StateDegraded
	StateStopped
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingInitial:
		return "awaiting_initial"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var legalTransitions = map[State][]State{
	StateCreated:         {StateAwaitingInitial, StateDegraded, StateStopped},
	StateAwaitingInitial: {StateLive, StateStopped},
	StateLive:            {StateStopped},
	StateDegraded:        {StateStopped},
}

// UpdateFunc receives the rebuilt view after every feed event or reload.
type UpdateFunc func(list []reservations.Reservation, badge Badge)

// Config describes one watcher.
type Config struct {
	Role   Role
	Filter Filter
	// Notify marks the watcher as a notification source. Watchers that only
	// feed a screen list leave it false.
	Notify bool
	// OnUpdate may be nil for watchers that exist purely to notify.
	OnUpdate UpdateFunc
}

// Watcher is one live subscription plus its classification state, scoped to
// one screen or the global session. It exclusively owns its subscription
// handle and releases it exactly once.
type Watcher struct {
	id         ulid.ULID
	cfg        Config
	store      Store
	dispatcher *Dispatcher
	log        *slog.Logger

	mu         sync.Mutex
	state      State
	release    func()
	classifier *Classifier
	view       *View
}

// NewWatcher creates a watcher in state Created. Nothing is subscribed until
// Start or StartDegraded.
func NewWatcher(store Store, dispatcher *Dispatcher, cfg Config, log *slog.Logger) *Watcher {
	return &Watcher{
		id:         ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader),
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		state:      StateCreated,
		classifier: NewClassifier(),
		view:       NewView(PolicyForRole(cfg.Role)),
	}
}

// ID returns the watcher's unique id.
func (w *Watcher) ID() ulid.ULID {
	return w.id
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Degraded reports whether the watcher runs without a live subscription.
func (w *Watcher) Degraded() bool {
	return w.State() == StateDegraded
}

// List returns the current view contents.
func (w *Watcher) List() []reservations.Reservation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view.List()
}

// BadgeCount returns the badge derived from the current view.
func (w *Watcher) BadgeCount() Badge {
	w.mu.Lock()
	defer w.mu.Unlock()
	return BadgeForRole(w.cfg.Role, w.view)
}

// Start opens the live subscription. On failure the watcher lands in
// Stopped; there is no retry at this layer.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.advance(StateCreated, StateAwaitingInitial) {
		return nil
	}

	release, err := w.store.Subscribe(ctx, w.cfg.Filter, w.onEvent, w.onError)
	if err != nil {
		w.forceStop()
		w.log.Error("subscription failed to start", "watcher_id", w.id.String(), "error", err)
		return err
	}

	w.mu.Lock()
	if w.state == StateStopped {
		// Stopped while subscribing; release immediately.
		w.mu.Unlock()
		release()
		return nil
	}
	w.release = release
	w.mu.Unlock()
	return nil
}

// StartDegraded performs the initial batched read instead of subscribing.
// Used when the id set exceeds the fan-out limit: real-time correctness is
// traded for availability, and the caller surfaces manual refresh to the UI.
func (w *Watcher) StartDegraded(ctx context.Context) error {
	if !w.advance(StateCreated, StateDegraded) {
		return nil
	}
	return w.Reload(ctx)
}

// Reload refreshes a degraded watcher's view with a full batched read. It is
// a no-op for live watchers — their feed is authoritative.
func (w *Watcher) Reload(ctx context.Context) error {
	if w.State() != StateDegraded {
		return nil
	}

	list, err := QueryByIDSet(ctx, w.store, w.cfg.Filter.CarwashIDs)
	if err != nil {
		w.log.Error("batched reload failed", "watcher_id", w.id.String(), "error", err)
		return err
	}

	w.mu.Lock()
	if w.state != StateDegraded {
		w.mu.Unlock()
		return nil
	}
	w.view.Replace(list)
	update := w.snapshotUpdateLocked()
	w.mu.Unlock()

	update()
	return nil
}

// Stop releases the subscription. Safe to call any number of times and on a
// watcher whose subscription already failed.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return
	}
	w.log.Debug("stopping watcher", "watcher_id", w.id.String(), "state", w.state.String())
	w.state = StateStopped
	release := w.release
	w.release = nil
	w.mu.Unlock()

	if release != nil {
		release()
	}
}

func (w *Watcher) onEvent(snapshot []reservations.Reservation, changes []Change) {
	w.mu.Lock()
	switch w.state {
	case StateAwaitingInitial:
		// Baseline only: record it, never forward to the dispatcher.
		w.classifier.Prime(changes)
		w.state = StateLive
		w.view.Replace(snapshot)
		update := w.snapshotUpdateLocked()
		w.mu.Unlock()
		update()
		return

	case StateLive:
		w.view.Replace(snapshot)
		transitions := w.classifier.Diff(changes)
		update := w.snapshotUpdateLocked()
		w.mu.Unlock()
		update()
		if w.cfg.Notify {
			w.announce(transitions)
		}
		return
	}
	// Stopped (or never started): the event raced the shutdown, drop it.
	w.mu.Unlock()
}

func (w *Watcher) onError(err error) {
	w.log.Warn("subscription failed, watcher stopped",
		"watcher_id", w.id.String(), "role", string(w.cfg.Role), "error", err)
	w.Stop()
}

// announce forwards the transitions this watcher's role cares about: owners
// hear about new bookings, clients about terminal status changes.
func (w *Watcher) announce(transitions []Transition) {
	for _, t := range transitions {
		if w.cfg.Role.Manages() {
			if t.Kind != TransitionNewBooking {
				continue
			}
		} else if t.Kind == TransitionNewBooking {
			continue
		}
		w.dispatcher.Dispatch(t)
	}
}

// snapshotUpdateLocked captures the update callback with the current view so
// it can run outside the lock. Callers must hold w.mu.
func (w *Watcher) snapshotUpdateLocked() func() {
	if w.cfg.OnUpdate == nil {
		return func() {}
	}
	list := w.view.List()
	badge := BadgeForRole(w.cfg.Role, w.view)
	cb := w.cfg.OnUpdate
	return func() { cb(list, badge) }
}

// advance performs one legal state transition, or reports false.
func (w *Watcher) advance(from, to State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return false
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			w.state = to
			return true
		}
	}
	return false
}

func (w *Watcher) forceStop() {
	w.mu.Lock()
	w.state = StateStopped
	w.release = nil
	w.mu.Unlock()
}
