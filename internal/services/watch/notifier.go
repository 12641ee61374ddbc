package watch

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"wash-sync/internal/services/reservations"
)

// Presenter is the platform primitive the dispatcher hands messages to:
// display a transient message on the user's device.
type Presenter interface {
	ShowTransientMessage(title, message string)
}

// Dispatcher turns classified transitions into short human-readable messages.
//
// A global watcher and a screen-local watcher can both be live and observe
// the same change; the store gives no cross-subscription ordering, so they
// fire at different moments. The dispatcher keeps a short-lived, size-bounded
// seen-set keyed by (reservation id, updatedAt) shared by every watcher in
// the process, so one transition reaches the presenter exactly once.
type Dispatcher struct {
	presenter Presenter
	log       *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time // dedup key -> expiry
	ttl  time.Duration
	cap  int

	dispatched uint64
	deduped    uint64

	now func() time.Time
}

// NewDispatcher creates a dispatcher with the given dedup window and seen-set
// capacity.
func NewDispatcher(p Presenter, ttl time.Duration, capacity int, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		presenter: p,
		log:       log,
		seen:      make(map[string]time.Time),
		ttl:       ttl,
		cap:       capacity,
		now:       time.Now,
	}
}

// Dispatch renders and presents one transition, unless an equivalent one was
// already announced within the dedup window.
func (d *Dispatcher) Dispatch(t Transition) {
	key := dedupKey(t)
	if !d.firstSighting(key) {
		atomic.AddUint64(&d.deduped, 1)
		if d.log != nil {
			d.log.Debug("duplicate transition suppressed", "key", key, "kind", string(t.Kind))
		}
		return
	}

	title, message := render(t)
	d.presenter.ShowTransientMessage(title, message)
	atomic.AddUint64(&d.dispatched, 1)
}

// Stats returns dispatch counters for observability / tests.
func (d *Dispatcher) Stats() (dispatched, deduped uint64) {
	return atomic.LoadUint64(&d.dispatched), atomic.LoadUint64(&d.deduped)
}

func dedupKey(t Transition) string {
	return t.Reservation.ID.Hex() + ":" + strconv.FormatInt(t.Reservation.UpdatedAt.UnixNano(), 10)
}

// firstSighting records key and reports whether it was unseen. Expired
// entries are pruned on the way; if the set is still full the entry closest
// to expiry is evicted, keeping the set bounded regardless of traffic.
func (d *Dispatcher) firstSighting(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[key]; ok && exp.After(now) {
		return false
	}

	for k, exp := range d.seen {
		if !exp.After(now) {
			delete(d.seen, k)
		}
	}
	if len(d.seen) >= d.cap {
		var oldestKey string
		var oldest time.Time
		for k, exp := range d.seen {
			if oldestKey == "" || exp.Before(oldest) {
				oldestKey, oldest = k, exp
			}
		}
		delete(d.seen, oldestKey)
	}

	d.seen[key] = now.Add(d.ttl)
	return true
}

// render produces the title/message pair shown on the device. Copy matches
// the mobile app's French strings.
func render(t Transition) (title, message string) {
	r := t.Reservation
	switch t.Kind {
	case TransitionNewBooking:
		phone := r.ClientPhone
		if phone == "" {
			phone = reservations.PlaceholderText
		}
		return "Nouvelle réservation",
			fmt.Sprintf("%s • %s • %s", r.DisplayCarwash(), r.DisplayService(), phone)
	case TransitionConfirmed:
		return "Réservation", "Confirmée."
	case TransitionCanceled:
		return "Réservation", "Annulée."
	}
	return "Réservation", string(t.Kind)
}
