package watch

import "wash-sync/internal/services/reservations"

// Event is one frame pushed to a device connection.
type Event struct {
	// Type is "view" for a rebuilt reservation list or "notification" for a
	// transient message.
	Type string `json:"type"`

	Reservations []reservations.Reservation `json:"reservations,omitempty"`
	Badge        *Badge                     `json:"badge,omitempty"`
	// Degraded tells the device the list is not real-time and needs manual
	// refresh (owner above the fan-out limit).
	Degraded bool `json:"degraded,omitempty"`

	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	EventTypeView         = "view"
	EventTypeNotification = "notification"
)

// ViewEvent builds a view frame.
func ViewEvent(list []reservations.Reservation, badge Badge, degraded bool) Event {
	return Event{
		Type:         EventTypeView,
		Reservations: list,
		Badge:        &badge,
		Degraded:     degraded,
	}
}

// NotificationEvent builds a transient-message frame.
func NotificationEvent(title, message string) Event {
	return Event{
		Type:    EventTypeNotification,
		Title:   title,
		Message: message,
	}
}
