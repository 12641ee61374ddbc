package watch

import "wash-sync/internal/services/reservations"

// Badge is a small derived count for navigation UI. Show is false when the
// count is zero: a zero badge is suppressed, never rendered as "0".
type Badge struct {
	Count int  `json:"count"`
	Show  bool `json:"show"`
}

func newBadge(count int) Badge {
	return Badge{Count: count, Show: count > 0}
}

// OwnerBadge counts pending reservations in an owner/admin view.
func OwnerBadge(v *View) Badge {
	n := 0
	for _, r := range v.List() {
		if r.Status == reservations.StatusPending || r.Status == "" {
			n++
		}
	}
	return newBadge(n)
}

// ClientBadge counts unseen status updates in a client view: reservations
// that reached a terminal status and were not yet acknowledged.
func ClientBadge(v *View) Badge {
	n := 0
	for _, r := range v.List() {
		if r.Status.Final() && !r.IsSeenByClient {
			n++
		}
	}
	return newBadge(n)
}

// BadgeForRole derives the badge matching the view's role.
func BadgeForRole(role Role, v *View) Badge {
	if role.Manages() {
		return OwnerBadge(v)
	}
	return ClientBadge(v)
}
