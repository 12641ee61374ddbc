package watch

import (
	"sort"

	"wash-sync/internal/services/reservations"
)

// SortPolicy decides how a view orders its reservations.
type SortPolicy int

const (
	// SortPendingFirst is the owner/admin policy: everything pending before
	// everything else, id order within each bucket.
	SortPendingFirst SortPolicy = iota
	// SortRecency is the client history policy: newest bookings first.
	SortRecency
)

// PolicyForRole maps a role to its sort policy.
func PolicyForRole(role Role) SortPolicy {
	if role.Manages() {
		return SortPendingFirst
	}
	return SortRecency
}

// View holds the reservation list for exactly one scope (one screen or the
// global session). It is rebuilt wholesale from every feed snapshot — never
// patched in place — so it cannot drift from the store. Views are owned by a
// single watcher and therefore need no locking of their own; the feed
// serializes events per subscription.
type View struct {
	policy SortPolicy
	list   []reservations.Reservation
}

// NewView creates an empty view with the given sort policy.
func NewView(policy SortPolicy) *View {
	return &View{policy: policy}
}

// Replace rebuilds the view from a full snapshot.
func (v *View) Replace(snapshot []reservations.Reservation) {
	list := make([]reservations.Reservation, len(snapshot))
	copy(list, snapshot)
	sortReservations(list, v.policy)
	v.list = list
}

// List returns the current ordered reservations. Callers must not mutate the
// returned slice.
func (v *View) List() []reservations.Reservation {
	return v.list
}

// Len returns the number of reservations in the view.
func (v *View) Len() int {
	return len(v.list)
}

func sortReservations(list []reservations.Reservation, policy SortPolicy) {
	switch policy {
	case SortPendingFirst:
		// The id tie-break inside each status bucket keeps the order
		// deterministic regardless of how the snapshot was assembled.
		sort.SliceStable(list, func(i, j int) bool {
			ri, rj := statusRank(list[i].Status), statusRank(list[j].Status)
			if ri != rj {
				return ri < rj
			}
			return list[i].ID.Hex() < list[j].ID.Hex()
		})
	case SortRecency:
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.After(list[j].CreatedAt)
			}
			return list[i].ID.Hex() < list[j].ID.Hex()
		})
	}
}

// statusRank orders pending ahead of everything else. Unknown or missing
// statuses sort with pending, matching how partial documents are rendered.
func statusRank(s reservations.Status) int {
	if s == "" || s == reservations.StatusPending {
		return 0
	}
	return 1
}
