package watch

import "errors"

// Role determines which reservation filter and notification rules apply to a
// watcher. Admins watch the same owner-side filter as owners.
type Role string

const (
	RoleClient Role = "client"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// ErrUnknownRole is returned for any role outside the three modeled ones.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a raw role claim.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleOwner, RoleAdmin:
		return Role(s), nil
	}
	return "", ErrUnknownRole
}

// Manages reports whether the role sees the owner-side view.
func (r Role) Manages() bool {
	return r == RoleOwner || r == RoleAdmin
}
