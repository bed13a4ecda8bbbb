package models

import "fmt"

// SystemActor labels audit entries written without an authenticated caller.
const SystemActor = "System/Anonymous"

// Identity is the resolved caller of an operation. The zero value is anonymous.
type Identity struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Zone   string `json:"zone,omitempty"`
}

func (i Identity) IsAnonymous() bool { return i.UserID == "" }

func (i Identity) HasRole(roles ...Role) bool {
	if i.IsAnonymous() {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// CanWorkZone reports whether the caller may act on issues routed to zone.
// Admins are unscoped; authorities only reach their own zone.
func (i Identity) CanWorkZone(zone string) bool {
	switch {
	case i.HasRole(RoleAdmin):
		return true
	case i.HasRole(RoleAuthority):
		return i.Zone != "" && i.Zone == zone
	default:
		return false
	}
}

// ActorLabel is the human-readable name written to the audit log.
func (i Identity) ActorLabel() string {
	if i.IsAnonymous() {
		return SystemActor
	}
	if i.Email != "" {
		return i.Email
	}
	return fmt.Sprintf("%s %s", i.Role, i.UserID)
}
