package domain

import "strings"

// Role is the capability an authenticated caller acts with.
type Role string

const (
	RoleDonor     Role = "Donor"
	RoleRecipient Role = "Recipient"
	RoleAdmin     Role = "Admin"
)

// ParseRole accepts any casing of a known role.
func ParseRole(v string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "donor":
		return RoleDonor, true
	case "recipient":
		return RoleRecipient, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

// Caller is the identity supplied by the authorization gate for one request.
type Caller struct {
	ID   string
	Role Role
}

// HasRole reports whether the caller acts with one of roles.
func (c Caller) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}
