package types

import "strings"

// Actor is the authenticated caller, taken from the verified access token.
// Tokens are issued by the external auth service; this service only reads them.
type Actor struct {
	// ID is the user id carried in the token subject.
	ID int64 `json:"id"`

	// Name is the display name claim, used in export manifests.
	Name string `json:"name"`

	// Role is the authorization role claim (e.g. "admin", "dosen").
	Role string `json:"role"`
}

// RoleAdmin may permanently delete question sets and files.
const RoleAdmin = "admin"

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(a.Role), RoleAdmin)
}
