package auth

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin may act on behalf of any organisation.
const RoleAdmin = "admin"

// Claims is the shape of the ID tokens issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims

	UserID         string `json:"user_id,omitempty"`
	Email          string `json:"email,omitempty"`
	OrganisationID string `json:"organisation_id,omitempty"`
	Role           string `json:"role,omitempty"`
}

// User is the authenticated caller of a request.
type User struct {
	ID             string
	Email          string
	OrganisationID string
	Role           string
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanAccess reports whether the user may act on the given organisation.
func (u User) CanAccess(orgID string) bool {
	if u.IsAdmin() {
		return true
	}

	return orgID != "" && orgID == u.OrganisationID
}
