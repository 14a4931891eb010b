// internal/domain/models/user.go
package models

import (
	"time"
)

// Terminology: User Identifiers
//   - UID / uid: the credential subject id issued by the auth boundary; it is
//     also the _id of the user's profile document in the users collection.

// Role values for staff users.
const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleManager    = "manager"
)

// ValidRole reports whether role is one of the known staff roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAccountant, RoleManager:
		return true
	}
	return false
}

// User is the profile document for a signed-in staff member. It is distinct
// from the credential; a credential can exist briefly without its profile.
type User struct {
	ID        string     `bson:"_id" json:"id"`
	Email     string     `bson:"email" json:"email"`
	FirstName string     `bson:"first_name" json:"first_name"`
	LastName  string     `bson:"last_name" json:"last_name"`
	Role      string     `bson:"role" json:"role"` // admin | accountant | manager
	IsActive  bool       `bson:"is_active" json:"is_active"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	LastLogin *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
