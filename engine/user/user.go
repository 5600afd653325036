package user

import (
	"time"

	"github.com/userdesk/userdesk/engine/core"
)

// Role represents a user's access level.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid checks if the role is a valid value
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin || r == RoleSuperAdmin
}

// IsAdmin reports whether the role grants administrative access.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is one managed account. ID is opaque and immutable; all other fields
// are mutable through the mutation engine only.
type User struct {
	ID            core.ID   `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	Banned        bool      `json:"banned"`
	BanReason     string    `json:"banReason,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Normalize enforces structural field constraints: BanReason only exists
// while the user is banned.
func (u *User) Normalize() {
	if !u.Banned {
		u.BanReason = ""
	}
}

// Clone returns a deep copy safe to hand across store boundaries.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	return core.MustDeepCopy(u)
}
