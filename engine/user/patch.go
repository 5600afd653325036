package user

import "fmt"

// Patch carries the fields of an edit. Nil means "leave unchanged"; a patch
// is applied atomically to a single user.
type Patch struct {
	Name          *string `json:"name,omitempty"`
	Email         *string `json:"email,omitempty"`
	Role          *Role   `json:"role,omitempty"`
	EmailVerified *bool   `json:"emailVerified,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *Patch) IsEmpty() bool {
	return p == nil ||
		(p.Name == nil && p.Email == nil && p.Role == nil && p.EmailVerified == nil)
}

// Validate checks the populated fields.
func (p *Patch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return fmt.Errorf("invalid user patch: name cannot be empty")
	}
	if p.Email != nil && *p.Email == "" {
		return fmt.Errorf("invalid user patch: email cannot be empty")
	}
	if p.Role != nil && !p.Role.Valid() {
		return fmt.Errorf("invalid user patch: unknown role %q", *p.Role)
	}
	return nil
}

// Apply writes the populated fields onto u.
func (p *Patch) Apply(u *User) {
	if p == nil || u == nil {
		return
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
}
