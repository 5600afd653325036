package user

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Draft is the payload for creating a user. It is validated locally before
// the optimistic insert so obviously malformed input never reaches the store.
type Draft struct {
	Name          string `json:"name"          validate:"required,min=1,max=200"`
	Email         string `json:"email"         validate:"required,email"`
	Role          Role   `json:"role"          validate:"required,oneof=user admin super_admin"`
	EmailVerified bool   `json:"emailVerified"`
}

// Validate checks the draft against its field constraints.
func (d *Draft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid user draft: %w", err)
	}
	return nil
}
