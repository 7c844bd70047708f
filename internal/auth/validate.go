package auth

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Deliberately loose "local@domain-with-dot" shape. Full RFC validation
// rejects real addresses; length plus shape is enough here.
var looseEmailRe = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type registerRequest struct {
	Name     string `json:"name" validate:"required,display_name"`
	Email    string `json:"email" validate:"required,loose_email"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,loose_email"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

// newValidator registers the credential shape rules. Validation is pure: no
// I/O, no partial success, one aggregated error per request.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("loose_email", func(fl validator.FieldLevel) bool {
		email := fl.Field().String()
		return len(email) <= 254 && looseEmailRe.MatchString(email)
	})
	_ = v.RegisterValidation("display_name", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return len(strings.TrimSpace(name)) >= 2 && len(name) <= 100
	})
	return v
}
