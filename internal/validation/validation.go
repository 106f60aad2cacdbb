package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError describes the first field that failed validation
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if err := validate.Var(email, "email"); err != nil {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks if a password meets requirements. bcrypt ignores
// everything past 72 bytes so longer passwords are rejected.
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if err := validate.Var(password, "min=8"); err != nil {
		return ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	if len(password) > 72 {
		return ValidationError{Field: "password", Message: "password must be at most 72 bytes"}
	}
	return nil
}

// ValidateName checks if a name is valid
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if err := validate.Var(name, "min=2,max=100"); err != nil {
		return ValidationError{Field: "name", Message: "name must be between 2 and 100 characters"}
	}
	return nil
}

// ValidateToken checks the shape of an invitation token: 64 lowercase hex characters
func ValidateToken(token string) error {
	if token == "" {
		return ValidationError{Field: "token", Message: "token is required"}
	}
	if err := validate.Var(token, "len=64,hexadecimal,lowercase"); err != nil {
		return ValidationError{Field: "token", Message: "malformed token"}
	}
	return nil
}

// ValidateRole checks that role is one of the company roles
func ValidateRole(role string) error {
	if err := validate.Var(role, "required,oneof=owner admin manager worker"); err != nil {
		return ValidationError{Field: "role", Message: "unknown role"}
	}
	return nil
}

// Struct validates a request payload using its `validate` tags
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: fmt.Sprintf("failed %s validation", fe.Tag()),
		}
	}
	return err
}
