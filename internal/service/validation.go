package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/account-service/pkg/errors"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validationError converts validator output into a 400 with a message naming
// the first offending field.
func validationError(err error, fallback string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return appErrors.Validation(err, fallback)
	}
	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "email":
		msg = fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "eqfield":
		msg = fmt.Sprintf("%s does not match", fe.Field())
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return appErrors.Validation(err, msg)
}

// PasswordPolicy constrains new passwords.
type PasswordPolicy struct {
	MinLength    int
	MaxLength    int
	AllowNumeric bool
}

// DefaultPasswordPolicy mirrors the configuration defaults.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, MaxLength: 128}
}

// Check returns a validation error describing the first rule password breaks.
func (p PasswordPolicy) Check(password, email, name string) error {
	length := utf8.RuneCountInString(password)
	if p.MinLength > 0 && length < p.MinLength {
		return appErrors.Validation(nil, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		return appErrors.Validation(nil, fmt.Sprintf("password must be at most %d characters", p.MaxLength))
	}
	if !p.AllowNumeric && isNumeric(password) {
		return appErrors.Validation(nil, "password cannot be entirely numeric")
	}

	lowered := strings.ToLower(password)
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" && lowered == strings.ToLower(local) {
		return appErrors.Validation(nil, "password is too similar to the email address")
	}
	if name = strings.TrimSpace(name); name != "" && lowered == strings.ToLower(name) {
		return appErrors.Validation(nil, "password is too similar to the name")
	}
	return nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
