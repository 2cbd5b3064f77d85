package signup

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Messages shown to the user.
const (
	MsgNameRequired     = "Please enter your name"
	MsgEmailInvalid     = "Please enter a valid email address."
	MsgPasswordRequired = "Please enter the password"
	MsgFallback         = "Something went wrong. Please try again."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var formValidator = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	err := val.RegisterValidation("email_address", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic("signup: register email_address rule: " + err.Error())
	}
	return val
}

// ValidationError reports the first rule a form breaks.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var fieldMessages = map[string]string{
	"FullName": MsgNameRequired,
	"Email":    MsgEmailInvalid,
	"Password": MsgPasswordRequired,
}

// Validate checks name, email and password in that order and returns the
// first violation as a *ValidationError. Password length is not enforced.
func Validate(f Form) error {
	err := formValidator.Struct(f)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &ValidationError{Message: MsgFallback}
	}
	field := ve[0].StructField()
	msg, ok := fieldMessages[field]
	if !ok {
		msg = MsgFallback
	}
	return &ValidationError{Field: field, Message: msg}
}
