package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                    = errors.New("not found")
	ErrValidation                  = errors.New("validation failed")
	ErrCapacityExceeded            = errors.New("event has reached its maximum number of participants")
	ErrDuplicateActiveRegistration = errors.New("an active registration for this event already exists")
	ErrRegistrationClosed          = errors.New("registration for this event is not open")
	ErrInvalidTransition           = errors.New("invalid status transition")
	ErrOptionInUse                 = errors.New("registration option is referenced by registrations")
	ErrEventInUse                  = errors.New("event is referenced by registrations")
	ErrDuplicateEmail              = errors.New("email is already in use")
	ErrExternalService             = errors.New("external service failure")
)

// ValidationError describes malformed or out-of-range user input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExternalServiceError wraps a failure of email, documents or the payment processor.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() []error {
	return []error{ErrExternalService, e.Err}
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
