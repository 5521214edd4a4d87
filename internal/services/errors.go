package services

import "errors"

// ErrInvalidCredentials is returned by login for an unknown email or a
// wrong password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ValidationError reports client input that cannot be accepted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
