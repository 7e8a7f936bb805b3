package scans

import "fmt"

// ValidationError marks synchronous input errors so the HTTP layer can map
// them to 400 before any ScanRecord is created.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// NewValidationError builds a validation error with a fixed message. Used by
// the HTTP layer for input problems detected before the service is called.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}
