package telemetry

import "fmt"

// NewError creates a new error with a message, matching the teacher's
// utils.NewError.
func NewError(msg string) error {
	return fmt.Errorf("%s", msg)
}

// WrapError wraps an error with additional context, matching the
// teacher's utils.WrapError.
func WrapError(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// TimeoutError creates a timeout error, matching the teacher's
// utils.TimeoutError.
func TimeoutError(operation string) error {
	return fmt.Errorf("%s: operation timed out", operation)
}
