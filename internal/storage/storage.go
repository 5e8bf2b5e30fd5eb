package storage

import "fmt"

// ValidationError reports rejected caller input, e.g. a duplicate topic
// name or an out-of-range digest hour. It surfaces to the caller as-is;
// nothing is retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func errValidation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
