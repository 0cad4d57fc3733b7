package gantt

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ValidationError rejects a single field of a request.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
