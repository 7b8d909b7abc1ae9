package split

import (
	"errors"
	"fmt"
)

// ConflictError reports that a split cannot be applied against the current
// remote state. Conflicts are terminal for the attempt and happen before
// any element is produced; the caller decides whether to re-derive the
// split from fresh data or surface the conflict.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "split conflict: " + e.Reason
}

func conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
