package scan

import (
	"errors"
	"fmt"
)

// ErrorKind classifies scan failures.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindEmptyRepository  ErrorKind = "empty_repository"
)

// Error is returned by Scan when the root cannot be used.
type Error struct {
	Kind ErrorKind
	Root string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scan %s: %s: %v", e.Root, e.Kind, e.Err)
	}
	return fmt.Sprintf("scan %s: %s", e.Root, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the scan error kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
