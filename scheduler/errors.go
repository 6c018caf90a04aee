package scheduler

import (
	"errors"
	"fmt"
)

// ErrNoProducts indicates the list-loading collaborator returned nothing.
var ErrNoProducts = errors.New("product list is empty")

// SetupError is a fatal error during run setup (list load, store
// initialization). It short-circuits the run to the failed state before any
// extraction is attempted.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed during %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
