package latch

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by a watcher used after Stop.
var ErrStopped = errors.New("latch: watcher stopped")

// DeriveError wraps a failure raised by a subject's derivation for a given
// parameter. It travels down the observe stream of the subscription whose
// derivation failed; the pipeline itself stays alive and a later parameter
// can still derive fresh output.
type DeriveError struct {
	Param any
	Err   error
}

func (e *DeriveError) Error() string {
	return fmt.Sprintf("latch: derive %v: %v", e.Param, e.Err)
}

func (e *DeriveError) Unwrap() error { return e.Err }
