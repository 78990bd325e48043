package rocm

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup for a counter or dimension handle the device
// does not know about.
var ErrNotFound = errors.New("rocm: not found")

// StatusError is a non-success status returned by the hardware layer. Op
// names the failing call so that the error survives propagation with enough
// context to identify which part of the sampling pipeline broke.
type StatusError struct {
	Op     string
	Code   int32
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rocm: %s failed with error code %d: %s", e.Op, e.Code, e.Status)
}
