package space

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the space. Use errors.Is to test for them.
var (
	// ErrInvalidArgument indicates a missing or malformed input (nil template, empty tag,
	// non-positive duration where one is required).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTuple indicates a tuple that cannot be stored, e.g. one without a tag.
	ErrInvalidTuple = errors.New("invalid tuple")

	// ErrDuplicateID indicates two tuples with the same id in one bucket. This is an
	// internal invariant violation and points at id allocation corruption.
	ErrDuplicateID = errors.New("duplicate tuple id")

	// ErrClosed is returned by operations on a space that has been closed.
	ErrClosed = errors.New("space closed")
)

// ObjectError wraps any failure of Write so callers can tell "write failed" apart
// from the empty result of a read or take.
type ObjectError struct {
	Tag string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("failed to write tuple with tag %q: %v", e.Tag, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ObjectError) Unwrap() error {
	return e.Err
}

// IsInvalidArgument reports whether err was caused by invalid caller input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrInvalidTuple)
}

// IsDuplicateID reports whether err signals id allocation corruption.
func IsDuplicateID(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
