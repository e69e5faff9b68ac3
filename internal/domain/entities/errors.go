package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrEncodingUnavailable means the encoder could not produce a vector.
	ErrEncodingUnavailable = errors.New("encoding unavailable")

	// ErrEmptyIndex is a data condition, not a failure: no entries are loaded.
	ErrEmptyIndex = errors.New("empty index")

	// ErrMissingContextKey is matched by every *MissingContextKeyError.
	ErrMissingContextKey = errors.New("missing context key")

	// ErrFallbackFailure is the only error a caller of Router.Answer sees.
	ErrFallbackFailure = errors.New("fallback failure")

	ErrTimeout              = errors.New("query timed out")
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrIncompatibleSnapshot = errors.New("incompatible snapshot")
	ErrInvalidEntry         = errors.New("invalid knowledge entry")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrSnapshotNotFound     = errors.New("snapshot not found")
)

// MissingContextKeyError names the placeholder that had no context value.
type MissingContextKeyError struct {
	Name string
}

func (e *MissingContextKeyError) Error() string {
	return fmt.Sprintf("missing context key %q", e.Name)
}

// Is lets errors.Is(err, ErrMissingContextKey) match any missing key.
func (e *MissingContextKeyError) Is(target error) bool {
	return target == ErrMissingContextKey
}
