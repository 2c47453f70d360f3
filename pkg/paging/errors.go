package paging

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by sources.
var (
	// ErrInvalidParams marks a contract violation by the caller.
	ErrInvalidParams = errors.New("invalid load params")

	// ErrMissingKey is returned when a Start or End load has no anchor key.
	ErrMissingKey = fmt.Errorf("%w: missing key", ErrInvalidParams)

	// ErrNoResult is returned by Resolve when a source produced neither a page
	// nor an error.
	ErrNoResult = errors.New("source returned no result")
)

// LoadError is the failure variant of LoadResult.
type LoadError struct {
	// Type is the load direction that failed.
	Type LoadType

	// Cause is the error reported by the dataset or the context.
	Cause error
}

func (*LoadError) isLoadResult() {}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s load failed", e.Type)
	}
	return fmt.Sprintf("%s load failed: %v", e.Type, e.Cause)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// IsInvalidParams reports whether err is a contract violation.
func IsInvalidParams(err error) bool {
	return errors.Is(err, ErrInvalidParams)
}

// IsCancelled reports whether err stems from context cancellation or deadline.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
