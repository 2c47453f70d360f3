package pager

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// Common errors returned by the pager.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotLoaded is returned by Append and Prepend before the first Refresh.
	ErrNotLoaded = errors.New("pager has no loaded pages")
)

// ErrorClass represents a classification of load failures.
type ErrorClass string

const (
	// ErrorClassInvalid represents contract violations by the caller.
	ErrorClassInvalid ErrorClass = "invalid"

	// ErrorClassCancelled represents context cancellation or deadline.
	ErrorClassCancelled ErrorClass = "cancelled"

	// ErrorClassTransient represents dataset failures that may succeed later.
	ErrorClassTransient ErrorClass = "transient"
)

// Classify maps a load error to its class.
func Classify(err error) ErrorClass {
	switch {
	case paging.IsInvalidParams(err):
		return ErrorClassInvalid
	case paging.IsCancelled(err):
		return ErrorClassCancelled
	default:
		return ErrorClassTransient
	}
}

// OpError records which pager operation failed.
type OpError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("pager %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *OpError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassInvalid:
		// Retrying cannot fix the params
		return false
	case ErrorClassCancelled:
		return false
	case ErrorClassTransient:
		return true
	default:
		return false
	}
}
