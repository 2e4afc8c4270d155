package entity

import (
	"context"
	"errors"
	"fmt"
)

var ErrAborted = errors.New("extraction aborted")

// ObservationError reports that the page could not be read after retries.
type ObservationError struct {
	Op  string
	Err error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("observation failed (%s): %v", e.Op, e.Err)
}

func (e *ObservationError) Unwrap() error { return e.Err }

// CollaboratorError wraps a failed text or vision generation call.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// NavigationError means no pagination strategy advanced the page.
type NavigationError struct {
	Strategy string
	Err      error
}

func (e *NavigationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("navigation failed (%s)", e.Strategy)
	}
	return fmt.Sprintf("navigation failed (%s): %v", e.Strategy, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ParseError means collaborator output did not match the record schema.
type ParseError struct {
	Reason  string
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse failed: %s", e.Reason)
	}
	return fmt.Sprintf("parse failed: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var obs *ObservationError
	var collab *CollaboratorError
	return errors.As(err, &obs) || errors.As(err, &collab) || errors.Is(err, context.DeadlineExceeded)
}

var ErrInvalidRequest = errors.New("invalid extraction request")
