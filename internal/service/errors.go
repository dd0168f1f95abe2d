package service

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned by owner/admin operations on a missing job.
	ErrJobNotFound = errors.New("job not found")
	// ErrRecordNotFound is returned when a source record does not exist.
	ErrRecordNotFound = errors.New("source record not found")
	// ErrUnknownJob is returned when a callback references a job id that
	// does not resolve. The ingestor never creates jobs.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobTerminal is returned when a callback arrives for a job that
	// already failed; the result has nowhere valid to go.
	ErrJobTerminal = errors.New("job already terminal")
)

// ValidationError rejects bad input. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RetryNotAllowedError rejects a retry request whose precondition does not
// hold. The job is not mutated.
type RetryNotAllowedError struct {
	Reason string
}

func (e *RetryNotAllowedError) Error() string {
	return "retry not allowed: " + e.Reason
}

// PersistenceError wraps a failure while persisting derived result data.
// It is the trigger for the job's FAILED transition during ingestion; an
// administrator must intervene.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ingestion failed at %q: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
