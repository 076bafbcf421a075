package survey

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by saves that target a company without a record.
	ErrNotFound        = errors.New("no record for company")
	ErrInvalidCategory = errors.New("invalid interest category")
	ErrInvalidDetail   = errors.New("invalid detail record")
)

// LoadError reports a record or theme source that could not be read or parsed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed delta pull or push.
type TransportError struct {
	Op       string
	Location string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("delta %s %s: status %d", e.Op, e.Location, e.Status)
	}
	return fmt.Sprintf("delta %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
