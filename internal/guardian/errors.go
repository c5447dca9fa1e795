package guardian

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an external scoring call failed.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable" // transport/API error, rate limited, no client
	KindTimeout     ErrorKind = "timeout"
	KindMalformed   ErrorKind = "malformed" // reply could not be parsed
	KindMismatch    ErrorKind = "mismatch"  // reply length differs from the batch
)

// AdapterError reports a failed batch call to an external provider.
// It carries no retry obligation; the caller degrades to heuristic scoring.
type AdapterError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsAdapterError reports whether err is (or wraps) an *AdapterError and
// returns it.
func IsAdapterError(err error) (*AdapterError, bool) {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
