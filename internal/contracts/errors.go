package contracts

import (
	"errors"
	"fmt"
)

// Error taxonomy. Provider-level errors are recovered inside the
// acquisition chain; only persistence failures leave a stage.
var (
	// ErrProviderUnavailable covers network errors, timeouts, non-2xx and empty payloads
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrMalformedSchema covers payloads that parsed but lack the expected fields
	ErrMalformedSchema = errors.New("malformed upstream schema")
	// ErrInsufficientHistory marks an instrument with too few closed bars
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrUndefinedSignal marks a signal whose inputs cannot produce a finite value
	ErrUndefinedSignal = errors.New("undefined signal")
)

// PersistenceError is a failed write or read of a durable artifact
type PersistenceError struct {
	Artifact string // raw_snapshot, metrics_matrix, history
	Path     string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("persist %s: %v", e.Artifact, e.Err)
	}
	return fmt.Sprintf("persist %s (%s): %v", e.Artifact, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err is, or wraps, a PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Unavailable wraps cause as ErrProviderUnavailable
func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProviderUnavailable, fmt.Sprintf(format, args...))
}

// Malformed wraps cause as ErrMalformedSchema
func Malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedSchema, fmt.Sprintf(format, args...))
}
