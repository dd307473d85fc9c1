package command

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedCommand is returned when a wire document fails to parse or
	// is missing a required field. Always fatal.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrUnsupportedCommand is returned when the command name is not in the
	// known set. Rejected before dispatch, so it is never routed as a fatal
	// handler failure.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrUnsupportedCommandVersion is returned when the command name is known
	// but the version has no registered handler. Fatal.
	ErrUnsupportedCommandVersion = errors.New("unsupported command version")

	// ErrInvalidPayload is returned when a kind-specific payload fails
	// structural validation inside a terminal handler. Fatal.
	ErrInvalidPayload = errors.New("invalid command payload")
)

// FatalError tags a failure that must never be retried. The dispatcher
// service routes fatally failed commands to the dead-letter office instead of
// handing them back to the transport for redelivery.
//
// Classification is by return value, never by unwinding: handlers wrap
// parse/validation failures with Fatal and return them, while transient
// failures (storage connectivity, transaction conflicts) propagate untagged.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal command failure: %v", e.Cause)
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// Fatal wraps err as non-retryable. Returns nil for a nil err; an already
// fatal err is returned unchanged.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Cause: err}
}

// IsFatal reports whether err is tagged as non-retryable.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
