package wpp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAttempted marks a local validation failure. The executor was never called.
	ErrNotAttempted = errors.New("dispatch not attempted")

	ErrFileNotFound    = errors.New("file not found")
	ErrUnknownMimeType = errors.New("cannot determine mime type")
	ErrNotAnImage      = errors.New("not an image, allowed formats png, jpeg and webp")
	ErrEmptyAttachment = errors.New("empty or invalid file or base64")
	ErrMissingID       = errors.New("remote result carries no message id")
)

// NotAttemptedError reports why a send was refused before reaching the page.
type NotAttemptedError struct {
	Op  string
	Err error
}

func (e *NotAttemptedError) Error() string {
	return fmt.Sprintf("%s not attempted: %v", e.Op, e.Err)
}

func (e *NotAttemptedError) Unwrap() []error {
	return []error{ErrNotAttempted, e.Err}
}

func notAttempted(op string, err error) error {
	return &NotAttemptedError{Op: op, Err: err}
}

// DispatchError wraps a rejection from the executor.
type DispatchError struct {
	Script Script
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Script, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
