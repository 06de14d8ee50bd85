// Package errs defines the error taxonomy described in spec.md §7. It is a
// plain set of typed errors wrapped the way the teacher wraps errors
// throughout (fmt.Errorf("...: %w", err)) rather than a heavyweight error
// framework -- the teacher never imports one, and nothing in the retrieval
// pack does either, so none is introduced here (see DESIGN.md).
package errs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an ORM lookup targets a document that does
// not exist during an update.
var ErrNotFound = errors.New("document not found")

// Internal wraps I/O, mutex-poisoning-equivalent, and serialization
// failures whose retry policy is left to the caller.
type Internal struct {
	Op  string
	Err error
}

func (e *Internal) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

func (e *Internal) Unwrap() error { return e.Err }

// NewInternal wraps err as an Internal error tagged with the operation
// that failed.
func NewInternal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Internal{Op: op, Err: err}
}

// InvalidProperty is the merge-time error surfaced to the client as a
// per-object SetError: a required property was left empty or omitted, or a
// value had the wrong shape.
type InvalidProperty struct {
	Property string
	Message  string
}

func (e *InvalidProperty) Error() string {
	return fmt.Sprintf("invalid property %q: %s", e.Property, e.Message)
}

// NewInvalidProperty constructs an InvalidProperty error.
func NewInvalidProperty(property, message string) error {
	return &InvalidProperty{Property: property, Message: message}
}

// DataCorruption marks a log entry, merged-change bitmap, or metadata blob
// that failed to decode. It is fatal to the operation that produced it but
// must never panic the process -- callers log it via pkg/log and abort
// just the affected driver/request.
type DataCorruption struct {
	Context string
	Err     error
}

func (e *DataCorruption) Error() string {
	return fmt.Sprintf("data corruption (%s): %v", e.Context, e.Err)
}

func (e *DataCorruption) Unwrap() error { return e.Err }

// NewDataCorruption wraps err as a DataCorruption error tagged with context
// describing what failed to decode.
func NewDataCorruption(context string, err error) error {
	return &DataCorruption{Context: context, Err: err}
}
