// Package errs defines the error kinds that flow through the object/property
// kernel and the client session layer.
//
// Every failure category of the core collapses into a single Error sum:
// the object/property kernel reports failures as an *Error with one of the
// Kinds below. Not every error in this repo is one: protocol configuration
// and file I/O errors may be plain errors. Callers that need to branch on
// the kind use errors.As.
package errs

import "fmt"

// Kind identifies the category of error.
type Kind string

const (
	// ConversionError: a value could not be represented in the requested kind.
	ConversionError Kind = "conversion_error"
	// NotWritable: attempt to write a read-only property.
	NotWritable Kind = "not_writable"
	// InvalidValue: an onSet predicate rejected the assignment.
	InvalidValue Kind = "invalid_value"
	// OutOfRange: numeric narrowing failed.
	OutOfRange Kind = "out_of_range"
	// InvalidCommand: a wire command was not recognized or malformed.
	InvalidCommand Kind = "invalid_command"
	// InvalidHandle: a wire command referenced a handle the session doesn't hold.
	InvalidHandle Kind = "invalid_handle"
	// ObjectNotTable: GetTableModel was called on an object without a table.
	ObjectNotTable Kind = "object_not_table"
	// UnknownClassId: the loader found no factory for a class_id.
	UnknownClassId Kind = "unknown_class_id"
	// UnknownObject: an id path did not resolve to an object.
	UnknownObject Kind = "unknown_object"
	// LogMessageException: a protocol/interface failure carrying a log code.
	LogMessageException Kind = "log_message_exception"
	// Failed: catch-all for method invocations that failed.
	Failed Kind = "failed"
	// LoadingFailed: malformed top-level world JSON.
	LoadingFailed Kind = "loading_failed"
)

// Error is the concrete error type carried through the core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so
// errors.Is(err, errs.Sentinel(errs.ConversionError)) tests the kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind, carrying cause as context.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinel carries only a Kind, for use with errors.Is as a match target.
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
