package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
	// cause is the wrapped error, nil for errors created with New.
	cause error
}

func annotate(msg string, cause error, attrs []slog.Attr) *AnnotatedError {
	var pcs [1]uintptr
	// Skip runtime.Callers, annotate and the exported constructor.
	runtime.Callers(3, pcs[:]) //nolint:mnd // see above
	return &AnnotatedError{
		msg:   msg,
		pc:    pcs[0],
		attrs: attrs,
		cause: cause,
	}
}

// New creates a new error annotated with the caller's source location and the given attributes.
func New(msg string, attrs ...slog.Attr) error {
	return annotate(msg, nil, attrs)
}

// Wrap annotates err with a message describing the failed action and optional attributes.
//
// Wrap returns nil when err is nil so that it can be used directly in return statements.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return annotate(msg, err, attrs)
}

// NewSentinel creates a plain error without other context that can be used as sentinel error that can be
// detected with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Error implements error interface.
func (e *AnnotatedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

// Unwrap returns the wrapped error.
func (e *AnnotatedError) Unwrap() error {
	return e.cause
}

// Source returns the file:line where the error was created or wrapped.
func (e *AnnotatedError) Source() string {
	frames := runtime.CallersFrames([]uintptr{e.pc})
	frame, _ := frames.Next()
	return fmt.Sprintf("%s:%d", frame.File, frame.Line)
}

// LogValue formats the error for useful logging.
func (e *AnnotatedError) LogValue() slog.Value {
	attrs := append([]slog.Attr{slog.String("source", e.Source())}, e.attrs...)
	return slog.GroupValue(attrs...)
}

// SlogError returns an "error" attribute with the message and the annotations of every AnnotatedError
// found in the chain of err.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	attrs := []slog.Attr{slog.String("message", err.Error())}
	var trace []string
	walk(err, func(e error) {
		annotated, ok := e.(*AnnotatedError) //nolint:errorlint // only the current link is inspected
		if !ok {
			return
		}
		trace = append(trace, annotated.msg+" ("+annotated.Source()+")")
		attrs = append(attrs, annotated.attrs...)
	})
	if len(trace) > 0 {
		attrs = append(attrs, slog.Any("trace", trace))
	}
	return slog.Attr{Key: "error", Value: slog.GroupValue(attrs...)}
}

// walk visits err and every error it wraps depth-first, including the branches of joined errors.
func walk(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)
	switch x := err.(type) { //nolint:errorlint // we are walking the chain manually
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			walk(e, visit)
		}
	case interface{ Unwrap() error }:
		walk(x.Unwrap(), visit)
	}
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
