// Package errs provides the structured error type used across judgecore,
// adapted from the judge's own pkg/errors to the evaluation core's
// client/internal error taxonomy.
package errs

import (
	"fmt"
	"runtime"
	"strings"
)

// Error carries a taxonomy code, a message, structured details, and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error carrying code's default message.
func New(code Code) *Error {
	return &Error{Code: code, Message: code.Message(), Stack: getStack(2)}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: getStack(2)}
}

// Wrap wraps err under code. If err is already *Error its code is updated.
func Wrap(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e.Code = code
		return e
	}
	return &Error{Code: code, Message: err.Error(), Err: err, Stack: getStack(2)}
}

// Wrapf wraps err under code with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err, Stack: getStack(2)}
}

// WithDetail attaches a key/value detail and returns the receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithMessage overrides the message and returns the receiver.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// CodeOf extracts the Code from any error, defaulting to Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return Internal
}

// As extracts *Error from any error, wrapping non-*Error values as Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Wrap(err, Internal)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

func getStack(skip int) string {
	const maxDepth = 10
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if strings.Contains(frame.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		b.WriteString(fmt.Sprintf("\n\t%s:%d %s", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return b.String()
}
