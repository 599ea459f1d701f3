// Package errors defines the error taxonomy for the highlighting service.
//
// Two families exist and never mix:
//
//   - FileError: a per-file failure that becomes a Failure entry in the
//     response. It never aborts sibling files or the batch.
//   - RequestError: a whole-request rejection detected before any job is
//     created (oversized payload, over-max timeout, malformed frame). It
//     maps to a 4xx status and produces no partial response.
package errors

import (
	"errors"
	"fmt"
)

// FailKind categorizes a per-file failure. Values are stable wire codes.
type FailKind uint8

const (
	// KindInternal covers unexpected conditions inside a job, including
	// recovered panics. Deliberately zero so an unset kind reads as the
	// most conservative outcome.
	KindInternal FailKind = iota
	KindUnknownLanguage
	KindTimedOut
	KindCancelled
	KindInvalidEncoding
)

func (k FailKind) String() string {
	switch k {
	case KindUnknownLanguage:
		return "unknownLanguage"
	case KindTimedOut:
		return "timedOut"
	case KindCancelled:
		return "cancelled"
	case KindInvalidEncoding:
		return "invalidEncoding"
	default:
		return "internalError"
	}
}

// FileError is a typed per-file failure.
type FileError struct {
	Kind    FailKind
	Message string
	Cause   error
}

func (e *FileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FileError) Unwrap() error { return e.Cause }

// Is matches on kind so callers can compare against sentinel constructors.
func (e *FileError) Is(target error) bool {
	var t *FileError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func UnknownLanguage(name string) *FileError {
	return &FileError{Kind: KindUnknownLanguage, Message: fmt.Sprintf("no grammar registered for %q", name)}
}

func TimedOut(msg string) *FileError {
	return &FileError{Kind: KindTimedOut, Message: msg}
}

func Cancelled(msg string) *FileError {
	return &FileError{Kind: KindCancelled, Message: msg}
}

func InvalidEncoding(cause error) *FileError {
	return &FileError{Kind: KindInvalidEncoding, Message: "contents are not valid UTF-8", Cause: cause}
}

func Internal(msg string, cause error) *FileError {
	return &FileError{Kind: KindInternal, Message: msg, Cause: cause}
}

// Recovered converts a recovered panic value into an internal FileError.
// Jobs call this at their boundary so a misbehaving grammar cannot take
// down the worker pool.
func Recovered(p any) *FileError {
	if err, ok := p.(error); ok {
		return Internal("panic during highlighting", err)
	}
	return Internal(fmt.Sprintf("panic during highlighting: %v", p), nil)
}

// KindOf extracts the failure kind from any error, treating non-FileError
// values as internal.
func KindOf(err error) FailKind {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// RequestError rejects an entire request before any job exists.
type RequestError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Cause }

func (e *RequestError) Is(target error) bool {
	var t *RequestError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

const (
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeTimeoutTooLarge = "TIMEOUT_TOO_LARGE"
	CodeMalformedFrame  = "MALFORMED_FRAME"
)

func PayloadTooLarge(size, limit int64) *RequestError {
	return &RequestError{
		Code:    CodePayloadTooLarge,
		Message: fmt.Sprintf("request payload is %d bytes, limit is %d", size, limit),
	}
}

func FileTooLarge(ident uint16, size, limit int64) *RequestError {
	return &RequestError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("file %d is %d bytes, per-file limit is %d", ident, size, limit),
	}
}

func TimeoutTooLarge(requested, max int64) *RequestError {
	return &RequestError{
		Code:    CodeTimeoutTooLarge,
		Message: fmt.Sprintf("requested per-file timeout %dms exceeds maximum %dms", requested, max),
	}
}

func MalformedFrame(msg string, cause error) *RequestError {
	return &RequestError{Code: CodeMalformedFrame, Message: msg, Cause: cause}
}

// Re-exports so callers do not need both this package and stdlib errors.

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
