// Package result defines the success/error value returned by every provider
// and orchestrator operation.
//
// Operations never use a bare error as their primary channel: a Result carries
// either a typed payload or a human-readable message with an optional cause.
// Callers must handle both variants.
package result

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for logging. The orchestrator does not branch
// on it; every non-exhaustion kind triggers the same fallback.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindTransport     ErrorKind = "transport"
	KindTimeout       ErrorKind = "timeout"
	KindParse         ErrorKind = "parse"
	KindExhausted     ErrorKind = "exhausted"
	KindInvalidInput  ErrorKind = "invalid_input"
	KindCancelled     ErrorKind = "cancelled"
	// KindStorage is a failure of a local collaborator such as the verse store.
	KindStorage ErrorKind = "storage"
)

// Failure is the error variant of a Result.
type Failure struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Result is either Success(value) or Error(message, cause).
type Result[T any] struct {
	value   T
	failure *Failure
}

// Success wraps a payload.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail builds the error variant.
func Fail[T any](kind ErrorKind, message string, cause error) Result[T] {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return Result[T]{failure: &Failure{Kind: kind, Message: message, Cause: cause}}
}

// Errorf builds the error variant with a formatted message and no cause.
func Errorf[T any](kind ErrorKind, format string, args ...any) Result[T] {
	return Fail[T](kind, fmt.Sprintf(format, args...), nil)
}

// From converts a (value, error) pair. A *Failure error keeps its kind;
// any other error is reported as kind.
func From[T any](v T, err error, kind ErrorKind) Result[T] {
	if err == nil {
		return Success(v)
	}
	var f *Failure
	if errors.As(err, &f) {
		return Result[T]{failure: f}
	}
	return Fail[T](kind, err.Error(), err)
}

// Retag carries a failure over to a result of another payload type.
func Retag[T, U any](r Result[U]) Result[T] {
	if r.failure == nil {
		return Fail[T](KindParse, "retag of a successful result", nil)
	}
	return Result[T]{failure: r.failure}
}

func (r Result[T]) IsSuccess() bool {
	return r.failure == nil
}

// Value returns the payload and whether the result is a success.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.failure == nil
}

// Message returns the failure message, or "" for a success.
func (r Result[T]) Message() string {
	if r.failure == nil {
		return ""
	}
	return r.failure.Message
}

// Cause returns the underlying error of a failure, if any.
func (r Result[T]) Cause() error {
	if r.failure == nil {
		return nil
	}
	return r.failure.Cause
}

// Kind returns the failure kind, or "" for a success.
func (r Result[T]) Kind() ErrorKind {
	if r.failure == nil {
		return ""
	}
	return r.failure.Kind
}

// Unwrap converts back to Go's (value, error) convention. The returned error
// is a *Failure.
func (r Result[T]) Unwrap() (T, error) {
	if r.failure != nil {
		return r.value, r.failure
	}
	return r.value, nil
}

// Match calls exactly one of the two handlers.
func (r Result[T]) Match(onSuccess func(T), onError func(*Failure)) {
	if r.failure != nil {
		onError(r.failure)
		return
	}
	onSuccess(r.value)
}

func (r Result[T]) String() string {
	if r.failure != nil {
		return fmt.Sprintf("Error(%s: %s)", r.failure.Kind, r.failure.Message)
	}
	return fmt.Sprintf("Success(%v)", r.value)
}
