// internal/failure/failure.go
package failure

import (
	"errors"
	"fmt"
)

// Code is a string type used for structured error reporting across the session lifecycle.
// Using a custom type ensures that only predefined constants can be used where a
// Code is expected.
type Code string

const (
	// -- Startup (fatal, pre-flight or spawn) --
	CodeDependencyNotFound  Code = "DEPENDENCY_NOT_FOUND"
	CodeProcessSpawnFailed  Code = "PROCESS_SPAWN_FAILED"
	CodeConnectionFailed    Code = "CONNECTION_FAILED"
	CodeRegistryWriteFailed Code = "REGISTRY_WRITE_FAILED"
	CodeSessionActive       Code = "SESSION_ACTIVE"
	CodeMissingCredentials  Code = "MISSING_CREDENTIALS"

	// -- Flow --
	CodeElementNotFound  Code = "ELEMENT_NOT_FOUND"
	CodeChallengeTimeout Code = "CHALLENGE_TIMEOUT"

	// -- Teardown --
	CodeRegistryNotFound     Code = "REGISTRY_NOT_FOUND"
	CodeInvalidRegistryEntry Code = "INVALID_REGISTRY_ENTRY"
	CodeTerminationFailed    Code = "TERMINATION_FAILED"

	CodeNotImplemented Code = "NOT_IMPLEMENTED"
)

// Sentinels for errors.Is matching. Any *Error carrying the same Code matches.
var (
	ErrDependencyNotFound   = &Error{Code: CodeDependencyNotFound}
	ErrProcessSpawnFailed   = &Error{Code: CodeProcessSpawnFailed}
	ErrConnectionFailed     = &Error{Code: CodeConnectionFailed}
	ErrRegistryWriteFailed  = &Error{Code: CodeRegistryWriteFailed}
	ErrSessionActive        = &Error{Code: CodeSessionActive}
	ErrMissingCredentials   = &Error{Code: CodeMissingCredentials}
	ErrElementNotFound      = &Error{Code: CodeElementNotFound}
	ErrChallengeTimeout     = &Error{Code: CodeChallengeTimeout}
	ErrRegistryNotFound     = &Error{Code: CodeRegistryNotFound}
	ErrInvalidRegistryEntry = &Error{Code: CodeInvalidRegistryEntry}
	ErrTerminationFailed    = &Error{Code: CodeTerminationFailed}
	ErrNotImplemented       = &Error{Code: CodeNotImplemented}
)

// Error carries a taxonomy code, the step that failed and the underlying cause.
type Error struct {
	Code Code
	Step string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Step != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Step)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match on Code so that sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Step == "" || t.Step == e.Step)
}

// New creates an *Error for the given code and step.
func New(code Code, step string, err error) *Error {
	return &Error{Code: code, Step: step, Err: err}
}

// Newf creates an *Error whose cause is a formatted message.
func Newf(code Code, step, format string, args ...interface{}) *Error {
	return &Error{Code: code, Step: step, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the Code from the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// StepOf extracts the Step from the first *Error in err's chain, or "" if none.
func StepOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Step
	}
	return ""
}
