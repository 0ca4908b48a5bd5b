// Package apperrors defines the failure taxonomy shared by the feed clients,
// the normalization layer and the HTTP surface.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing means the integration is disabled or has no base URL.
	ErrConfigurationMissing = errors.New("integration not configured")
	// ErrCredentialsMissing means the configured credential variables could not be resolved.
	ErrCredentialsMissing = errors.New("integration credentials missing")
	// ErrUpstreamUnreachable wraps transport level failures.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	// ErrUpstreamRejected wraps non-success HTTP responses.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrUpstreamMalformed wraps payloads with an unexpected shape. It is a
	// specialisation of ErrUpstreamRejected.
	ErrUpstreamMalformed = fmt.Errorf("%w: malformed payload", ErrUpstreamRejected)
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New constructs an AppError.
func New(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// Message returns the human-facing message of the outermost AppError in the
// chain, or the error text when there is none.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	return err.Error()
}

// IsSoft reports whether a read path should treat err as an empty result
// rather than a failure.
func IsSoft(err error) bool {
	return errors.Is(err, ErrConfigurationMissing) || errors.Is(err, ErrCredentialsMissing)
}

// Malformed builds an ErrUpstreamMalformed carrying a formatted detail.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstreamMalformed, fmt.Sprintf(format, args...))
}
