package inquiry

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTokenMismatch = errors.New("public token mismatch")
	ErrEncryption    = errors.New("pii encryption failed")
)

// ValidationError carries the machine-readable code returned to the client.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func invalid(code, detail string) error {
	return &ValidationError{Code: code, Detail: detail}
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Failure is a non-validation error with the response it maps to. The
// wrapped error is logged, never returned to the client.
type Failure struct {
	Status int
	Code   string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Code, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(status int, code string, err error) error {
	return &Failure{Status: status, Code: code, Err: err}
}

// fetchFailure maps a Get error to the public inquiry responses.
func fetchFailure(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fail(http.StatusNotFound, "inquiry_not_found", err)
	}
	return fail(http.StatusInternalServerError, "inquiry_fetch_failed", err)
}
