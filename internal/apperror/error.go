package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error tag returned to the client in the `error` field.
type Code string

const (
	CodeInvalidPayload     Code = "invalid_payload"
	CodeUnauthorized       Code = "unauthorized"
	CodeMissingPassword    Code = "missing_password"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeUnsupportedModel   Code = "unsupported_model"
	CodeUpstream           Code = "upstream_error"
	CodeRateLimited        Code = "rate_limited"
	CodeInternal           Code = "internal_error"
)

// Error carries a client-facing code together with the HTTP status it maps to.
type Error struct {
	Code      Code
	Status    int
	Detail    string
	Requested string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Body renders the JSON payload sent to the client.
func (e *Error) Body() map[string]string {
	body := map[string]string{"error": string(e.Code)}
	if e.Detail != "" {
		body["detail"] = e.Detail
	}
	if e.Code == CodeUnsupportedModel {
		body["requested"] = e.Requested
	}
	return body
}

// As extracts an *Error from err, wrapping unknown errors as internal ones.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

func InvalidPayload(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidPayload, Status: http.StatusBadRequest, Detail: fmt.Sprintf(format, args...)}
}

func Unauthorized() *Error {
	return &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized}
}

func MissingPassword() *Error {
	return &Error{Code: CodeMissingPassword, Status: http.StatusBadRequest}
}

func InvalidCredentials() *Error {
	return &Error{Code: CodeInvalidCredentials, Status: http.StatusUnauthorized}
}

func UnsupportedModel(requested string) *Error {
	return &Error{Code: CodeUnsupportedModel, Status: http.StatusUnprocessableEntity, Requested: requested}
}

// Upstream wraps a failure of the completion provider that happened before streaming began.
func Upstream(err error) *Error {
	detail := "upstream request failed"
	if err != nil {
		detail = err.Error()
	}
	return &Error{Code: CodeUpstream, Status: http.StatusBadGateway, Detail: detail, Err: err}
}

func RateLimited() *Error {
	return &Error{Code: CodeRateLimited, Status: http.StatusTooManyRequests}
}
