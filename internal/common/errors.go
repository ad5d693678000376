package common

import "net/http"

// AppError carries the code, message and HTTP status rendered by WriteError.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InvalidInput is a 400 INVALID_INPUT naming the offending field, if any.
func InvalidInput(field, message string, err error) *AppError {
	e := &AppError{Code: "INVALID_INPUT", Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
	if field != "" {
		e.Details = map[string]any{"field": field}
	}
	return e
}

// NotFound is a 404 under a resource code such as PART_NOT_FOUND.
func NotFound(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}

// Conflict is a 409: the request clashes with current stock, cart or lock state.
func Conflict(code, message string, err error, details any) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusConflict, Err: err, Details: details}
}

// Unavailable is a 503 for a dependency the request cannot be served without,
// e.g. a missing rate snapshot. Clients may retry.
func Unavailable(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusServiceUnavailable, Err: err}
}
