package common

import "net/http"

// AppError is an error rendered to API clients with its own code and status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Code + ": " + e.Err.Error()
	default:
		return e.Code + ": " + e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// NotFound reports a missing cart or line.
func NotFound(err error) *AppError {
	return NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
}

// BadRequest reports a malformed request.
func BadRequest(message string, err error) *AppError {
	return NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
}

// Conflict reports a request that collided with concurrent work on the same cart.
func Conflict(message string, err error) *AppError {
	return NewAppError("CONFLICT", message, http.StatusConflict, err)
}
