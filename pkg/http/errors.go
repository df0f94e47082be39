package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows which status to answer with. Err is kept for
// logs and never serialized.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

var errorCodes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusTooManyRequests:     "ERR_RATE_LIMITED",
	http.StatusInternalServerError: "ERR_INTERNAL",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
}

// Errorf builds an AppError whose code is derived from status.
func Errorf(status int, format string, args ...interface{}) *AppError {
	code, ok := errorCodes[status]
	if !ok {
		code = fmt.Sprintf("ERR_HTTP_%d", status)
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Status: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// Wrap attaches the underlying cause.
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundError(message string) *AppError { return Errorf(http.StatusNotFound, "%s", message) }

func BadRequestError(message string) *AppError { return Errorf(http.StatusBadRequest, "%s", message) }

func UnavailableError(message string) *AppError {
	return Errorf(http.StatusServiceUnavailable, "%s", message)
}
