package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of request failure and its HTTP mapping.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeRateLimited  ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeBadRequest   ErrorCode = "BAD_REQUEST"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// RequestError is a request failure with a stable code and caller-safe
// message. Internal detail stays in the wrapped error and reaches logs only.
type RequestError struct {
	Code       ErrorCode
	Message    string
	RetryAfter int // seconds, only for CodeRateLimited
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// HTTPStatus maps the code to its response status.
func (e *RequestError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string) *RequestError {
	return &RequestError{Code: CodeValidation, Message: msg}
}

func Unauthorized(msg string) *RequestError {
	return &RequestError{Code: CodeUnauthorized, Message: msg}
}

func NotFound(msg string) *RequestError {
	return &RequestError{Code: CodeNotFound, Message: msg}
}

func RateLimited(retryAfter int) *RequestError {
	return &RequestError{
		Code:       CodeRateLimited,
		Message:    "Too many requests, please slow down",
		RetryAfter: retryAfter,
	}
}

func Internal(err error) *RequestError {
	return &RequestError{Code: CodeInternal, Message: "Something went wrong processing your message", Err: err}
}
