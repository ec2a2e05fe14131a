package apperrors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents the type of error
type ErrorCode string

const (
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrConflict        ErrorCode = "CONFLICT"
	ErrValidation      ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest      ErrorCode = "BAD_REQUEST"
	ErrPaymentRequired ErrorCode = "PAYMENT_REQUIRED"
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
)

// APIError is the error shape every handler responds with.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"error"`
	Field   string    `json:"field,omitempty"`
	Status  int       `json:"-"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func Unauthorized(message string) *APIError {
	return &APIError{Code: ErrUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

func Forbidden(message string) *APIError {
	return &APIError{Code: ErrForbidden, Message: message, Status: http.StatusForbidden}
}

func Conflict(message string) *APIError {
	return &APIError{Code: ErrConflict, Message: message, Status: http.StatusConflict}
}

// Validation creates a VALIDATION_ERROR bound to a request field
func Validation(field, message string) *APIError {
	return &APIError{
		Code:    ErrValidation,
		Message: message,
		Field:   field,
		Status:  http.StatusBadRequest,
	}
}

func BadRequest(message string) *APIError {
	return &APIError{Code: ErrBadRequest, Message: message, Status: http.StatusBadRequest}
}

func PaymentRequired(message string) *APIError {
	return &APIError{Code: ErrPaymentRequired, Message: message, Status: http.StatusPaymentRequired}
}

func Internal(message string) *APIError {
	return &APIError{Code: ErrInternal, Message: message, Status: http.StatusInternalServerError}
}

// RateLimited creates a RATE_LIMITED error
func RateLimited() *APIError {
	return &APIError{Code: ErrRateLimited, Message: "rate limit exceeded", Status: http.StatusTooManyRequests}
}
