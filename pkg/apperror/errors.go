package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Error codes.
const (
	CodeValidation        = "VAL_001"
	CodeInvalidTransition = "ORD_001"
	CodeInsufficientFunds = "LED_001"
	CodeForbidden         = "AUTH_001"
	CodeInvalidToken      = "AUTH_002"
	CodeNoDriver          = "ASG_001"
	CodeNotFound          = "RES_001"
	CodeInvalidSignature  = "SEC_001"
	CodeRateLimit         = "RATE_001"
	CodeInternal          = "SYS_001"
	CodeUnavailable       = "SYS_002"
)

// ---- Input ----

// Validation returns a 400 for malformed or out-of-range input.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Domain rules ----

func ErrInvalidTransition(from, to string) *AppError {
	return New(CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to), http.StatusConflict)
}

// ErrInvalidState covers non-order state machines (settlements, payouts).
func ErrInvalidState(message string) *AppError {
	return New(CodeInvalidTransition, message, http.StatusConflict)
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrNoDriverAvailable() *AppError {
	return New(CodeNoDriver, "No driver available", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Authentication & Authorization ----

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Not allowed to act on this resource", http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid signature", http.StatusUnauthorized)
}

// ---- Rate Limiting ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimit, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(CodeInternal, "Encryption service failure", http.StatusInternalServerError, err)
}

func ErrServiceUnavailable(err error) *AppError {
	return Wrap(CodeUnavailable, "Dependency unavailable", http.StatusServiceUnavailable, err)
}
