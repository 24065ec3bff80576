package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"jamroom/internal/core/domain"
)

// ErrorCode represents application error codes surfaced at the HTTP edge.
type ErrorCode string

const (
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeIneligible          ErrorCode = "INELIGIBLE"
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeRoomNotReady        ErrorCode = "ROOM_NOT_READY"
	ErrCodeRoomClosed          ErrorCode = "ROOM_CLOSED"
	ErrCodeRateLimit           ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrCodeBackendUnresponsive ErrorCode = "BACKEND_UNRESPONSIVE"
)

// AppError carries a code, caller-facing message and HTTP status.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// FromDomain maps the engine's sentinel errors to their HTTP representation.
func FromDomain(err error) *AppError {
	switch {
	case stderrors.Is(err, domain.ErrRoomNotFound),
		stderrors.Is(err, domain.ErrUserNotFound),
		stderrors.Is(err, domain.ErrTrackNotFound),
		stderrors.Is(err, domain.ErrDeviceNotFound):
		return WrapError(err, ErrCodeNotFound, err.Error(), http.StatusNotFound)
	case stderrors.Is(err, domain.ErrForbidden):
		return WrapError(err, ErrCodeForbidden, err.Error(), http.StatusForbidden)
	case stderrors.Is(err, domain.ErrIneligible):
		return WrapError(err, ErrCodeIneligible, err.Error(), http.StatusForbidden)
	case stderrors.Is(err, domain.ErrAlreadyVoted),
		stderrors.Is(err, domain.ErrDuplicateTrack),
		stderrors.Is(err, domain.ErrInvalidDelegate):
		return WrapError(err, ErrCodeConflict, err.Error(), http.StatusConflict)
	case stderrors.Is(err, domain.ErrRoomNotReady):
		return WrapError(err, ErrCodeRoomNotReady, err.Error(), http.StatusConflict)
	case stderrors.Is(err, domain.ErrRoomClosed):
		return WrapError(err, ErrCodeRoomClosed, err.Error(), http.StatusGone)
	case stderrors.Is(err, domain.ErrBackendUnresponsive):
		return WrapError(err, ErrCodeBackendUnresponsive, err.Error(), http.StatusBadGateway)
	default:
		return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

// GetAppError extracts an AppError from anywhere in the chain, nil if absent.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
