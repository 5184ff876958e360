package apperrors

import (
	"context"
	"errors"
	"net/http"
)

func NewValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrCodeNotFound, resource+" not found")
}

func NewForbiddenError(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// NewStorageError wraps a failed durable write or read. Deadline and
// cancellation causes are classified as transient instead.
func NewStorageError(err error, message string) *AppError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapRetryable(err, ErrCodeUnavailable, message)
	}
	return Wrap(err, ErrCodeStorage, message)
}

func NewIdentityResolutionError(err error) *AppError {
	return Wrap(err, ErrCodeIdentityResolution, "identity exchange failed")
}

func NewUnavailableError(err error, message string) *AppError {
	return WrapRetryable(err, ErrCodeUnavailable, message)
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeIdentityResolution:
		return http.StatusUnauthorized
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
