package approval

import (
	"errors"

	apperrors "github.com/frahmantamala/payment-approval/internal"
)

var (
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrConcurrentModification = errors.New("payment was modified concurrently")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrPostingFailed          = errors.New("posting failed")
	ErrValidation             = errors.New("validation failed")
)

// ToAppError maps domain errors onto the transport error envelope.
func ToAppError(err error) error {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr
	}

	switch {
	case errors.Is(err, ErrPaymentNotFound):
		return apperrors.NewNotFoundError("payment not found", apperrors.ErrCodePaymentNotFound)
	case errors.Is(err, ErrInvalidTransition):
		return apperrors.NewConflictError(err.Error(), apperrors.ErrCodeInvalidTransition)
	case errors.Is(err, ErrPermissionDenied):
		return apperrors.NewForbiddenError(err.Error(), apperrors.ErrCodePermissionDenied)
	case errors.Is(err, ErrConcurrentModification):
		return apperrors.NewConflictError("payment was modified by another request, reload and retry", apperrors.ErrCodeConcurrentModification)
	case errors.Is(err, ErrStoreUnavailable):
		return apperrors.NewUnavailableError("payment store unavailable, retry later", apperrors.ErrCodeStoreUnavailable).WithCause(err)
	case errors.Is(err, ErrPostingFailed):
		return apperrors.NewExternalError(err.Error(), apperrors.ErrCodePostingFailed)
	case errors.Is(err, ErrValidation):
		return apperrors.NewValidationError(err.Error(), apperrors.ErrCodeValidationFailed)
	default:
		return apperrors.NewInternalError("internal server error", err)
	}
}
