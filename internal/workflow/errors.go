package workflow

import (
	"net/http"

	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

// Error kinds returned by the engine. Match them with errors.Is; the
// returned values may carry a more specific message or details.
var (
	ErrForbidden         = apperrors.NewDomainError(apperrors.CodeForbidden, "action not permitted for this role", http.StatusForbidden, nil)
	ErrInvalidTransition = apperrors.NewDomainError(apperrors.CodeInvalidTransition, "action not allowed in the current stage", http.StatusConflict, nil)
	ErrEmptyMapping      = apperrors.NewDomainError(apperrors.CodeEmptyMapping, "at least one area must be mapped", http.StatusUnprocessableEntity, nil)
	ErrAlreadyVerdicted  = apperrors.NewDomainError(apperrors.CodeAlreadyVerdicted, "area already has a verdict", http.StatusConflict, nil)
	ErrTicketFinalized   = apperrors.NewDomainError(apperrors.CodeTicketFinalized, "ticket is finalized", http.StatusConflict, nil)
	ErrNotFound          = apperrors.NewDomainError(apperrors.CodeNotFound, "not found", http.StatusNotFound, nil)
	ErrValidation        = apperrors.NewDomainError(apperrors.CodeValidationFailed, "invalid input", http.StatusBadRequest, nil)
)

func forbidden(msg string) error {
	return ErrForbidden.WithMessage(msg)
}

func invalidTransition(msg string, details map[string]any) error {
	return ErrInvalidTransition.WithMessage(msg).WithDetails(details)
}

func invalid(msg string, details map[string]any) error {
	return ErrValidation.WithMessage(msg).WithDetails(details)
}

func areaNotFound(areaID string) error {
	return ErrNotFound.WithMessage("area not found").WithDetails(map[string]any{"area_id": areaID})
}
