package handler

import (
	"errors"
	"net/http"

	"projectstream/internal/model"
)

// statusFor maps the sentinel error kinds onto HTTP status codes. Unknown
// errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrDependencyNotSatisfied):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrIntegrity):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
