// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/agriledger/agriledger/internal/shared"
)

// RespondError maps the engine error taxonomy to HTTP responses. Policy
// rejections carry the domain message as detail so a UI can explain why,
// not just that, the operation failed. Anything outside the taxonomy is an
// internal error and its message is withheld.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrPolicy):
		Problem(w, http.StatusUnprocessableEntity, "Policy Rejection", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
