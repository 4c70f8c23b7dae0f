// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/recon/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrBadRequest = errors.New("bad request")
)

// ErrorStatus maps a domain sentinel to an HTTP status and problem title.
type ErrorStatus struct {
	Err    error
	Status int
	Title  string
}

// RespondError maps errors to RFC7807 responses. Package specific mappings
// are consulted before the shared ones.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorStatus) {
	var ve *shared.ValidationError
	if errors.As(err, &ve) {
		WriteProblem(w, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: ve.Error(),
			Field:  ve.Field,
		})
		return
	}
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			Problem(w, m.Status, m.Title, err.Error())
			return
		}
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
