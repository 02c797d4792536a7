// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/farmlink/farmlink/internal/shared"
)

// StatusFor maps an error to its HTTP status code through the domain error taxonomy.
func StatusFor(err error) int {
	de, ok := shared.AsDomainError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if de.Code == shared.CodePermissionDenied {
		return http.StatusForbidden
	}
	switch de.Category() {
	case shared.CategoryValidation:
		return http.StatusBadRequest
	case shared.CategoryStateConflict:
		return http.StatusConflict
	case shared.CategoryReferential:
		return http.StatusNotFound
	case shared.CategoryConcurrency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the failure envelope. Errors without a domain code are
// reported as INTERNAL with a generic message.
func RespondError(w http.ResponseWriter, err error) {
	de, ok := shared.AsDomainError(err)
	if !ok {
		de = shared.ErrInternal
	}
	JSON(w, StatusFor(err), Fail(de))
}
