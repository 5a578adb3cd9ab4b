package httpapi

import (
	"net/http"

	"github.com/forgetful-ai/forgetful/internal/apperr"
)

// statusFor maps an apperr.Kind to its HTTP status. This is the one
// place in the codebase that performs this translation; handlers must
// never inspect err text or type-switch on a storage error directly.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.AlreadyLinked:
		return http.StatusConflict
	case apperr.PermissionDenied:
		return http.StatusForbidden
	case apperr.Timeout:
		return http.StatusGatewayTimeout
	case apperr.Cancelled:
		return 499 // client closed request, matches nginx's non-standard convention
	default:
		return http.StatusInternalServerError
	}
}
