package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/promo-gateway/internal/pkg/httputil"
	"github.com/ignite/promo-gateway/internal/service/redirects"
)

// writeRedirectError maps redirect service errors to HTTP responses.
// Validation errors surface verbatim; storage errors are sanitized so
// database details (hosts, queries, file paths) never reach API consumers.
func writeRedirectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, redirects.ErrNotFound):
		httputil.NotFound(w, "redirect not found")
	case errors.Is(err, redirects.ErrDuplicatePath):
		httputil.Conflict(w, "a redirect already claims this path")
	case errors.Is(err, redirects.ErrUnknownSite):
		httputil.BadRequest(w, "unknown site")
	case errors.Is(err, redirects.ErrPathReserved):
		httputil.BadRequest(w, "path is reserved by the gateway")
	case errors.Is(err, redirects.ErrInvalidWindow):
		httputil.BadRequest(w, "window end must be after start")
	case isStorageError(err):
		httputil.InternalError(w, err)
	default:
		// Remaining errors come from input validation and are safe to expose.
		httputil.BadRequest(w, err.Error())
	}
}

// isStorageError detects database-flavored failures by message. The
// service layer returns raw driver errors for these, so matching on
// text is the only option without wrapping every call site.
func isStorageError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"pq:", "sql", "database", "connection", "timeout", "deadline"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
