package http

import (
	"net/http"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/auth"
	"github.com/cmlabs-hris/fieldtime-backend/internal/handler/http/middleware"
	"github.com/cmlabs-hris/fieldtime-backend/internal/handler/http/response"
)

// principal writes 401 and returns false when the request is anonymous.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok || p.UserID == "" {
		response.Unauthorized(w, "Unauthorized")
		return auth.Principal{}, false
	}
	return p, true
}

// supervisors may act on data of other employees.
var supervisors = []auth.Role{auth.RoleProjectManager, auth.RoleHRManager, auth.RoleSystemAdmin}
