package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/auth"
	"github.com/cmlabs-hris/fieldtime-backend/internal/handler/http/response"
)

// RequireRole lets the request through when the caller holds one of roles
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}
			if !p.Is(roles...) {
				response.HandleError(w, auth.ErrInsufficientRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
