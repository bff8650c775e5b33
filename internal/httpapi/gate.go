package httpapi

import (
	"net/http"

	"horizon.shop/internal/auth"
)

// guard runs the guards in order before the handler. The first failure is
// written as the response and the handler never runs.
func (a *API) guard(guards ...auth.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, err := auth.Run(r, guards...)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// subject is the authenticated email; guards guarantee it on protected routes.
func subject(r *http.Request) string {
	s, _ := auth.SubjectFromContext(r.Context())
	return s
}
