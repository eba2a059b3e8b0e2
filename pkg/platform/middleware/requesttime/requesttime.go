// Package requesttime pins one "now" per HTTP request. State transitions,
// audit events and heartbeat timestamps recorded while serving a request all
// share it.
package requesttime

import (
	"net/http"
	"time"

	"oddcert/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
