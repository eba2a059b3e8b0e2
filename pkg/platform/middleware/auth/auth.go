// Package auth establishes who is calling. Reviewers and applicants are
// identified by headers set by the upstream gateway; agents present a bearer
// credential bound to one application.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "oddcert/pkg/domain"
	request "oddcert/pkg/platform/middleware/request"
	"oddcert/pkg/requestcontext"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// AgentValidator validates an agent credential and returns the application
// it is bound to.
type AgentValidator interface {
	ValidateToken(tokenString string) (id.ApplicationID, error)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// Identity trusts the gateway's actor headers. Requests without them pass
// through anonymous; services decide whether that is enough. A role header
// outside the known roles is rejected.
func Identity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := strings.TrimSpace(r.Header.Get(HeaderActorID))
			if actorID == "" {
				next.ServeHTTP(w, r)
				return
			}
			role, err := id.ParseRole(r.Header.Get(HeaderActorRole))
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "rejected actor role header",
					"request_id", request.GetRequestID(ctx),
					"actor_id", actorID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "unknown actor role")
				return
			}
			ctx := requestcontext.WithActor(r.Context(), id.Actor{ID: actorID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAgent demands a valid agent bearer credential.
func RequireAgent(validator AgentValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			appID, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			ctx = requestcontext.WithAgentApplicationID(ctx, appID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AllowAgent accepts an optional agent credential. Requests without an
// Authorization header pass through; a present but invalid credential is
// rejected.
func AllowAgent(validator AgentValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	required := RequireAgent(validator, logger)
	return func(next http.Handler) http.Handler {
		withAgent := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			withAgent.ServeHTTP(w, r)
		})
	}
}
