package testutil

import (
	"context"
	"net/http"

	id "oddcert/pkg/domain"
	"oddcert/pkg/requestcontext"
)

// Reviewer is a default operator identity for handler tests.
var Reviewer = id.Actor{ID: "reviewer-1", Role: id.RoleOperator}

// Admin is a default admin identity for handler tests.
var Admin = id.Actor{ID: "admin-1", Role: id.RoleAdmin}

// WithActorHeaders sets the gateway identity headers on req, as the upstream
// gateway would.
func WithActorHeaders(req *http.Request, actor id.Actor) *http.Request {
	req.Header.Set("X-Actor-ID", actor.ID)
	req.Header.Set("X-Actor-Role", actor.Role.String())
	return req
}

// WithBearer sets an agent credential on req.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithActor places an actor directly in the request context, skipping the
// identity middleware.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithAgent places the application an agent credential is bound to in the
// request context, skipping the agent auth middleware.
func WithAgent(req *http.Request, appID id.ApplicationID) *http.Request {
	return req.WithContext(requestcontext.WithAgentApplicationID(req.Context(), appID))
}

// ActorContext returns a background context carrying actor.
func ActorContext(actor id.Actor) context.Context {
	return requestcontext.WithActor(context.Background(), actor)
}
