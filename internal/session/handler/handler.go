package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"oddcert/internal/boundary"
	"oddcert/internal/session/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/httputil"
	"oddcert/pkg/requestcontext"
)

// Service defines the session operations exposed to agents.
type Service interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error)
	Heartbeat(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Telemetry(ctx context.Context, sessionID id.SessionID, samples []boundary.Sample) (*models.TelemetryResult, error)
	End(ctx context.Context, sessionID id.SessionID, finalStats map[string]any) (*models.Session, error)
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, bool, error)
}

// Handler wires session endpoints to the session manager. Every route
// expects the agent credential middleware in front of it.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts session endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.HandleRegister)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/heartbeat", h.HandleHeartbeat)
		r.Post("/telemetry", h.HandleTelemetry)
		r.Post("/end", h.HandleEnd)
	})
}

// HandleRegister handles POST /sessions.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Register(ctx, models.RegisterRequest{
		ApplicationID:  req.ParsedApplicationID(),
		AgentVersion:   req.AgentVersion,
		BoundariesHint: req.BoundariesHint,
	})
	if err != nil {
		h.fail(ctx, w, "session registration failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RegisterResponse{
		SessionID:            res.Session.ID,
		ConnectionLossAction: res.ConnectionLossAction,
	})
}

// HandleHeartbeat handles POST /sessions/{id}/heartbeat.
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Heartbeat(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "heartbeat rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{Session: session, Online: true})
}

// HandleTelemetry handles POST /sessions/{id}/telemetry.
func (h *Handler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TelemetryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Telemetry(ctx, sessionID, req.Records)
	if err != nil {
		h.fail(ctx, w, "telemetry rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleEnd handles POST /sessions/{id}/end. The body is optional.
func (h *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req EndRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	session, err := h.service.End(ctx, sessionID, req.FinalStats)
	if err != nil {
		h.fail(ctx, w, "session end failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{Session: session})
}

// HandleGet handles GET /sessions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, online, err := h.service.Get(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "session lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{Session: session, Online: online})
}

func sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sid, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SessionID{}, false
	}
	return sid, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
