package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"oddcert/internal/boundary"
	"oddcert/internal/certification/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/httputil"
	"oddcert/pkg/requestcontext"
)

const maxEnvelopeBytes = 1 << 20

// Service defines the certification operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, req models.SubmitRequest) (*models.Application, error)
	Get(ctx context.Context, appID id.ApplicationID) (*models.StatusView, error)
	Transition(ctx context.Context, req models.TransitionRequest) (*models.TransitionResult, error)
	GetEnvelope(ctx context.Context, appID id.ApplicationID) (*boundary.Envelope, error)
	DefineEnvelope(ctx context.Context, appID id.ApplicationID, env *boundary.Envelope) (*models.Application, error)
	AcknowledgeEnvelope(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	FinalizeBoundaries(ctx context.Context, appID id.ApplicationID) (*models.TransitionResult, error)
	ResolveViolations(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, int, error)
	BeginCAT72(ctx context.Context, appID id.ApplicationID, override bool) (*models.TransitionResult, error)
	CAT72Status(ctx context.Context, appID id.ApplicationID) (*models.Progress, error)
	Verify(ctx context.Context, number string) (*models.Verification, error)
}

// Handler wires certification endpoints to the certification service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a certification handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts certification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.HandleSubmit)
	r.Route("/applications/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Patch("/state", h.HandleTransition)
		r.Get("/envelope", h.HandleGetEnvelope)
		r.Put("/envelope", h.HandleDefineEnvelope)
		r.Post("/envelope/acknowledge", h.HandleAcknowledge)
		r.Get("/envelope/export", h.HandleExportEnvelope)
		r.Post("/boundaries/finalize", h.HandleFinalize)
		r.Post("/violations/resolve", h.HandleResolve)
		r.Post("/cat72/begin", h.HandleBeginCAT72)
		r.Get("/cat72", h.HandleCAT72Status)
	})
	r.Get("/certificates/{number}/verify", h.HandleVerify)
}

// HandleSubmit handles POST /applications.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	app, err := h.service.Submit(ctx, models.SubmitRequest{Name: req.Name, Description: req.Description})
	if err != nil {
		h.fail(ctx, w, "application submit failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

// HandleGet handles GET /applications/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "application lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(view))
}

// HandleTransition handles PATCH /applications/{id}/state.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Transition(ctx, models.TransitionRequest{
		ApplicationID: appID,
		To:            req.ParsedState(),
		Reason:        req.Reason,
		Override:      req.Override,
	})
	if err != nil {
		h.fail(ctx, w, "transition rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransitionResponse(res))
}

// HandleGetEnvelope handles GET /applications/{id}/envelope. The body is
// JSON null until an envelope exists.
func (h *Handler) HandleGetEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	env, err := h.service.GetEnvelope(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "envelope lookup failed", err)
		return
	}
	if env == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("null\n"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

// HandleDefineEnvelope handles PUT /applications/{id}/envelope. The body is
// the persisted envelope shape as JSON, or YAML when the content type says so.
func (h *Handler) HandleDefineEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "envelope body too large or unreadable"))
		return
	}
	env, err := boundary.Decode(data, bodyFormat(r))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid envelope document",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", appID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.DefineEnvelope(ctx, appID, env)
	if err != nil {
		h.fail(ctx, w, "envelope definition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleAcknowledge handles POST /applications/{id}/envelope/acknowledge.
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	app, err := h.service.AcknowledgeEnvelope(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "envelope acknowledgment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleExportEnvelope handles GET /applications/{id}/envelope/export.
func (h *Handler) HandleExportEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	format, err := boundary.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	env, err := h.service.GetEnvelope(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "envelope export failed", err)
		return
	}
	if env == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "application has no envelope"))
		return
	}
	data, err := boundary.Encode(env, format)
	if err != nil {
		h.fail(ctx, w, "envelope export failed", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode envelope"))
		return
	}
	contentType := "application/json"
	if format == boundary.FormatYAML {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="envelope-`+appID.String()+"."+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleFinalize handles POST /applications/{id}/boundaries/finalize.
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	res, err := h.service.FinalizeBoundaries(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "boundary finalization failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransitionResponse(res))
}

// HandleResolve handles POST /applications/{id}/violations/resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, resolved, err := h.service.ResolveViolations(ctx, appID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "violation resolution failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{Resolved: resolved, Application: app})
}

// HandleBeginCAT72 handles POST /applications/{id}/cat72/begin.
func (h *Handler) HandleBeginCAT72(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var req BeginRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	res, err := h.service.BeginCAT72(ctx, appID, req.Override)
	if err != nil {
		h.fail(ctx, w, "CAT-72 begin rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransitionResponse(res))
}

// HandleCAT72Status handles GET /applications/{id}/cat72.
func (h *Handler) HandleCAT72Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	progress, err := h.service.CAT72Status(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "CAT-72 status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, progress)
}

// HandleVerify handles GET /certificates/{number}/verify. It needs no
// identity: anyone holding a certificate number may check it.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := h.service.Verify(ctx, chi.URLParam(r, "number"))
	if err != nil {
		h.fail(ctx, w, "certificate verification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ApplicationID{}, false
	}
	return appID, true
}

// decodeOptional decodes a JSON body into v when one was sent.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		ctx := r.Context()
		h.logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return false
	}
	return true
}

// fail logs at a level matching the error class and writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func bodyFormat(r *http.Request) boundary.Format {
	if f := r.URL.Query().Get("format"); f != "" {
		if format, err := boundary.ParseFormat(f); err == nil {
			return format
		}
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml") {
		return boundary.FormatYAML
	}
	return boundary.FormatJSON
}
