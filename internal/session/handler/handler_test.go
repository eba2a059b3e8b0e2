package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"oddcert/internal/boundary"
	"oddcert/internal/session/handler/mocks"
	"oddcert/internal/session/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/service.go -package=mocks Service

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (*mocks.MockService, chi.Router) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(mockService, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return mockService, r
}

func newSession(t *testing.T) *models.Session {
	t.Helper()
	session, err := models.NewSession(id.NewSessionID(), id.NewApplicationID(), "1.4.2", nil, t0)
	require.NoError(t, err)
	return session
}

func TestHandleRegister(t *testing.T) {
	t.Run("returns the session and interlock action", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		session := newSession(t)
		mockService.EXPECT().Register(gomock.Any(), models.RegisterRequest{
			ApplicationID:  session.ApplicationID,
			AgentVersion:   "1.4.2",
			BoundariesHint: []string{"speed"},
		}).Return(&models.RegisterResult{Session: session, ConnectionLossAction: boundary.ConnectionLossReturnHome}, nil)

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions", map[string]any{
			"application_id":  session.ApplicationID.String(),
			"agent_version":   "1.4.2",
			"boundaries_hint": []string{"speed"},
		}))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		body := testutil.DecodeJSON(t, rr)
		assert.Equal(t, session.ID.String(), body["session_id"])
		assert.Equal(t, "return_home", body["connection_loss_action"])
	})

	t.Run("requires an agent version", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		mockService.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions", map[string]any{
			"application_id": id.NewApplicationID().String(),
		}))

		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, string(dErrors.CodeValidation))
	})

	t.Run("rejects a malformed application id", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		mockService.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions", map[string]any{
			"application_id": "ferry", "agent_version": "1.0",
		}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("application not accepting agents", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		mockService.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil,
			dErrors.New(dErrors.CodeForbidden, "application does not accept agent sessions in state pending"))

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions", map[string]any{
			"application_id": id.NewApplicationID().String(), "agent_version": "1.0",
		}))

		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})
}

func TestHandleTelemetry(t *testing.T) {
	t.Run("returns per sample violations", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		sessionID := id.NewSessionID()
		mockService.EXPECT().Telemetry(gomock.Any(), sessionID, gomock.Len(2)).DoAndReturn(
			func(_ any, _ id.SessionID, samples []boundary.Sample) (*models.TelemetryResult, error) {
				assert.NotNil(t, samples[1].Parameters)
				return &models.TelemetryResult{
					Accepted: 2, Passed: 1, Blocked: 1,
					Violations: []models.SampleViolations{{
						SampleRef:  "s-1",
						Violations: []boundary.Violation{{BoundaryID: "speed", Message: "speed (150) above maximum (100)"}},
					}},
				}, nil
			})

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions/"+sessionID.String()+"/telemetry", map[string]any{
			"records": []map[string]any{
				{"parameters": map[string]any{"speed": 150}, "action_id": "s-1"},
				{"timestamp": t0.Format(time.RFC3339)},
			},
		}))

		testutil.AssertStatus(t, rr, http.StatusOK)
		body := testutil.DecodeJSON(t, rr)
		assert.EqualValues(t, 2, body["accepted"])
		assert.EqualValues(t, 1, body["blocked"])
		violations := body["violations"].([]any)
		require.Len(t, violations, 1)
		assert.Equal(t, "s-1", violations[0].(map[string]any)["sample_ref"])
	})

	t.Run("empty batch", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		mockService.EXPECT().Telemetry(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions/"+id.NewSessionID().String()+"/telemetry",
			map[string]any{"records": []any{}}))

		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, string(dErrors.CodeValidation))
	})

	t.Run("ended session", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		mockService.EXPECT().Telemetry(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil,
			dErrors.New(dErrors.CodeConflict, "session has ended"))

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions/"+id.NewSessionID().String()+"/telemetry",
			map[string]any{"records": []map[string]any{{"parameters": map[string]any{"speed": 1}}}}))

		testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeConflict))
	})
}

func TestHandleLifecycle(t *testing.T) {
	t.Run("heartbeat", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		session := newSession(t)
		mockService.EXPECT().Heartbeat(gomock.Any(), session.ID).Return(session, nil)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/sessions/"+session.ID.String()+"/heartbeat"))

		testutil.AssertStatus(t, rr, http.StatusOK)
		body := testutil.DecodeJSON(t, rr)
		assert.Equal(t, true, body["online"])
		assert.Equal(t, "active", body["status"])
	})

	t.Run("end without a body", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		session := newSession(t)
		mockService.EXPECT().End(gomock.Any(), session.ID, map[string]any(nil)).Return(session, nil)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/sessions/"+session.ID.String()+"/end"))

		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("end with final stats", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		session := newSession(t)
		mockService.EXPECT().End(gomock.Any(), session.ID, map[string]any{"km": float64(42)}).Return(session, nil)

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sessions/"+session.ID.String()+"/end",
			map[string]any{"final_stats": map[string]any{"km": 42}}))

		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("get reports liveness", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		session := newSession(t)
		mockService.EXPECT().Get(gomock.Any(), session.ID).Return(session, false, nil)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/sessions/"+session.ID.String()))

		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, false, testutil.DecodeJSON(t, rr)["online"])
	})

	t.Run("malformed session id", func(t *testing.T) {
		mockService, router := newTestRouter(t)
		mockService.EXPECT().Heartbeat(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/sessions/abc/heartbeat"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
