package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"oddcert/internal/agentauth"
	"oddcert/internal/boundary"
	certService "oddcert/internal/certification/service"
	certMemory "oddcert/internal/certification/store/memory"
	"oddcert/internal/discovery"
	"oddcert/internal/platform/metrics"
	"oddcert/internal/session/adapters"
	sessionService "oddcert/internal/session/service"
	sessionMemory "oddcert/internal/session/store/memory"
	id "oddcert/pkg/domain"
	"oddcert/pkg/platform/audit/publisher"
	auditmemory "oddcert/pkg/platform/audit/store/memory"
	"oddcert/pkg/requestcontext"
	"oddcert/pkg/testutil"
)

var applicant = id.Actor{ID: "applicant-1", Role: id.RoleApplicant}

// RouterSuite drives the full stack over memory stores.
type RouterSuite struct {
	suite.Suite
	certs    *certService.Service
	audit    *publisher.Publisher
	auditLog *auditmemory.InMemoryStore
	router   http.Handler
	healthy  bool
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	tokens := agentauth.NewService("router-test-signing-key")

	s.auditLog = auditmemory.NewInMemoryStore()
	s.audit = publisher.NewPublisher(s.auditLog)
	registry := discovery.NewRegistry(discovery.WithLogger(logger))
	appStore := certMemory.New()
	sessionStore := sessionMemory.New()
	directory := sessionService.NewDirectory(sessionStore, 120*time.Second)

	s.certs = certService.New(
		certService.Stores{Applications: appStore, Certificates: appStore, Evidence: appStore, Tx: appStore},
		directory,
		registry,
		certService.WithLogger(logger),
		certService.WithAuditPublisher(s.audit),
		certService.WithCredentialIssuer(tokens),
	)
	sessions := sessionService.New(sessionStore, adapters.NewCertificationAdapter(s.certs), registry,
		sessionService.WithLogger(logger),
		sessionService.WithAuditPublisher(s.audit),
	)

	s.healthy = true
	s.router = NewRouter(Deps{
		Certification: s.certs,
		Sessions:      sessions,
		AgentAuth:     tokens,
		Logger:        logger,
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
		Health: map[string]HealthCheck{
			"store": func(context.Context) error {
				if s.healthy {
					return nil
				}
				return errors.New("down")
			},
		},
	})
}

func (s *RouterSuite) TearDownTest() {
	s.audit.Close()
}

func (s *RouterSuite) do(req *http.Request, wantStatus int) map[string]any {
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(wantStatus, rr.Code, rr.Body.String())
	if rr.Body.Len() == 0 || !strings.Contains(rr.Header().Get("Content-Type"), "json") {
		return nil
	}
	return testutil.DecodeJSON(s.T(), rr)
}

func (s *RouterSuite) as(actor id.Actor, method, path string, body any) *http.Request {
	return testutil.WithActorHeaders(testutil.NewJSONRequest(s.T(), method, path, body), actor)
}

func (s *RouterSuite) agent(token, method, path string, body any) *http.Request {
	return testutil.WithBearer(testutil.NewJSONRequest(s.T(), method, path, body), token)
}

func (s *RouterSuite) transition(appID, state string) map[string]any {
	return s.do(s.as(testutil.Reviewer, http.MethodPatch, "/applications/"+appID+"/state",
		map[string]any{"state": state}), http.StatusOK)
}

// speedEnvelope records violations rather than failing the test.
func speedEnvelope() []byte {
	minV, maxV := 0.0, 100.0
	env, err := boundary.NewEnvelope([]boundary.Boundary{{
		ID:     "speed",
		Name:   "Speed limit",
		Params: &boundary.NumericParams{Parameter: "speed", Min: &minV, Max: &maxV, HardLimit: true},
	}}, boundary.FailPolicy{
		ViolationAction:      boundary.ViolationRecord,
		ConnectionLossAction: boundary.ConnectionLossStop,
		FailClosed:           true,
	})
	if err != nil {
		panic(err)
	}
	data, err := boundary.Encode(env, boundary.FormatJSON)
	if err != nil {
		panic(err)
	}
	return data
}

func (s *RouterSuite) TestHealthAndMetrics() {
	s.Run("healthz answers without identity", func() {
		body := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/healthz"), http.StatusOK)
		s.Equal("ok", body["status"])
	})

	s.Run("readyz reports failing dependencies", func() {
		s.healthy = false
		defer func() { s.healthy = true }()
		body := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/readyz"), http.StatusServiceUnavailable)
		s.Equal("unavailable", body["store"])
	})

	s.Run("metrics are labelled by route pattern", func() {
		missing := id.NewApplicationID().String()
		s.do(s.as(testutil.Reviewer, http.MethodGet, "/applications/"+missing, nil), http.StatusNotFound)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), "oddcert_http_request_duration_seconds")
		s.Contains(rr.Body.String(), "/applications/{id}")
		s.NotContains(rr.Body.String(), missing)
	})

	s.Run("request id is echoed", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/healthz")
		req.Header.Set("X-Request-ID", "req-42")
		rr := testutil.DoRequest(s.router, req)
		s.Equal("req-42", rr.Header().Get("X-Request-ID"))
	})
}

func (s *RouterSuite) TestAccessControl() {
	created := s.do(s.as(applicant, http.MethodPost, "/applications", map[string]any{"name": "Harbour shuttle"}), http.StatusCreated)
	appID := created["id"].(string)

	s.Run("anonymous callers cannot submit", func() {
		s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/applications", map[string]any{"name": "x"}), http.StatusUnauthorized)
	})

	s.Run("another applicant cannot read", func() {
		other := id.Actor{ID: "applicant-2", Role: id.RoleApplicant}
		s.do(s.as(other, http.MethodGet, "/applications/"+appID, nil), http.StatusForbidden)
	})

	s.Run("applicants cannot decide", func() {
		s.do(s.as(applicant, http.MethodPatch, "/applications/"+appID+"/state",
			map[string]any{"state": "approved"}), http.StatusForbidden)
	})

	s.Run("session routes require an agent credential", func() {
		s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/sessions",
			map[string]any{"application_id": appID, "agent_version": "1.0.0"}), http.StatusUnauthorized)
	})

	s.Run("illegal transitions name both states", func() {
		body := s.do(s.as(testutil.Reviewer, http.MethodPatch, "/applications/"+appID+"/state",
			map[string]any{"state": "conformant"}), http.StatusConflict)
		s.Equal("pending", body["current_state"])
		s.Equal("conformant", body["attempted_state"])
	})
}

func (s *RouterSuite) TestCertificationLifecycle() {
	created := s.do(s.as(applicant, http.MethodPost, "/applications",
		map[string]any{"name": "Harbour shuttle", "description": "Autonomous ferry"}), http.StatusCreated)
	appID := created["id"].(string)
	s.Equal("pending", created["state"])

	s.transition(appID, "under_review")
	approved := s.transition(appID, "approved")
	token, _ := approved["agent_credential"].(string)
	s.Require().NotEmpty(token)

	registered := s.do(s.agent(token, http.MethodPost, "/sessions",
		map[string]any{"application_id": appID, "agent_version": "1.4.2"}), http.StatusCreated)
	sessionID := registered["session_id"].(string)
	s.Equal("stop", registered["connection_loss_action"])

	app := s.do(s.as(applicant, http.MethodGet, "/applications/"+appID, nil), http.StatusOK)
	s.Equal("observe", app["state"])

	telemetry := s.do(s.agent(token, http.MethodPost, "/sessions/"+sessionID+"/telemetry", map[string]any{
		"records": []map[string]any{
			{"parameters": map[string]any{"speed": 40}},
			{"parameters": map[string]any{"speed": 60}},
		},
	}), http.StatusOK)
	s.EqualValues(2, telemetry["accepted"])

	put := testutil.NewRawRequest(s.T(), http.MethodPut, "/applications/"+appID+"/envelope", "application/json", string(speedEnvelope()))
	s.do(testutil.WithActorHeaders(put, applicant), http.StatusOK)

	finalized := s.do(s.as(applicant, http.MethodPost, "/applications/"+appID+"/boundaries/finalize", nil), http.StatusOK)
	s.Equal("bounded", finalized["state"])

	s.Run("testing needs an acknowledged envelope", func() {
		body := s.do(s.as(applicant, http.MethodPost, "/applications/"+appID+"/cat72/begin", nil), http.StatusConflict)
		s.Contains(body["reason"], "acknowledged")
	})

	s.do(s.as(applicant, http.MethodPost, "/applications/"+appID+"/envelope/acknowledge", nil), http.StatusOK)
	begun := s.do(s.as(applicant, http.MethodPost, "/applications/"+appID+"/cat72/begin", nil), http.StatusOK)
	s.Equal("testing", begun["state"])

	s.Run("agents read their own envelope", func() {
		body := s.do(s.agent(token, http.MethodGet, "/applications/"+appID+"/envelope", nil), http.StatusOK)
		s.NotNil(body)
	})

	s.Run("out of envelope telemetry is blocked", func() {
		body := s.do(s.agent(token, http.MethodPost, "/sessions/"+sessionID+"/telemetry", map[string]any{
			"records": []map[string]any{
				{"parameters": map[string]any{"speed": 50}},
				{"parameters": map[string]any{"speed": 150}},
			},
		}), http.StatusOK)
		s.EqualValues(1, body["passed"])
		s.EqualValues(1, body["blocked"])
	})

	s.do(s.as(testutil.Reviewer, http.MethodPost, "/applications/"+appID+"/violations/resolve",
		map[string]any{"reason": "speed sensor glitch"}), http.StatusOK)

	progress := s.do(s.as(applicant, http.MethodGet, "/applications/"+appID+"/cat72", nil), http.StatusOK)
	s.Less(progress["percent"].(float64), 100.0)

	result, err := s.certs.Tick(requestcontext.WithTime(context.Background(), time.Now().Add(73*time.Hour)))
	s.Require().NoError(err)
	s.Equal(1, result.Passed)

	status := s.do(s.as(applicant, http.MethodGet, "/applications/"+appID, nil), http.StatusOK)
	s.Equal("conformant", status["state"])
	cert := status["certificate"].(map[string]any)
	number := cert["certificate_number"].(string)
	s.True(strings.HasPrefix(number, "ODDC-"))
	s.NotEmpty(cert["evidence_hash"])

	verified := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/certificates/"+number+"/verify"), http.StatusOK)
	s.Equal(true, verified["valid"])
	s.Equal(cert["evidence_hash"], verified["evidence_hash"])

	ended := s.do(s.agent(token, http.MethodPost, "/sessions/"+sessionID+"/end", nil), http.StatusOK)
	s.Equal("ended", ended["status"])

	parsed, err := id.ParseApplicationID(appID)
	s.Require().NoError(err)
	events, err := s.auditLog.ListByApplication(context.Background(), parsed)
	s.Require().NoError(err)
	s.NotEmpty(events)
}
