package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"oddcert/internal/boundary"
	"oddcert/internal/session/models"
	"oddcert/internal/session/ports"
	id "oddcert/pkg/domain"
	"oddcert/pkg/platform/audit"
	"oddcert/pkg/requestcontext"
)

// errSkip aborts an Execute whose precondition no longer holds.
var errSkip = errors.New("skip")

// SweepResult summarises one sweep.
type SweepResult struct {
	Active  int
	Ended   int
	Offline int
	Faults  int
}

// Sweep checks every active session once. It ends sessions silent for longer
// than the end-after period, opens an offline episode for sessions past the
// heartbeat timeout or outside a connectivity boundary, and raises one
// connectivity fault per episode for applications under test. Running it
// twice at the same instant changes nothing the second time.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)

	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	views := make(map[id.ApplicationID]*ports.ApplicationView)
	for _, session := range active {
		if _, ok := views[session.ApplicationID]; ok {
			continue
		}
		view, err := s.certification.View(ctx, session.ApplicationID)
		if err != nil {
			s.logger.WarnContext(ctx, "sweep could not load application",
				"application_id", session.ApplicationID.String(),
				"error", err,
			)
		}
		views[session.ApplicationID] = view
	}

	outcomes := make([]sweepOutcome, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, session := range active {
		g.Go(func() error {
			outcomes[i] = s.sweepOne(gctx, session, views[session.ApplicationID], now)
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{Active: len(active)}
	for _, o := range outcomes {
		switch o {
		case outcomeEnded:
			res.Ended++
		case outcomeOffline:
			res.Offline++
		case outcomeFault:
			res.Offline++
			res.Faults++
		}
	}
	s.metrics.ObserveSweep(res.Active-res.Ended, time.Since(start))
	if res.Ended > 0 || res.Offline > 0 {
		s.logger.InfoContext(ctx, "session sweep completed",
			"active", res.Active,
			"ended", res.Ended,
			"offline", res.Offline,
			"faults", res.Faults,
		)
	}
	return res, nil
}

type sweepOutcome int

const (
	outcomeNone sweepOutcome = iota
	outcomeEnded
	outcomeOffline
	outcomeFault
)

func (s *Service) sweepOne(ctx context.Context, session *models.Session, view *ports.ApplicationView, now time.Time) sweepOutcome {
	lastSeen := session.LastSeen()

	if now.Sub(lastSeen) > s.endAfter {
		if s.endSilent(ctx, session, now) {
			return outcomeEnded
		}
		return outcomeNone
	}

	var violations []boundary.Violation
	if view != nil {
		violations = boundary.EvaluateConnectivity(view.Envelope, now, lastSeen)
	}
	if session.Online(now, s.heartbeatTimeout) && len(violations) == 0 {
		return outcomeNone
	}
	if session.ContactLost {
		return outcomeNone
	}

	_, err := s.sessions.Execute(ctx, session.ID,
		func(m *models.Session) error {
			// Contact resumed or another replica already opened the episode.
			if !m.IsActive() || m.ContactLost || !m.LastSeen().Equal(lastSeen) {
				return errSkip
			}
			return nil
		},
		func(m *models.Session) {
			m.ApplyContactLost()
		},
	)
	if errors.Is(err, errSkip) {
		return outcomeNone
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark session offline",
			"session_id", session.ID.String(),
			"error", err,
		)
		return outcomeNone
	}

	s.metrics.IncrementOffline()
	s.emit(ctx, audit.Event{
		Action:        string(audit.EventSessionOffline),
		ApplicationID: session.ApplicationID,
		SessionID:     session.ID,
		Reason:        offlineReason(violations),
	})
	s.logger.WarnContext(ctx, "agent lost contact",
		"application_id", session.ApplicationID.String(),
		"session_id", session.ID.String(),
		"last_seen", lastSeen,
		"connectivity_violations", len(violations),
	)

	if view == nil || !view.Testing {
		return outcomeOffline
	}
	fault := models.ConnectivityFault{
		ApplicationID: session.ApplicationID,
		SessionID:     session.ID,
		LastSeen:      lastSeen,
		DetectedAt:    now,
		Violations:    violations,
	}
	if err := s.certification.ConnectivityFault(ctx, fault); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver connectivity fault",
			"application_id", session.ApplicationID.String(),
			"session_id", session.ID.String(),
			"error", err,
		)
		return outcomeOffline
	}
	s.metrics.IncrementConnectivityFault()
	return outcomeFault
}

func (s *Service) endSilent(ctx context.Context, session *models.Session, now time.Time) bool {
	lastSeen := session.LastSeen()
	ended, err := s.sessions.Execute(ctx, session.ID,
		func(m *models.Session) error {
			if !m.IsActive() || !m.LastSeen().Equal(lastSeen) {
				return errSkip
			}
			return nil
		},
		func(m *models.Session) {
			m.ApplyEnd(now, models.EndReasonTimeout, nil)
		},
	)
	if errors.Is(err, errSkip) {
		return false
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to end silent session",
			"session_id", session.ID.String(),
			"error", err,
		)
		return false
	}
	s.dropActor(ended.ID)
	s.metrics.IncrementEnded(models.EndReasonTimeout)
	s.emit(ctx, audit.Event{
		Action:        string(audit.EventSessionEnded),
		ApplicationID: ended.ApplicationID,
		SessionID:     ended.ID,
		Reason:        models.EndReasonTimeout,
	})
	return true
}

func offlineReason(violations []boundary.Violation) string {
	if len(violations) == 0 {
		return "heartbeat_timeout"
	}
	return "connectivity_boundary:" + violations[0].BoundaryID
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "session sweep failed", "error", err)
			}
		}
	}
}
