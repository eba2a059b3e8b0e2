package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"oddcert/internal/certification/evidence"
	"oddcert/internal/certification/models"
	id "oddcert/pkg/domain"
	"oddcert/pkg/platform/sentinel"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) newApp() *models.Application {
	app, err := models.NewApplication(id.NewApplicationID(), "Harbour shuttle", "", "applicant-1", t0)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, app))
	return app
}

func (s *InMemoryStoreSuite) TestApplicationsAreCopied() {
	app := s.newApp()
	s.ErrorIs(s.store.Create(s.ctx, app), sentinel.ErrConflict)

	found, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	found.State = models.StateRevoked

	again, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatePending, again.State, "callers never mutate stored records")

	_, err = s.store.FindByID(s.ctx, id.NewApplicationID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListByState() {
	a := s.newApp()
	b := s.newApp()
	b.State = models.StateTesting
	s.Require().NoError(s.store.Update(s.ctx, b))

	pending, err := s.store.ListByState(s.ctx, models.StatePending)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(a.ID, pending[0].ID)

	both, err := s.store.ListByState(s.ctx, models.StatePending, models.StateTesting)
	s.Require().NoError(err)
	s.Len(both, 2)
}

func (s *InMemoryStoreSuite) TestCertificateNumbersPerYear() {
	app := s.newApp()
	issue := func(key string, at time.Time) *models.Certificate {
		cert := &models.Certificate{ApplicationID: app.ID, IdempotencyKey: key, IssuedAt: at, ExpiresAt: at.Add(time.Hour), State: models.CertificateConformant}
		s.Require().NoError(s.store.CreateCertificate(s.ctx, cert))
		return cert
	}

	s.Equal(id.CertificateNumber("ODDC-2026-00001"), issue("a", t0).Number)
	s.Equal(id.CertificateNumber("ODDC-2026-00002"), issue("b", t0.Add(time.Hour)).Number)
	s.Equal(id.CertificateNumber("ODDC-2027-00001"), issue("c", t0.AddDate(1, 0, 0)).Number)

	dup := &models.Certificate{ApplicationID: app.ID, IdempotencyKey: "a", IssuedAt: t0}
	s.ErrorIs(s.store.CreateCertificate(s.ctx, dup), sentinel.ErrConflict)

	latest, err := s.store.FindCertificateByApplication(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(id.CertificateNumber("ODDC-2027-00001"), latest.Number)

	expired, err := s.store.ListExpiredCertificates(s.ctx, t0.Add(90*time.Minute))
	s.Require().NoError(err)
	s.Len(expired, 1)
}

func (s *InMemoryStoreSuite) TestEvidenceSequenceAndAttempts() {
	app := s.newApp()
	s.Require().NoError(s.store.AppendEvidence(s.ctx, []evidence.Record{
		{ApplicationID: app.ID, Attempt: 1, Kind: evidence.KindEvaluation},
		{ApplicationID: app.ID, Attempt: 1, Kind: evidence.KindEvaluation},
		{ApplicationID: app.ID, Attempt: 2, Kind: evidence.KindConnectivityFault},
	}))

	first, err := s.store.ListEvidence(s.ctx, app.ID, 1)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Less(first[0].Sequence, first[1].Sequence)

	second, err := s.store.ListEvidence(s.ctx, app.ID, 2)
	s.Require().NoError(err)
	s.Len(second, 1)
}

func (s *InMemoryStoreSuite) TestRunInTxSerializesPerApplication() {
	app := s.newApp()
	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RunInTx(s.ctx, app.ID, func(ctx context.Context) error {
				n := inside.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()
	s.Equal(int32(1), peak.Load())
}

func (s *InMemoryStoreSuite) TestRunInTxHonoursCancellation() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.store.RunInTx(ctx, id.NewApplicationID(), func(context.Context) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}

func (s *InMemoryStoreSuite) TestShardsAreStableAndSpread() {
	used := map[uint32]bool{}
	for i := 0; i < 512; i++ {
		appID := id.NewApplicationID()
		shard := shardFor(appID)
		s.Less(shard, uint32(numShards))
		s.Equal(shard, shardFor(appID))
		used[shard] = true
	}
	s.Greater(len(used), numShards/2)
}
