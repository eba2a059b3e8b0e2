//go:build integration

package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"oddcert/internal/session/models"
	sessionredis "oddcert/internal/session/store/redis"
	id "oddcert/pkg/domain"
	"oddcert/pkg/platform/sentinel"
	"oddcert/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *sessionredis.RedisStore
	now   time.Time
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = sessionredis.NewRedis(s.redis.Client, sessionredis.WithEndedRetention(time.Hour))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *RedisStoreSuite) create(appID id.ApplicationID) *models.Session {
	session, err := models.NewSession(id.NewSessionID(), appID, "agent/2.1", []string{"speed"}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), session))
	return session
}

func (s *RedisStoreSuite) TestCreateAndFind() {
	session := s.create(id.NewApplicationID())

	found, err := s.store.FindByID(context.Background(), session.ID)
	s.Require().NoError(err)
	s.Equal(session.ApplicationID, found.ApplicationID)
	s.Equal([]string{"speed"}, found.BoundariesHint)
	s.True(found.StartedAt.Equal(session.StartedAt))
}

func (s *RedisStoreSuite) TestCreateDuplicateConflicts() {
	session := s.create(id.NewApplicationID())
	s.ErrorIs(s.store.Create(context.Background(), session), sentinel.ErrConflict)
}

func (s *RedisStoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(context.Background(), id.NewSessionID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestEndRemovesFromActiveIndex() {
	ctx := context.Background()
	appID := id.NewApplicationID()
	ended := s.create(appID)
	live := s.create(appID)

	_, err := s.store.Execute(ctx, ended.ID, (*models.Session).CanAccept, func(m *models.Session) {
		m.ApplyEnd(s.now.Add(time.Minute), models.EndReasonAgent, map[string]any{"samples": 3.0})
	})
	s.Require().NoError(err)

	active, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(live.ID, active[0].ID)

	byApp, err := s.store.ListByApplication(ctx, appID)
	s.Require().NoError(err)
	s.Len(byApp, 2)

	ttl, err := s.redis.Client.TTL(ctx, "oddcert:session:"+ended.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0), "ended sessions expire")
}

// TestConcurrentExecuteLosesNoUpdates verifies that WATCH conflicts are
// retried rather than overwriting a concurrent tally.
func (s *RedisStoreSuite) TestConcurrentExecuteLosesNoUpdates() {
	ctx := context.Background()
	session := s.create(id.NewApplicationID())

	const writers = 4
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, session.ID, (*models.Session).CanAccept, func(m *models.Session) {
				m.ApplyTelemetry(1, 0, 0, s.now)
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	found, err := s.store.FindByID(ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(int64(writers), found.PassCount)
}

func (s *RedisStoreSuite) TestExecuteOnEndedSessionConflicts() {
	ctx := context.Background()
	session := s.create(id.NewApplicationID())
	_, err := s.store.Execute(ctx, session.ID, (*models.Session).CanAccept, func(m *models.Session) {
		m.ApplyEnd(s.now, models.EndReasonTimeout, nil)
	})
	s.Require().NoError(err)

	_, err = s.store.Execute(ctx, session.ID, (*models.Session).CanAccept, func(m *models.Session) {
		m.ApplyHeartbeat(s.now)
	})
	s.Error(err)
}
