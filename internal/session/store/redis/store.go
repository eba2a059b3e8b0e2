// Package redis shares session state between replicas so heartbeats and
// telemetry may land on any instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"oddcert/internal/session/models"
	id "oddcert/pkg/domain"
	"oddcert/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "oddcert:session:"
	appKeyPrefix     = "oddcert:sessions:app:"
	activeKey        = "oddcert:sessions:active"

	defaultEndedRetention = 30 * 24 * time.Hour
	maxWatchRetries       = 5
)

// RedisStore keeps each session as a JSON document. Active session ids are
// indexed in a set for the sweeper; ended sessions expire after a retention
// period.
type RedisStore struct {
	client         *redis.Client
	endedRetention time.Duration
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithEndedRetention sets how long ended sessions stay readable.
func WithEndedRetention(d time.Duration) Option {
	return func(s *RedisStore) {
		if d > 0 {
			s.endedRetention = d
		}
	}
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{client: client, endedRetention: defaultEndedRetention}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func appKey(appID id.ApplicationID) string {
	return appKeyPrefix + appID.String()
}

// Create stores a new session. SETNX guards against id reuse.
func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	created, err := s.client.SetNX(ctx, sessionKey(session.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, appKey(session.ApplicationID), session.ID.String())
	if session.IsActive() {
		pipe.SAdd(ctx, activeKey, session.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decode(data)
}

// ListActive returns every active session ordered by start time.
func (s *RedisStore) ListActive(ctx context.Context) ([]*models.Session, error) {
	return s.listSet(ctx, activeKey, func(session *models.Session) bool { return session.IsActive() })
}

// ListByApplication returns an application's retained sessions ordered by
// start time.
func (s *RedisStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Session, error) {
	return s.listSet(ctx, appKey(appID), func(*models.Session) bool { return true })
}

func (s *RedisStore) listSet(ctx context.Context, setKey string, keep func(*models.Session) bool) ([]*models.Session, error) {
	members, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = sessionKeyPrefix + m
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	var stale []any
	out := make([]*models.Session, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Expired after the retention period.
			stale = append(stale, members[i])
			continue
		}
		session, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		if keep(session) {
			out = append(out, session)
		}
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, setKey, stale...).Err()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Execute loads a session under WATCH, runs validate and mutate, and writes
// it back in a MULTI block. A concurrent write to the same session aborts the
// transaction, which is retried a bounded number of times before
// redis.TxFailedErr is returned.
func (s *RedisStore) Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error) {
	key := sessionKey(sessionID)
	var result *models.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		session, err := decode(data)
		if err != nil {
			return err
		}
		if err := validate(session); err != nil {
			return err
		}
		mutate(session)

		updated, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if session.IsActive() {
				pipe.Set(ctx, key, updated, 0)
				return nil
			}
			pipe.Set(ctx, key, updated, s.endedRetention)
			pipe.SRem(ctx, activeKey, session.ID.String())
			return nil
		})
		if err != nil {
			return err
		}
		result = session
		return nil
	}

	var err error
	for range maxWatchRetries {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decode(data []byte) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}
