// Package memory keeps applications, certificates and evidence in process
// memory. It backs tests and single-node runs without Postgres.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"oddcert/internal/certification/evidence"
	"oddcert/internal/certification/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/sentinel"
)

// InMemoryStore implements the certification stores.
type InMemoryStore struct {
	mu           sync.RWMutex
	applications map[id.ApplicationID]*models.Application
	certificates map[id.CertificateNumber]*models.Certificate
	byKey        map[string]id.CertificateNumber
	sequences    map[int]int
	evidence     map[evidenceKey][]evidence.Record
	nextSeq      int64

	tx shardedTx
}

type evidenceKey struct {
	appID   id.ApplicationID
	attempt int
}

// New creates an empty store.
func New() *InMemoryStore {
	return &InMemoryStore{
		applications: make(map[id.ApplicationID]*models.Application),
		certificates: make(map[id.CertificateNumber]*models.Certificate),
		byKey:        make(map[string]id.CertificateNumber),
		sequences:    make(map[int]int),
		evidence:     make(map[evidenceKey][]evidence.Record),
	}
}

// -----------------------------------------------------------------------------
// Applications
// -----------------------------------------------------------------------------

func (s *InMemoryStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[app.ID]; ok {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrConflict)
	}
	s.applications[app.ID] = app.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[appID]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
	}
	return app.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[app.ID]; !ok {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrNotFound)
	}
	s.applications[app.ID] = app.Clone()
	return nil
}

// ListByState returns matching applications, oldest first.
func (s *InMemoryStore) ListByState(_ context.Context, states ...models.State) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.applications {
		if slices.Contains(states, app.State) {
			out = append(out, app.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Application) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Certificates
// -----------------------------------------------------------------------------

func (s *InMemoryStore) CreateCertificate(_ context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[cert.IdempotencyKey]; ok {
		return fmt.Errorf("certificate for %s: %w", cert.IdempotencyKey, sentinel.ErrConflict)
	}
	year := cert.IssuedAt.UTC().Year()
	s.sequences[year]++
	cert.Number = id.NewCertificateNumber(year, s.sequences[year])

	c := *cert
	s.certificates[c.Number] = &c
	s.byKey[c.IdempotencyKey] = c.Number
	return nil
}

func (s *InMemoryStore) FindCertificateByKey(_ context.Context, key string) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	number, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("certificate for %s: %w", key, sentinel.ErrNotFound)
	}
	c := *s.certificates[number]
	return &c, nil
}

func (s *InMemoryStore) FindCertificateByNumber(_ context.Context, number id.CertificateNumber) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certificates[number]
	if !ok {
		return nil, fmt.Errorf("certificate %s: %w", number, sentinel.ErrNotFound)
	}
	c := *cert
	return &c, nil
}

func (s *InMemoryStore) FindCertificateByApplication(_ context.Context, appID id.ApplicationID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Certificate
	for _, cert := range s.certificates {
		if cert.ApplicationID != appID {
			continue
		}
		if latest == nil || cert.IssuedAt.After(latest.IssuedAt) {
			latest = cert
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("certificate for application %s: %w", appID, sentinel.ErrNotFound)
	}
	c := *latest
	return &c, nil
}

func (s *InMemoryStore) UpdateCertificateState(_ context.Context, number id.CertificateNumber, state models.CertificateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certificates[number]
	if !ok {
		return fmt.Errorf("certificate %s: %w", number, sentinel.ErrNotFound)
	}
	cert.State = state
	return nil
}

func (s *InMemoryStore) ListExpiredCertificates(_ context.Context, now time.Time) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Certificate
	for _, cert := range s.certificates {
		if cert.State == models.CertificateConformant && !now.Before(cert.ExpiresAt) {
			c := *cert
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Certificate) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Evidence
// -----------------------------------------------------------------------------

func (s *InMemoryStore) AppendEvidence(_ context.Context, records []evidence.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.nextSeq++
		r.Sequence = s.nextSeq
		key := evidenceKey{appID: r.ApplicationID, attempt: r.Attempt}
		s.evidence[key] = append(s.evidence[key], r)
	}
	return nil
}

func (s *InMemoryStore) ListEvidence(_ context.Context, appID id.ApplicationID, attempt int) ([]evidence.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.evidence[evidenceKey{appID: appID, attempt: attempt}]), nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// RunInTx serializes fn with every other transaction on the same
// application. Writes made by fn are not rolled back on error; callers
// write the application last.
func (s *InMemoryStore) RunInTx(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context) error) error {
	return s.tx.run(ctx, appID, fn)
}

// numShards spreads applications over a fixed set of locks.
const numShards = 128

const defaultTxTimeout = 5 * time.Second

type shardedTx struct {
	shards [numShards]sync.Mutex
}

func (t *shardedTx) run(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	shard := &t.shards[shardFor(appID)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// shardFor picks the lock shard that serializes an application's
// transactions.
func shardFor(appID id.ApplicationID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(appID.String()))
	return h.Sum32() % numShards
}
