package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "oddcert/pkg/domain"
	audit "oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/audit/publishers/ops"
	"oddcert/pkg/platform/audit/store/memory"
)

// failingStore rejects every append.
type failingStore struct {
	*memory.InMemoryStore
	calls int
	mu    sync.Mutex
}

func (f *failingStore) Append(context.Context, audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("database unavailable")
}

func TestPublisher_ComplianceIsSynchronous(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	appID := id.NewApplicationID()
	err := pub.Emit(context.Background(), audit.Event{
		ApplicationID: appID,
		Action:        string(audit.EventApplicationTransitioned),
		FromState:     "pending",
		ToState:       "under_review",
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), appID)
	require.NoError(t, err)
	require.Len(t, events, 1, "compliance events are written before Emit returns")
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, "under_review", events[0].ToState)
}

func TestPublisher_ComplianceFailsClosed(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore()}
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		ApplicationID: id.NewApplicationID(),
		Action:        string(audit.EventCertificateIssued),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit persistence failed")
}

func TestPublisher_ComplianceRequiresApplication(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventCredentialIssued)})
	require.Error(t, err)
}

func TestPublisher_OperationsFailOpen(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore()}
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		ApplicationID: id.NewApplicationID(),
		Action:        string(audit.EventSessionRegistered),
	})
	assert.NoError(t, err)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	appID := id.NewApplicationID()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			ApplicationID: appID,
			Action:        string(audit.EventSessionEnded),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByApplication(context.Background(), appID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterCloseWritesThrough(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	appID := id.NewApplicationID()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{ApplicationID: appID, Action: string(audit.EventSessionOffline)}))

	events, err := store.ListByApplication(context.Background(), appID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPublisher_BufferFullNeverBlocks(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	appID := id.NewApplicationID()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pub.Emit(context.Background(), audit.Event{
				ApplicationID: appID,
				Action:        string(audit.EventSessionOffline),
			}))
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	appID := id.NewApplicationID()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{ApplicationID: appID, Action: string(audit.EventApplicationSubmitted)}))

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{ApplicationID: appID, Action: string(audit.EventEnvelopeDefined), Timestamp: custom}))

	events, err := pub.List(context.Background(), appID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, custom, events[1].Timestamp)
}

func TestPublisher_SamplerDropsOperationsOnly(t *testing.T) {
	store := memory.NewInMemoryStore()
	sampler := ops.NewSampler(0)
	pub := NewPublisher(store, WithSampler(sampler))
	defer pub.Close()

	appID := id.NewApplicationID()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{ApplicationID: appID, Action: string(audit.EventSessionRegistered)}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{ApplicationID: appID, Action: string(audit.EventCAT72Started)}))

	events, err := pub.List(context.Background(), appID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCAT72Started), events[0].Action)
}

func TestPublisher_CircuitBreakerStopsWrites(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore()}
	pub := NewPublisher(store, WithCircuitBreaker(ops.NewCircuitBreaker(2, time.Hour)))
	defer pub.Close()

	for range 5 {
		_ = pub.Emit(context.Background(), audit.Event{ApplicationID: id.NewApplicationID(), Action: string(audit.EventSessionOffline)})
	}
	assert.Equal(t, 2, store.calls, "open circuit skips the store")
}
