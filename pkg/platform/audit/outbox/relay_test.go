package outbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "oddcert/pkg/platform/audit"
)

type fakeSource struct {
	entries   []Entry
	published []uuid.UUID
	fetchErr  error
}

func (f *fakeSource) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeSource) FetchUnpublished(_ context.Context, limit int) ([]Entry, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []Entry
	for _, e := range f.entries {
		if len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeSource) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	f.published = append(f.published, ids...)
	return nil
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func entry(eventType string) Entry {
	return Entry{
		ID:            uuid.New(),
		AggregateType: "application",
		AggregateID:   uuid.NewString(),
		EventType:     eventType,
		Payload:       []byte(`{"action":"` + eventType + `"}`),
		CreatedAt:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRelayOnceRoutesByCategory(t *testing.T) {
	src := &fakeSource{entries: []Entry{
		entry(string(audit.EventCertificateIssued)),
		entry(string(audit.EventConnectivityFault)),
		entry(string(audit.EventSessionEnded)),
	}}
	prod := &fakeProducer{}
	relay := NewRelay(src, prod, "oddcert.audit", WithLogger(quietLogger()))

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, prod.records, 3)
	assert.Equal(t, "oddcert.audit.compliance", prod.records[0].Topic)
	assert.Equal(t, "oddcert.audit.security", prod.records[1].Topic)
	assert.Equal(t, "oddcert.audit.operations", prod.records[2].Topic)
	assert.Equal(t, []byte(src.entries[0].AggregateID), prod.records[0].Key)
	assert.Len(t, src.published, 3)
}

func TestRelayOnceLeavesEntriesOnProduceFailure(t *testing.T) {
	src := &fakeSource{entries: []Entry{entry(string(audit.EventCAT72Started))}}
	prod := &fakeProducer{err: errors.New("broker down")}
	relay := NewRelay(src, prod, "oddcert.audit", WithLogger(quietLogger()))

	_, err := relay.RelayOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, src.published, "unpublished rows stay for the next attempt")
}

func TestRelayOnceHonoursBatchSize(t *testing.T) {
	src := &fakeSource{entries: []Entry{entry("a"), entry("b"), entry("c")}}
	prod := &fakeProducer{}
	relay := NewRelay(src, prod, "x", WithBatchSize(2), WithLogger(quietLogger()))

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelayTopics(t *testing.T) {
	relay := NewRelay(&fakeSource{}, &fakeProducer{}, "oddcert.audit")
	assert.Equal(t, []string{"oddcert.audit.compliance", "oddcert.audit.security", "oddcert.audit.operations"}, relay.Topics())
}
