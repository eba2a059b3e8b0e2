// Package outbox relays audit outbox rows to Kafka.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "oddcert/pkg/platform/audit"
)

// Entry is one outbox row.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Source is the outbox table. FetchUnpublished and MarkPublished run inside
// the transaction InTx places on the context.
type Source interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchUnpublished(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Relay publishes outbox rows to one topic per audit category and marks them
// published. Delivery is at-least-once: a crash between produce and commit
// republishes the batch, and consumers dedupe on the payload id.
type Relay struct {
	source      Source
	producer    Producer
	topicPrefix string
	batchSize   int
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// NewRelay builds a relay publishing to "<topicPrefix>.<category>".
func NewRelay(source Source, producer Producer, topicPrefix string, opts ...Option) *Relay {
	r := &Relay{
		source:      source,
		producer:    producer,
		topicPrefix: topicPrefix,
		batchSize:   defaultBatchSize,
		interval:    defaultInterval,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Topic returns the topic for an audit category.
func (r *Relay) Topic(category audit.EventCategory) string {
	return r.topicPrefix + "." + string(category)
}

// Topics lists every topic the relay writes to.
func (r *Relay) Topics() []string {
	return []string{
		r.Topic(audit.CategoryCompliance),
		r.Topic(audit.CategorySecurity),
		r.Topic(audit.CategoryOperations),
	}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	relayed := 0
	err := r.source.InTx(ctx, func(ctx context.Context) error {
		entries, err := r.source.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, 0, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			records = append(records, &kgo.Record{
				Topic: r.Topic(audit.AuditEvent(e.EventType).Category()),
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
					{Key: "aggregate_type", Value: []byte(e.AggregateType)},
				},
				Timestamp: e.CreatedAt,
			})
			ids = append(ids, e.ID)
		}

		if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce audit batch: %w", err)
		}
		if err := r.source.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		relayed = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if relayed > 0 {
		r.logger.DebugContext(ctx, "outbox batch relayed", "count", relayed)
	}
	return relayed, nil
}

// NewKafkaClient creates a producer client for the relay.
func NewKafkaClient(brokers []string, clientID string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopics creates the relay topics, ignoring ones that already exist.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics []string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}
