package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "oddcert/pkg/domain"
	audit "oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/audit/outbox"
	txcontext "oddcert/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Each event is materialized into audit_events for querying and queued in
// the outbox table for the Kafka relay, in the caller's transaction when
// one is present.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) txcontext.Queryer {
	return txcontext.Use(ctx, s.db)
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Timestamp     string `json:"timestamp"`
	ApplicationID string `json:"application_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Action        string `json:"action"`
	FromState     string `json:"from_state,omitempty"`
	ToState       string `json:"to_state,omitempty"`
	Decision      string `json:"decision,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	ActorID       string `json:"actor_id,omitempty"`
	ActorRole     string `json:"actor_role,omitempty"`
}

// Append writes an audit event and its outbox entry.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		FromState: event.FromState,
		ToState:   event.ToState,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		ActorRole: event.ActorRole,
	}
	var appID, sessionID *uuid.UUID
	if !event.ApplicationID.IsNil() {
		u := uuid.UUID(event.ApplicationID)
		appID = &u
		payload.ApplicationID = u.String()
	}
	if !event.SessionID.IsNil() {
		u := uuid.UUID(event.SessionID)
		sessionID = &u
		payload.SessionID = u.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if appID != nil {
		aggregateType = "application"
		aggregateID = appID.String()
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, timestamp, application_id, session_id, subject, action,
			from_state, to_state, decision, reason, request_id, actor_id, actor_role
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`,
		eventID,
		string(category),
		event.Timestamp,
		appID,
		sessionID,
		event.Subject,
		event.Action,
		event.FromState,
		event.ToState,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.ActorRole,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByApplication returns an application's events, oldest first.
func (s *Store) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, application_id, session_id, subject, action,
			   from_state, to_state, decision, reason, request_id, actor_id, actor_role
		FROM audit_events
		WHERE application_id = $1
		ORDER BY timestamp ASC
	`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			category     string
			event        audit.Event
			appNullable  *uuid.UUID
			sessNullable *uuid.UUID
		)
		if err := rows.Scan(
			&category,
			&event.Timestamp,
			&appNullable,
			&sessNullable,
			&event.Subject,
			&event.Action,
			&event.FromState,
			&event.ToState,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
			&event.ActorRole,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if appNullable != nil {
			event.ApplicationID = id.ApplicationID(*appNullable)
		}
		if sessNullable != nil {
			event.SessionID = id.SessionID(*sessNullable)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// FetchUnpublished returns up to limit outbox entries that have not been
// relayed, oldest first. Rows are locked with SKIP LOCKED so several relays
// can run side by side; the lock is held by the transaction in ctx.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]outbox.Entry, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []outbox.Entry
	for rows.Next() {
		var e outbox.Entry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps relayed outbox entries.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, u := range ids {
		strs[i] = u.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		at, pq.Array(strs),
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction carried on the context.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}
	return nil
}
