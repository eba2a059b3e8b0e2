// Package postgres persists applications, certificates and evidence in
// PostgreSQL. Serialization per application is a row lock taken by
// FindByID inside RunInTx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"oddcert/internal/boundary"
	"oddcert/internal/certification/evidence"
	"oddcert/internal/certification/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/sentinel"
	txcontext "oddcert/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// uniqueViolation is the Postgres SQLSTATE for a unique constraint.
const uniqueViolation = "23505"

// PostgresStore implements the certification stores.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres constructs a PostgreSQL-backed certification store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: defaultTxTimeout}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Queryer {
	return txcontext.Use(ctx, s.db)
}

// RunInTx runs fn in a transaction carried on ctx. A nested call joins the
// outer transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, _ id.ApplicationID, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Applications
// -----------------------------------------------------------------------------

const applicationColumns = `id, name, description, applicant_id, state, envelope, envelope_source,
	envelope_acknowledged_at, envelope_acknowledged_by, cat72, suspension_reason,
	credential_issued_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	envelope, cat72, err := marshalApplication(app)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		uuid.UUID(app.ID), app.Name, app.Description, app.ApplicantID, string(app.State),
		envelope, string(app.EnvelopeSource), app.EnvelopeAcknowledgedAt, app.EnvelopeAcknowledgedBy,
		cat72, app.SuspensionReason, app.CredentialIssuedAt, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	app, err := scanApplication(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(appID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) Update(ctx context.Context, app *models.Application) error {
	envelope, cat72, err := marshalApplication(app)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE applications SET
			name = $2, description = $3, state = $4, envelope = $5, envelope_source = $6,
			envelope_acknowledged_at = $7, envelope_acknowledged_by = $8, cat72 = $9,
			suspension_reason = $10, credential_issued_at = $11, updated_at = $12
		WHERE id = $1
	`,
		uuid.UUID(app.ID), app.Name, app.Description, string(app.State), envelope,
		string(app.EnvelopeSource), app.EnvelopeAcknowledgedAt, app.EnvelopeAcknowledgedBy,
		cat72, app.SuspensionReason, app.CredentialIssuedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByState(ctx context.Context, states ...models.State) ([]*models.Application, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE state = ANY($1)
		ORDER BY created_at
	`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*models.Application, error) {
	var (
		app            models.Application
		appID          uuid.UUID
		state, source  string
		envelope, test []byte
		ackAt, credAt  sql.NullTime
	)
	if err := row.Scan(
		&appID, &app.Name, &app.Description, &app.ApplicantID, &state, &envelope, &source,
		&ackAt, &app.EnvelopeAcknowledgedBy, &test, &app.SuspensionReason,
		&credAt, &app.CreatedAt, &app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.State = models.State(state)
	app.EnvelopeSource = models.EnvelopeSource(source)
	if ackAt.Valid {
		t := ackAt.Time
		app.EnvelopeAcknowledgedAt = &t
	}
	if credAt.Valid {
		t := credAt.Time
		app.CredentialIssuedAt = &t
	}
	if len(envelope) > 0 {
		var env boundary.Envelope
		if err := json.Unmarshal(envelope, &env); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		app.Envelope = &env
	}
	if len(test) > 0 {
		var t models.CAT72Test
		if err := json.Unmarshal(test, &t); err != nil {
			return nil, fmt.Errorf("unmarshal cat72: %w", err)
		}
		app.CAT72 = &t
	}
	return &app, nil
}

func marshalApplication(app *models.Application) (envelope, cat72 []byte, err error) {
	if app.Envelope != nil {
		if envelope, err = json.Marshal(app.Envelope); err != nil {
			return nil, nil, fmt.Errorf("marshal envelope: %w", err)
		}
	}
	if app.CAT72 != nil {
		if cat72, err = json.Marshal(app.CAT72); err != nil {
			return nil, nil, fmt.Errorf("marshal cat72: %w", err)
		}
	}
	return envelope, cat72, nil
}

// -----------------------------------------------------------------------------
// Certificates
// -----------------------------------------------------------------------------

const certificateColumns = `number, application_id, idempotency_key, issued_at, expires_at, state,
	evidence_hash, evaluation_count`

// CreateCertificate takes the next number of the issuance year. The insert
// does not abort the surrounding transaction on a duplicate key.
func (s *PostgresStore) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	q := s.q(ctx)
	year := cert.IssuedAt.UTC().Year()
	var seq int
	err := q.QueryRowContext(ctx, `
		INSERT INTO certificate_sequences (year, last) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last = certificate_sequences.last + 1
		RETURNING last
	`, year).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next certificate sequence: %w", err)
	}
	number := id.NewCertificateNumber(year, seq)

	res, err := q.ExecContext(ctx, `
		INSERT INTO certificates (`+certificateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
	`,
		string(number), uuid.UUID(cert.ApplicationID), cert.IdempotencyKey, cert.IssuedAt,
		cert.ExpiresAt, string(cert.State), cert.EvidenceHash, cert.EvaluationCount,
	)
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("certificate for %s: %w", cert.IdempotencyKey, sentinel.ErrConflict)
	}
	cert.Number = number
	return nil
}

func (s *PostgresStore) FindCertificateByKey(ctx context.Context, key string) (*models.Certificate, error) {
	return s.findCertificate(ctx, `WHERE idempotency_key = $1`, key)
}

func (s *PostgresStore) FindCertificateByNumber(ctx context.Context, number id.CertificateNumber) (*models.Certificate, error) {
	return s.findCertificate(ctx, `WHERE number = $1`, string(number))
}

func (s *PostgresStore) FindCertificateByApplication(ctx context.Context, appID id.ApplicationID) (*models.Certificate, error) {
	return s.findCertificate(ctx, `WHERE application_id = $1 ORDER BY issued_at DESC LIMIT 1`, uuid.UUID(appID))
}

func (s *PostgresStore) findCertificate(ctx context.Context, where string, arg any) (*models.Certificate, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates `+where, arg)
	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certificate: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return cert, nil
}

func (s *PostgresStore) UpdateCertificateState(ctx context.Context, number id.CertificateNumber, state models.CertificateState) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE certificates SET state = $2 WHERE number = $1`,
		string(number), string(state),
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("certificate %s: %w", number, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListExpiredCertificates(ctx context.Context, now time.Time) ([]*models.Certificate, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates
		WHERE state = $1 AND expires_at <= $2
		ORDER BY expires_at
	`, string(models.CertificateConformant), now)
	if err != nil {
		return nil, fmt.Errorf("list expired certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return certs, nil
}

func scanCertificate(row scanner) (*models.Certificate, error) {
	var (
		cert          models.Certificate
		number, state string
		appID         uuid.UUID
	)
	if err := row.Scan(
		&number, &appID, &cert.IdempotencyKey, &cert.IssuedAt, &cert.ExpiresAt, &state,
		&cert.EvidenceHash, &cert.EvaluationCount,
	); err != nil {
		return nil, err
	}
	cert.Number = id.CertificateNumber(number)
	cert.ApplicationID = id.ApplicationID(appID)
	cert.State = models.CertificateState(state)
	return &cert, nil
}

// -----------------------------------------------------------------------------
// Evidence
// -----------------------------------------------------------------------------

func (s *PostgresStore) AppendEvidence(ctx context.Context, records []evidence.Record) error {
	q := s.q(ctx)
	for i := range records {
		r := &records[i]
		result, err := json.Marshal(r.Result)
		if err != nil {
			return fmt.Errorf("marshal evaluation result: %w", err)
		}
		var sessionID *uuid.UUID
		if !r.SessionID.IsNil() {
			u := uuid.UUID(r.SessionID)
			sessionID = &u
		}
		err = q.QueryRowContext(ctx, `
			INSERT INTO evidence (application_id, attempt, session_id, kind, result, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING sequence
		`, uuid.UUID(r.ApplicationID), r.Attempt, sessionID, string(r.Kind), result, r.RecordedAt).Scan(&r.Sequence)
		if err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListEvidence(ctx context.Context, appID id.ApplicationID, attempt int) ([]evidence.Record, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT sequence, session_id, kind, result, recorded_at
		FROM evidence
		WHERE application_id = $1 AND attempt = $2
		ORDER BY sequence
	`, uuid.UUID(appID), attempt)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var records []evidence.Record
	for rows.Next() {
		var (
			r         evidence.Record
			sessionID *uuid.UUID
			kind      string
			result    []byte
		)
		if err := rows.Scan(&r.Sequence, &sessionID, &kind, &result, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		if err := json.Unmarshal(result, &r.Result); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation result: %w", err)
		}
		r.ApplicationID = appID
		r.Attempt = attempt
		r.Kind = evidence.Kind(kind)
		if sessionID != nil {
			r.SessionID = id.SessionID(*sessionID)
		}
		r.RecordedAt = r.RecordedAt.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
