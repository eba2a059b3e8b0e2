package service

import (
	"context"
	"errors"
	"time"

	"oddcert/internal/certification/evidence"
	"oddcert/internal/certification/models"
	id "oddcert/pkg/domain"
	dErrors "oddcert/pkg/domain-errors"
	"oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/sentinel"
	"oddcert/pkg/requestcontext"
)

// issueCertificate issues the certificate for app's passing attempt. It is
// idempotent on the attempt's key: a repeat call, or a concurrent one that
// lost the insert race, returns the certificate already issued.
func (s *Service) issueCertificate(ctx context.Context, app *models.Application, now time.Time) (*models.Certificate, error) {
	test := app.CAT72
	if test == nil || test.Result != models.CAT72Pass {
		return nil, dErrors.New(dErrors.CodeConflict, "certificate requires a passing CAT-72")
	}
	key := test.IdempotencyKey()

	existing, err := s.certs.FindCertificateByKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up certificate")
	}

	records, err := s.evidence.ListEvidence(ctx, app.ID, test.Attempt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	hash, err := evidence.Hash(records)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash evidence")
	}

	cert := &models.Certificate{
		ApplicationID:   app.ID,
		IdempotencyKey:  key,
		IssuedAt:        now,
		ExpiresAt:       now.Add(s.validity),
		State:           models.CertificateConformant,
		EvidenceHash:    hash,
		EvaluationCount: test.EvaluationCount,
	}
	if err := s.certs.CreateCertificate(ctx, cert); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			existing, findErr := s.certs.FindCertificateByKey(ctx, key)
			if findErr != nil {
				return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load issued certificate")
			}
			return existing, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue certificate")
	}

	if err := s.emit(ctx, audit.Event{
		Action:        string(audit.EventCertificateIssued),
		ApplicationID: app.ID,
		Subject:       cert.Number.String(),
		Decision:      cert.EvidenceHash,
	}); err != nil {
		return nil, err
	}
	s.metrics.IncrementCertificatesIssued()
	s.logger.InfoContext(ctx, "certificate issued",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", app.ID.String(),
		"certificate_number", cert.Number.String(),
		"evidence_records", len(records),
		"evidence_violations", evidence.Violations(records),
	)
	return cert, nil
}

// Verify answers whether a certificate number is currently valid. It needs
// no identity.
func (s *Service) Verify(ctx context.Context, number string) (*models.Verification, error) {
	n, err := id.ParseCertificateNumber(number)
	if err != nil {
		return nil, err
	}
	cert, err := s.certs.FindCertificateByNumber(ctx, n)
	if err != nil {
		return nil, translateNotFound(err, "certificate not found", "failed to load certificate")
	}
	return &models.Verification{
		Number:       cert.Number,
		Valid:        cert.Valid(requestcontext.Now(ctx)),
		State:        cert.State,
		IssuedAt:     cert.IssuedAt,
		ExpiresAt:    cert.ExpiresAt,
		EvidenceHash: cert.EvidenceHash,
	}, nil
}

// AuditEvidence recomputes a certificate's evidence hash from the stored
// evidence log. Only the attempt the certificate was issued for can be
// checked; a later attempt replaces the test record.
func (s *Service) AuditEvidence(ctx context.Context, number string) (*models.EvidenceAudit, error) {
	n, err := id.ParseCertificateNumber(number)
	if err != nil {
		return nil, err
	}
	cert, err := s.certs.FindCertificateByNumber(ctx, n)
	if err != nil {
		return nil, translateNotFound(err, "certificate not found", "failed to load certificate")
	}
	app, err := s.load(ctx, cert.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.CAT72 == nil || app.CAT72.IdempotencyKey() != cert.IdempotencyKey {
		return nil, dErrors.New(dErrors.CodeConflict, "the test attempt behind this certificate is no longer on record")
	}
	records, err := s.evidence.ListEvidence(ctx, app.ID, app.CAT72.Attempt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	hash, err := evidence.Hash(records)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash evidence")
	}
	return &models.EvidenceAudit{
		Number:     cert.Number,
		Records:    len(records),
		Violations: evidence.Violations(records),
		Stored:     cert.EvidenceHash,
		Recomputed: hash,
		Match:      hash == cert.EvidenceHash,
	}, nil
}
