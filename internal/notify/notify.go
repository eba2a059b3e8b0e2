// Package notify dispatches certification lifecycle notifications. Delivery
// (e-mail, webhooks) happens in downstream consumers; the engine only
// publishes and never waits on them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	id "oddcert/pkg/domain"
)

// Kind names a notification.
type Kind string

const (
	KindApplicationApproved  Kind = "application_approved"
	KindApplicationRejected  Kind = "application_rejected"
	KindCertificateIssued    Kind = "certificate_issued"
	KindApplicationSuspended Kind = "application_suspended"
)

// SubjectPrefix is prepended to the kind to form the NATS subject.
const SubjectPrefix = "oddc.notifications."

// Notification is the published payload.
type Notification struct {
	Kind              Kind             `json:"kind"`
	ApplicationID     id.ApplicationID `json:"application_id"`
	ApplicationName   string           `json:"application_name"`
	ApplicantID       string           `json:"applicant_id"`
	State             string           `json:"state"`
	Reason            string           `json:"reason,omitempty"`
	CertificateNumber string           `json:"certificate_number,omitempty"`
	OccurredAt        time.Time        `json:"occurred_at"`
}

// Subject returns the NATS subject for the notification.
func (n Notification) Subject() string {
	return SubjectPrefix + string(n.Kind)
}

// publisher is the subset of *nats.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications as JSON on NATS core subjects.
type NATSNotifier struct {
	conn   publisher
	logger *slog.Logger
	closer func()
}

// Connect dials NATS and returns a notifier. Reconnects are unlimited so a
// broker restart does not lose the connection for good.
func Connect(url string, logger *slog.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("oddcert"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	n := NewNATSNotifier(conn, logger)
	n.closer = func() {
		_ = conn.Drain()
		conn.Close()
	}
	return n, nil
}

// NewNATSNotifier wraps an existing publisher.
func NewNATSNotifier(conn publisher, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{conn: conn, logger: logger}
}

// Notify publishes n. Failures are logged and dropped.
func (p *NATSNotifier) Notify(ctx context.Context, n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode notification", "kind", n.Kind, "error", err)
		return
	}
	if err := p.conn.Publish(n.Subject(), data); err != nil {
		p.logger.WarnContext(ctx, "failed to publish notification",
			"kind", n.Kind,
			"application_id", n.ApplicationID.String(),
			"error", err,
		)
		return
	}
	p.logger.DebugContext(ctx, "notification published", "subject", n.Subject())
}

// Close drains the connection if Connect opened it.
func (p *NATSNotifier) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// LogNotifier writes notifications to the log. Used when no broker is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	l.logger.InfoContext(ctx, "notification",
		"kind", n.Kind,
		"application_id", n.ApplicationID.String(),
		"state", n.State,
		"reason", n.Reason,
		"certificate_number", n.CertificateNumber,
	)
}
