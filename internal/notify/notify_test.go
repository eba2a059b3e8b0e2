package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "oddcert/pkg/domain"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (r *recordingPublisher) Publish(subject string, data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return nil
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNATSNotifier(pub, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	appID := id.NewApplicationID()

	n.Notify(context.Background(), Notification{
		Kind:              KindCertificateIssued,
		ApplicationID:     appID,
		State:             "conformant",
		CertificateNumber: "ODDC-2026-00001",
		OccurredAt:        time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
	})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "oddc.notifications.certificate_issued", pub.subjects[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, appID.String(), got["application_id"])
	assert.Equal(t, "ODDC-2026-00001", got["certificate_number"])
}

func TestNATSNotifierSwallowsPublishErrors(t *testing.T) {
	var logs bytes.Buffer
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	n := NewNATSNotifier(pub, slog.New(slog.NewTextHandler(&logs, nil)))

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Notification{Kind: KindApplicationRejected, ApplicationID: id.NewApplicationID()})
	})
	assert.Contains(t, logs.String(), "failed to publish notification")
}
