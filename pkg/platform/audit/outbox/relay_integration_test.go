//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	platformpg "oddcert/internal/platform/postgres"
	id "oddcert/pkg/domain"
	audit "oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/audit/outbox"
	auditpg "oddcert/pkg/platform/audit/store/postgres"
	"oddcert/pkg/testutil"
	"oddcert/pkg/testutil/containers"
)

func TestRelayDeliversOutboxToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	broker := containers.GetManager().GetRedpanda(t)
	require.NoError(t, platformpg.Migrate(ctx, pg.DB))
	require.NoError(t, pg.Truncate(ctx, "audit_events", "outbox"))

	store := auditpg.New(pg.DB)
	client, err := outbox.NewKafkaClient([]string{broker.Broker}, "oddcert-relay-test")
	require.NoError(t, err)
	defer client.Close()

	prefix := "oddcert.test." + id.NewApplicationID().String()[:8]
	relay := outbox.NewRelay(store, client, prefix, outbox.WithBatchSize(10))
	appID := id.NewApplicationID()

	testutil.Given(t, "audit topics exist", func(t *testing.T) {
		require.NoError(t, outbox.EnsureTopics(ctx, client, relay.Topics(), 1, 1))
		require.NoError(t, outbox.EnsureTopics(ctx, client, relay.Topics(), 1, 1), "existing topics are not an error")
	})

	testutil.When(t, "a compliance and an operations event are appended", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, audit.Event{
			ApplicationID: appID,
			Action:        string(audit.EventApplicationTransitioned),
			FromState:     "bounded",
			ToState:       "testing",
			Timestamp:     time.Now(),
		}))
		require.NoError(t, store.Append(ctx, audit.Event{
			ApplicationID: appID,
			Action:        string(audit.EventSessionRegistered),
			Timestamp:     time.Now(),
		}))
	})

	testutil.Then(t, "one relay pass publishes both and drains the outbox", func(t *testing.T) {
		n, err := relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	testutil.Then(t, "the compliance topic carries the transition", func(t *testing.T) {
		consumer, err := kgo.NewClient(
			kgo.SeedBrokers(broker.Broker),
			kgo.ConsumeTopics(relay.Topic(audit.CategoryCompliance)),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		)
		require.NoError(t, err)
		defer consumer.Close()

		pollCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		fetches := consumer.PollFetches(pollCtx)
		require.NoError(t, fetches.Err())
		records := fetches.Records()
		require.Len(t, records, 1)

		assert.Equal(t, appID.String(), string(records[0].Key))
		var payload map[string]any
		require.NoError(t, json.Unmarshal(records[0].Value, &payload))
		assert.Equal(t, "application_transitioned", payload["action"])
		assert.Equal(t, "testing", payload["to_state"])
	})
}
