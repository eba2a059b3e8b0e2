package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"ODDCERT_ADDR", "DATABASE_URL", "KAFKA_BROKERS", "HEARTBEAT_TIMEOUT", "CERTIFICATE_VALIDITY", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 120*time.Second, cfg.Session.HeartbeatTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Session.EndAfter)
	assert.Equal(t, 72, cfg.Certification.CAT72Hours)
	assert.Equal(t, 365*24*time.Hour, cfg.Certification.CertificateValidity)
	assert.InDelta(t, 0.10, cfg.Discovery.SafetyMargin, 1e-9)
	assert.True(t, cfg.UsesDevSigningKey())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HEARTBEAT_TIMEOUT", "30s")
	t.Setenv("CERTIFICATE_VALIDITY", "30d")
	t.Setenv("KAFKA_BROKERS", "localhost:9092, localhost:9093")
	t.Setenv("DATABASE_URL", "postgres://localhost/oddcert")
	t.Setenv("AGENT_TOKEN_SIGNING_KEY", "production-key")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Session.HeartbeatTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.Certification.CertificateValidity)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.UsesDevSigningKey())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("HEARTBEAT_TIMEOUT", "soon")
	t.Setenv("CAT72_DURATION_HOURS", "seventy-two")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEARTBEAT_TIMEOUT")
	assert.Contains(t, err.Error(), "CAT72_DURATION_HOURS")
}

func TestValidate(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("DATABASE_URL", "")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires DATABASE_URL")
}
