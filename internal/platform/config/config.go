package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	LogFormat     string
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	NATS          NATSConfig
	Session       SessionConfig
	Certification CertificationConfig
	Discovery     DiscoveryConfig
	Audit         AuditConfig
}

// PostgresConfig selects the Postgres stores. An empty URL keeps
// applications, certificates, evidence and audit in memory.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the Redis session store. An empty URL keeps sessions
// in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// EndedTTL is how long ended sessions are kept.
	EndedTTL time.Duration
}

// KafkaConfig enables the audit outbox relay. It needs Postgres.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	ClientID    string
	Partitions  int32
	Replication int16
}

// NATSConfig enables notification dispatch. Without a URL notifications are
// only logged.
type NATSConfig struct {
	URL string
}

type SessionConfig struct {
	HeartbeatTimeout time.Duration
	EndAfter         time.Duration
	SweepInterval    time.Duration
	MaxBatch         int
}

type CertificationConfig struct {
	CAT72Hours          int
	TickInterval        time.Duration
	CertificateValidity time.Duration
	AgentTokenKey       string
	AgentTokenTTL       time.Duration
}

type DiscoveryConfig struct {
	SafetyMargin  float64
	MaxCategories int
}

type AuditConfig struct {
	BufferSize     int
	OutboxInterval time.Duration
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays
// lean. Malformed values are collected and returned together.
func FromEnv() (Server, error) {
	e := &env{}
	cfg := Server{
		Addr:      e.str("ODDCERT_ADDR", ":8080"),
		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "json"),
		Postgres: PostgresConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.int("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    e.int("DATABASE_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 20),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			EndedTTL:     e.duration("REDIS_ENDED_SESSION_TTL", 30*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:     e.list("KAFKA_BROKERS"),
			TopicPrefix: e.str("KAFKA_TOPIC_PREFIX", "oddcert.audit"),
			ClientID:    e.str("KAFKA_CLIENT_ID", "oddcert"),
			Partitions:  int32(e.int("KAFKA_TOPIC_PARTITIONS", 3)),
			Replication: int16(e.int("KAFKA_TOPIC_REPLICATION", 1)),
		},
		NATS: NATSConfig{
			URL: e.str("NATS_URL", ""),
		},
		Session: SessionConfig{
			HeartbeatTimeout: e.duration("HEARTBEAT_TIMEOUT", 120*time.Second),
			EndAfter:         e.duration("SESSION_END_AFTER", 24*time.Hour),
			SweepInterval:    e.duration("SESSION_SWEEP_INTERVAL", 10*time.Second),
			MaxBatch:         e.int("TELEMETRY_MAX_BATCH", 1000),
		},
		Certification: CertificationConfig{
			CAT72Hours:          e.int("CAT72_DURATION_HOURS", 72),
			TickInterval:        e.duration("CAT72_TICK_INTERVAL", 30*time.Second),
			CertificateValidity: e.duration("CERTIFICATE_VALIDITY", 365*24*time.Hour),
			AgentTokenKey:       e.str("AGENT_TOKEN_SIGNING_KEY", devSigningKey),
			AgentTokenTTL:       e.duration("AGENT_TOKEN_TTL", 90*24*time.Hour),
		},
		Discovery: DiscoveryConfig{
			SafetyMargin:  e.float("DISCOVERY_SAFETY_MARGIN", 0.10),
			MaxCategories: e.int("DISCOVERY_MAX_CATEGORIES", 64),
		},
		Audit: AuditConfig{
			BufferSize:     e.int("AUDIT_BUFFER_SIZE", 1024),
			OutboxInterval: e.duration("OUTBOX_INTERVAL", time.Second),
		},
	}
	if err := errors.Join(e.errs...); err != nil {
		return Server{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations that cannot run.
func (s Server) Validate() error {
	var errs []error
	if s.Session.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_TIMEOUT must be positive"))
	}
	if s.Session.EndAfter < s.Session.HeartbeatTimeout {
		errs = append(errs, errors.New("SESSION_END_AFTER must not be shorter than HEARTBEAT_TIMEOUT"))
	}
	if s.Certification.CAT72Hours <= 0 {
		errs = append(errs, errors.New("CAT72_DURATION_HOURS must be positive"))
	}
	if s.Discovery.SafetyMargin < 0 {
		errs = append(errs, errors.New("DISCOVERY_SAFETY_MARGIN must not be negative"))
	}
	if len(s.Kafka.Brokers) > 0 && s.Postgres.URL == "" {
		errs = append(errs, errors.New("KAFKA_BROKERS requires DATABASE_URL for the audit outbox"))
	}
	if s.LogFormat != "json" && s.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", s.LogFormat))
	}
	return errors.Join(errs...)
}

// UsesDevSigningKey reports whether agent credentials are signed with the
// built-in development key.
func (s Server) UsesDevSigningKey() bool {
	return s.Certification.AgentTokenKey == devSigningKey
}

type env struct {
	errs []error
}

func (e *env) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e *env) list(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) int(key string, fallback int) int {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

// duration accepts Go durations plus a whole-day suffix, e.g. "365d".
func (e *env) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	d, err := ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

// ParseDuration is time.ParseDuration plus an "Nd" form for whole days.
func ParseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
