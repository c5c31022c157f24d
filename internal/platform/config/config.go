// Package config builds runtime configuration from the environment so main
// stays lean. Every tunable the resilience and orchestration layers use is
// configuration here, never a per-dependency constant.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ConsentSigningKey string
	LogFile           string

	// DatabaseURL enables the durable postgres audit store when set.
	DatabaseURL string

	Orchestrator OrchestratorConfig
	Breaker      BreakerConfig
	Retry        RetryConfig
	Cache        CacheConfig
	Audit        AuditConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
}

// OrchestratorConfig bounds the verification fan-out.
type OrchestratorConfig struct {
	// Timeout is the shared deadline for one verification request. Checkers
	// still in flight when it elapses are cancelled and scored as transient
	// failures.
	Timeout time.Duration

	// MaxInFlight bounds concurrently dispatched checkers per request.
	MaxInFlight int
}

// BreakerConfig parameterizes every circuit breaker. One breaker exists per
// (dependency, operation) pair; these thresholds apply to all of them.
type BreakerConfig struct {
	// FailurePercent opens the breaker once the rolling window's failure
	// percentage reaches this value.
	FailurePercent int

	// WindowSize is the number of most recent outcomes in the rolling window.
	WindowSize int

	// MinCalls is the minimum number of outcomes in the window before the
	// failure percentage is evaluated.
	MinCalls int

	// ResetTimeout is how long an open breaker waits before allowing a
	// single half-open probe.
	ResetTimeout time.Duration
}

// RetryConfig parameterizes the resilience wrapper's retry policy.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// CacheConfig holds the per-sensitivity TTL classes.
type CacheConfig struct {
	// RegistrationTTL covers static registration data (long-lived).
	RegistrationTTL time.Duration

	// ComplianceTTL covers safety-board and trade-certification data.
	ComplianceTTL time.Duration

	// TaxTTL covers tax-debt data (shortest, most sensitive).
	TaxTTL time.Duration
}

// AuditConfig shapes the audit sink's bounded queue.
type AuditConfig struct {
	QueueSize int

	// Policy selects overload behavior: "drop_oldest" or "block".
	Policy string

	// BlockTimeout applies when Policy is "block".
	BlockTimeout time.Duration
}

// RedisConfig configures the optional Redis cache backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional Kafka audit publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:              envString("VERISTRY_ADDR", ":8080"),
		ConsentSigningKey: envString("CONSENT_SIGNING_KEY", ""),
		LogFile:           envString("VERISTRY_LOG_FILE", ""),
		DatabaseURL:       envString("DATABASE_URL", ""),
		Orchestrator: OrchestratorConfig{
			Timeout:     envDuration("ORCHESTRATION_TIMEOUT", 10*time.Second),
			MaxInFlight: envInt("ORCHESTRATION_MAX_IN_FLIGHT", 8),
		},
		Breaker: BreakerConfig{
			FailurePercent: envInt("BREAKER_FAILURE_PERCENT", 50),
			WindowSize:     envInt("BREAKER_WINDOW_SIZE", 20),
			MinCalls:       envInt("BREAKER_MIN_CALLS", 5),
			ResetTimeout:   envDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:     envInt("RETRY_MAX_ATTEMPTS", 3),
			InitialInterval: envDuration("RETRY_INITIAL_INTERVAL", 100*time.Millisecond),
			MaxInterval:     envDuration("RETRY_MAX_INTERVAL", 2*time.Second),
		},
		Cache: CacheConfig{
			RegistrationTTL: envDuration("CACHE_REGISTRATION_TTL", time.Hour),
			ComplianceTTL:   envDuration("CACHE_COMPLIANCE_TTL", 30*time.Minute),
			TaxTTL:          envDuration("CACHE_TAX_TTL", 5*time.Minute),
		},
		Audit: AuditConfig{
			QueueSize:    envInt("AUDIT_QUEUE_SIZE", 10000),
			Policy:       envString("AUDIT_BACKPRESSURE_POLICY", "drop_oldest"),
			BlockTimeout: envDuration("AUDIT_BLOCK_TIMEOUT", 100*time.Millisecond),
		},
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", ""),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_AUDIT_TOPIC", "veristry.audit"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
