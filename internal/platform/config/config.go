package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string

	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// EventBuffer bounds the dispatcher inbox. Events beyond it are dropped
	// and counted; workflow transitions never block on fan-out.
	EventBuffer int

	Investigation InvestigationPolicy
}

// RedisConfig holds connection settings for the sequence backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the event stream settings. Empty brokers disable the
// Kafka sink; events still reach in-process sinks.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// InvestigationPolicy maps exception magnitude to investigation severity.
// It is configuration, not code, so labs can tune escalation without a
// deploy.
type InvestigationPolicy struct {
	// OOSMajorFactor: an out-of-spec result further from the limit than this
	// multiple of the tolerance width opens a MAJOR investigation.
	OOSMajorFactor float64
	// MajorRules lists control-chart rules that open MAJOR investigations;
	// all other rules open MINOR ones.
	MajorRules []string
	// DueDays is the default investigation due date offset.
	DueDays int
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("LIMSD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("KAFKA_EVENTS_TOPIC")
	if topic == "" {
		topic = "lims.events"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		PostgresDSN:   os.Getenv("LIMSD_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("LIMSD_REDIS_URL"),
			PoolSize:     envInt("LIMSD_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("LIMSD_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
		},
		EventBuffer: envInt("LIMSD_EVENT_BUFFER", 1024),
		Investigation: InvestigationPolicy{
			OOSMajorFactor: envFloat("LIMSD_OOS_MAJOR_FACTOR", 2.0),
			MajorRules:     envList("LIMSD_MAJOR_RULES", []string{"1_3s", "R_4s"}),
			DueDays:        envInt("LIMSD_INVESTIGATION_DUE_DAYS", 14),
		},
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return strings.Split(raw, ",")
	}
	return fallback
}
