// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	liststrings "lifeline/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devSigningKey = "dev-secret-key-change-in-production"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr               string
	Environment        string
	JWTSigningKey      string
	AdminAPIToken      string
	CORSAllowedOrigins []string
	DatabaseURL        string
	AuditBufferSize    int

	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	Directory DirectoryConfig
}

// RedisConfig configures the shared Redis client. An empty URL keeps every
// Redis-backed store on its in-memory implementation.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type RateLimitConfig struct {
	Disabled bool
	// ConfigPath points at an optional YAML file overriding class limits.
	ConfigPath    string
	SweepInterval time.Duration
}

// DirectoryConfig holds the deployment's home-country bounding box and the
// lifetime of a cached verification verdict.
type DirectoryConfig struct {
	MinLat     float64
	MaxLat     float64
	MinLng     float64
	MaxLng     float64
	VerdictTTL time.Duration
}

func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}

	p := &parser{}
	cfg := Server{
		Addr:               envString("LIFELINE_ADDR", ":8080"),
		Environment:        envString("ENVIRONMENT", EnvDevelopment),
		JWTSigningKey:      envString("JWT_SIGNING_KEY", devSigningKey),
		AdminAPIToken:      os.Getenv("ADMIN_API_TOKEN"),
		CORSAllowedOrigins: liststrings.DedupeAndTrimLower(liststrings.SplitList(envString("CORS_ALLOWED_ORIGINS", "*"))),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		AuditBufferSize:    p.int("AUDIT_BUFFER_SIZE", 0),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    liststrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", "lifeline.audit"),
		},
		RateLimit: RateLimitConfig{
			Disabled:      p.bool("DISABLE_RATE_LIMITING", false),
			ConfigPath:    os.Getenv("RATE_LIMIT_CONFIG"),
			SweepInterval: p.duration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		},
		Directory: DirectoryConfig{
			MinLat:     p.float("DIRECTORY_MIN_LAT", 4.5),
			MaxLat:     p.float("DIRECTORY_MAX_LAT", 21.5),
			MinLng:     p.float("DIRECTORY_MIN_LNG", 116.0),
			MaxLng:     p.float("DIRECTORY_MAX_LNG", 127.0),
			VerdictTTL: p.duration("VERDICT_TTL", 30*time.Minute),
		},
	}
	if p.err != nil {
		return Server{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	if s.IsProduction() && s.JWTSigningKey == devSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	if s.RateLimit.SweepInterval <= 0 {
		return errors.New("RATE_LIMIT_SWEEP_INTERVAL must be positive")
	}
	d := s.Directory
	if d.MinLat >= d.MaxLat || d.MinLng >= d.MaxLng {
		return fmt.Errorf("directory bounding box is empty: lat [%v, %v] lng [%v, %v]", d.MinLat, d.MaxLat, d.MinLng, d.MaxLng)
	}
	if s.AuditBufferSize < 0 {
		return errors.New("AUDIT_BUFFER_SIZE must not be negative")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser records the first malformed value so FromEnv can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = errors.New("not a finite number")
	}
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}
