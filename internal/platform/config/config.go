package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	EvidenceBackendFile = "file"
	EvidenceBackendS3   = "s3"
)

// Config captures process level configuration.
type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	Auth     Auth
	Evidence Evidence
	S3       S3
	Kafka    Kafka
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Env            string
	RequestTimeout time.Duration
}

// DevMode reports whether internal error details may be exposed.
func (s Server) DevMode() bool {
	return s.Env != EnvProduction
}

// Database configures Postgres. An empty URL selects the in-memory store.
type Database struct {
	URL       string
	TxTimeout time.Duration
}

// Redis configures the token revocation list backend.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Auth struct {
	JWTSigningKey string
	TokenTTL      time.Duration
	Issuer        string

	// Failed-login lockout per email and client IP.
	LoginMaxAttempts  int
	LoginWindow       time.Duration
	LoginLockDuration time.Duration
}

// Evidence configures uploaded evidence storage.
type Evidence struct {
	Backend  string
	Dir      string
	MaxBytes int64
	MaxFiles int
}

type S3 struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// Kafka configures the outbox publisher. No brokers disables publishing.
type Kafka struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:           stringEnv("VTRACK_ADDR", ":3000"),
			Env:            stringEnv("VTRACK_ENV", EnvDevelopment),
			RequestTimeout: durationEnv("REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: Database{
			URL:       os.Getenv("DATABASE_URL"),
			TxTimeout: durationEnv("TX_TIMEOUT", 5*time.Second),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Auth: Auth{
			JWTSigningKey: jwtSigningKey,
			TokenTTL:      durationEnv("JWT_TTL", 24*time.Hour),
			Issuer:        stringEnv("JWT_ISSUER", "vtrack"),

			LoginMaxAttempts:  intEnv("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:       durationEnv("LOGIN_WINDOW", 15*time.Minute),
			LoginLockDuration: durationEnv("LOGIN_LOCK_DURATION", 15*time.Minute),
		},
		Evidence: Evidence{
			Backend:  stringEnv("EVIDENCE_BACKEND", EvidenceBackendFile),
			Dir:      stringEnv("EVIDENCE_DIR", "./uploads"),
			MaxBytes: int64(intEnv("EVIDENCE_MAX_BYTES", 10<<20)),
			MaxFiles: intEnv("EVIDENCE_MAX_FILES", 10),
		},
		S3: S3{
			Bucket:   os.Getenv("S3_BUCKET"),
			Region:   stringEnv("S3_REGION", "us-east-1"),
			Endpoint: os.Getenv("S3_ENDPOINT"),
			Prefix:   stringEnv("S3_PREFIX", "evidence"),
		},
		Kafka: Kafka{
			Brokers:      listEnv("KAFKA_BROKERS"),
			Topic:        stringEnv("KAFKA_TOPIC", "vtrack.events"),
			PollInterval: durationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		},
	}
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func listEnv(key string) []string {
	raw := os.Getenv(key)
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
