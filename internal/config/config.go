package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Env          string
	ServiceName  string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PostgresDSN   string
	RedisAddr     string
	ClickHouseDSN string
	GeoIPDB       string
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// Identity
	FirebaseCredentialsFile string
	FirebaseProjectID       string
	JWTSecret               string
	SessionSecret           string
	SessionTTL              time.Duration

	// Collaborators
	GCSBucket      string
	AIEndpoint     string
	AIModel        string
	AITimeout      time.Duration
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	EmailFrom      string
	EmailWorkers   int
	EmailQueueSize int

	// Report lifecycle
	UpvoteThreshold int
	MaxUploadBytes  int64
	NotificationTTL time.Duration

	// Per-user rate limiting. One token is returned to a user's bucket every
	// *RateRefill interval.
	EmergencyRateEnabled  bool
	EmergencyRateCapacity int
	EmergencyRateRefill   time.Duration
	UploadRateEnabled     bool
	UploadRateCapacity    int
	UploadRateRefill      time.Duration

	// Scheduled jobs (cron specs with seconds field)
	PredictionSchedule        string
	NotificationSweepSchedule string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Production reports whether the service runs with production defaults.
// Error responses omit internal detail in production.
func (c Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "development", "dev", "staging", "test":
		return false
	}
	return true
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Env = getenv("ENV", "production")
	cfg.ServiceName = getenv("SERVICE_NAME", "nest")
	cfg.Port = getenv("PORT", "5000")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 15*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 30*time.Second)

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/nest?sslmode=disable")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "")
	cfg.GeoIPDB = getenv("GEOIP_DB", "")

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.FirebaseCredentialsFile = getenv("FIREBASE_CREDENTIALS_FILE", "")
	cfg.FirebaseProjectID = getenv("FIREBASE_PROJECT_ID", "")
	cfg.JWTSecret = getenv("JWT_SECRET", "")
	cfg.SessionSecret = getenv("SESSION_SECRET", "")
	cfg.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)

	cfg.GCSBucket = getenv("GCS_BUCKET", "")
	cfg.AIEndpoint = getenv("AI_ENDPOINT", "")
	cfg.AIModel = getenv("AI_MODEL", "llama3")
	cfg.AITimeout = envDuration("AI_TIMEOUT", 30*time.Second)
	cfg.SMTPHost = getenv("SMTP_HOST", "")
	cfg.SMTPPort = envInt("SMTP_PORT", 587)
	cfg.SMTPUser = getenv("SMTP_USER", "")
	cfg.SMTPPassword = getenv("SMTP_PASSWORD", "")
	cfg.EmailFrom = getenv("EMAIL_FROM", "N.E.S.T. <no-reply@nest.local>")
	cfg.EmailWorkers = envInt("EMAIL_WORKERS", 4)
	cfg.EmailQueueSize = envInt("EMAIL_QUEUE_SIZE", 256)

	cfg.UpvoteThreshold = envInt("UPVOTE_THRESHOLD", 5)
	cfg.MaxUploadBytes = int64(envInt("MAX_UPLOAD_BYTES", 10<<20))
	cfg.NotificationTTL = envDuration("NOTIFICATION_TTL", 30*24*time.Hour)

	cfg.EmergencyRateEnabled = envBool("EMERGENCY_RATE_ENABLED", true)
	cfg.EmergencyRateCapacity = envInt("EMERGENCY_RATE_CAPACITY", 3)
	cfg.EmergencyRateRefill = envDuration("EMERGENCY_RATE_REFILL", 20*time.Second)
	cfg.UploadRateEnabled = envBool("UPLOAD_RATE_ENABLED", true)
	cfg.UploadRateCapacity = envInt("UPLOAD_RATE_CAPACITY", 20)
	cfg.UploadRateRefill = envDuration("UPLOAD_RATE_REFILL", 3*time.Second)

	cfg.PredictionSchedule = getenv("PREDICTION_SCHEDULE", "0 0 2 * * *")
	cfg.NotificationSweepSchedule = getenv("NOTIFICATION_SWEEP_SCHEDULE", "0 */15 * * * *")

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACE_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
