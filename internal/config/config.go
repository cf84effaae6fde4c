package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	JWT          JWTConfig
	App          AppConfig
	Redis        RedisConfig
	PubSub       PubSubConfig
	Firebase     FirebaseConfig
	SMTP         SMTPConfig
	Geofence     GeofenceConfig
	Notification NotificationConfig
	Workflow     WorkflowConfig
	Cron         CronConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int
	Env            string
	Version        string
	LogLevel       string
	Timezone       string
	AllowedOrigins []string
}

// RedisConfig is optional. Without Host the locks and dedup keys stay in
// process memory, which only holds for a single API instance.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type PubSubConfig struct {
	ProjectID       string
	TopicID         string
	CredentialsJSON string
}

func (p PubSubConfig) Enabled() bool { return p.ProjectID != "" && p.TopicID != "" }

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

func (f FirebaseConfig) Enabled() bool { return f.ProjectID != "" }

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type GeofenceConfig struct {
	LookupTimeout     time.Duration
	MaxAccuracyMeters float64
	MaxLocationAge    time.Duration
}

type NotificationConfig struct {
	WorkerCount            int
	QueueSize              int
	MaxRetries             int
	RetryBackoff           time.Duration
	DedupTTL               time.Duration
	MaxPerHour             int
	BusinessHourStart      int
	BusinessHourEnd        int
	CriticalDistanceMeters float64
	MuteEmployeeOnApproval bool
}

type WorkflowConfig struct {
	LockTTL              time.Duration
	LookupTimeout        time.Duration
	WeeklyHourLimit      float64
	MonthlyOvertimeLimit float64
}

type CronConfig struct {
	Enabled          bool
	OfflineSpec      string
	OfflineMaxAge    time.Duration
	OfflineBatchSize int
	ReconcileSpec    string
	CleanupSpec      string
	Retention        time.Duration
}

func Load() (*Config, error) {
	// .env is a development convenience; deployments inject the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	} else if err != nil {
		slog.Debug("No .env file found, using process environment")
	}

	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	p := &parser{}
	config := &Config{}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     p.int("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "fieldtime"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	config.App = AppConfig{
		Port:           p.int("APP_PORT", 8080),
		Env:            getEnv("APP_ENV", "development"),
		Version:        getEnv("APP_VERSION", "v1.0.0"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Timezone:       getEnv("APP_TIMEZONE", "Local"),
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS"),
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	config.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", ""),
		Port:     p.int("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       p.int("REDIS_DB", 0),
	}

	config.PubSub = PubSubConfig{
		ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
		TopicID:         getEnv("PUBSUB_TOPIC_ID", ""),
		CredentialsJSON: getEnv("PUBSUB_CREDENTIALS_JSON", ""),
	}

	config.Firebase = FirebaseConfig{
		ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
	}

	config.SMTP = SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     p.int("SMTP_PORT", 587),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "no-reply@fieldtime.local"),
		FromName: getEnv("SMTP_FROM_NAME", "FieldTime"),
	}

	config.Geofence = GeofenceConfig{
		LookupTimeout:     p.duration("GEOFENCE_LOOKUP_TIMEOUT", 3*time.Second),
		MaxAccuracyMeters: p.float("GEOFENCE_MAX_ACCURACY_METERS", 500),
		MaxLocationAge:    p.duration("GEOFENCE_MAX_LOCATION_AGE", 5*time.Minute),
	}

	config.Notification = NotificationConfig{
		WorkerCount:            p.int("NOTIFY_WORKERS", 2),
		QueueSize:              p.int("NOTIFY_QUEUE_SIZE", 1000),
		MaxRetries:             p.int("NOTIFY_MAX_RETRIES", 3),
		RetryBackoff:           p.duration("NOTIFY_RETRY_BACKOFF", 500*time.Millisecond),
		DedupTTL:               p.duration("NOTIFY_DEDUP_TTL", 24*time.Hour),
		MaxPerHour:             p.int("NOTIFY_MAX_PER_HOUR", 10),
		BusinessHourStart:      p.int("NOTIFY_BUSINESS_HOUR_START", 8),
		BusinessHourEnd:        p.int("NOTIFY_BUSINESS_HOUR_END", 18),
		CriticalDistanceMeters: p.float("NOTIFY_CRITICAL_DISTANCE_METERS", 1000),
		MuteEmployeeOnApproval: p.bool("NOTIFY_MUTE_EMPLOYEE_ON_APPROVAL", false),
	}

	config.Workflow = WorkflowConfig{
		LockTTL:              p.duration("WORKFLOW_LOCK_TTL", 10*time.Second),
		LookupTimeout:        p.duration("WORKFLOW_LOOKUP_TIMEOUT", 3*time.Second),
		WeeklyHourLimit:      p.float("TIMESHEET_WEEKLY_HOUR_LIMIT", 60),
		MonthlyOvertimeLimit: p.float("TIMESHEET_MONTHLY_OVERTIME_LIMIT", 40),
	}

	config.Cron = CronConfig{
		Enabled:          p.bool("CRON_ENABLED", true),
		OfflineSpec:      getEnv("CRON_OFFLINE_SPEC", "@every 15m"),
		OfflineMaxAge:    p.duration("CRON_OFFLINE_MAX_AGE", 24*time.Hour),
		OfflineBatchSize: p.int("CRON_OFFLINE_BATCH_SIZE", 100),
		ReconcileSpec:    getEnv("CRON_RECONCILE_SPEC", "30 2 * * *"),
		CleanupSpec:      getEnv("CRON_GEOFENCE_CLEANUP_SPEC", "0 3 * * 0"),
		Retention:        p.duration("GEOFENCE_RETENTION", 90*24*time.Hour),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := time.ParseDuration(c.JWT.AccessExpiration); err != nil {
		return fmt.Errorf("invalid JWT_ACCESS_EXPIRATION_TIME: %w", err)
	}
	n := c.Notification
	if n.BusinessHourStart < 0 || n.BusinessHourEnd > 24 || n.BusinessHourStart >= n.BusinessHourEnd {
		return fmt.Errorf("business hours must satisfy 0 <= start < end <= 24, got %d-%d", n.BusinessHourStart, n.BusinessHourEnd)
	}
	if n.CriticalDistanceMeters <= 0 {
		return fmt.Errorf("NOTIFY_CRITICAL_DISTANCE_METERS must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	return nil
}

// Location is the timezone used for business hours and cron schedules.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(fallback, 'f', -1, 64)), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string = strings.Split(value, ",")
	return result
}
