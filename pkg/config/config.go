package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Dispatch policies for invitation delivery.
const (
	DispatchStrict                = "strict"
	DispatchSimulateOnRestriction = "simulate-on-restriction"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Scheduling  SchedulingConfig
	Recurrence  RecurrenceConfig
	Invitations InvitationConfig
	Mail        MailConfig
	Cache       CacheConfig
	Worker      WorkerConfig
	Templates   TemplatesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig holds slot assignment policy flags.
type SchedulingConfig struct {
	AllowMultiRole             bool
	ForbidDuplicateRoles       bool
	SignupRequiresConfirmation bool
}

// RecurrenceConfig bounds series materialization.
type RecurrenceConfig struct {
	MaxInstances int
}

// InvitationConfig governs invitation lifetime and delivery.
type InvitationConfig struct {
	TTL             time.Duration
	DispatchPolicy  string
	DispatchTimeout time.Duration
	BulkConcurrency int
	ReservationTTL  time.Duration
	AcceptURL       string
	LinkSecret      string
}

// MailConfig configures the SendGrid mailer.
type MailConfig struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

// CacheConfig governs the event listing cache.
type CacheConfig struct {
	Enabled  bool
	EventTTL time.Duration
}

// WorkerConfig configures the periodic maintenance worker.
type WorkerConfig struct {
	ExtendSeriesSchedule     string
	ExpireInvitationSchedule string
	QueueWorkers             int
	QueueRetries             int
}

// TemplatesConfig points at the optional event-type template file.
type TemplatesConfig struct {
	File string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduling = SchedulingConfig{
		AllowMultiRole:             v.GetBool("SCHEDULING_ALLOW_MULTI_ROLE"),
		ForbidDuplicateRoles:       v.GetBool("SCHEDULING_FORBID_DUPLICATE_ROLES"),
		SignupRequiresConfirmation: v.GetBool("SCHEDULING_SIGNUP_REQUIRES_CONFIRMATION"),
	}

	maxInstances := v.GetInt("RECURRENCE_MAX_INSTANCES")
	if maxInstances <= 0 {
		maxInstances = 104
	}
	cfg.Recurrence = RecurrenceConfig{MaxInstances: maxInstances}

	cfg.Invitations = InvitationConfig{
		TTL:             parseDuration(v.GetString("INVITATION_TTL"), 7*24*time.Hour),
		DispatchPolicy:  normalizePolicy(v.GetString("INVITATION_DISPATCH_POLICY")),
		DispatchTimeout: parseDuration(v.GetString("INVITATION_DISPATCH_TIMEOUT"), 10*time.Second),
		BulkConcurrency: v.GetInt("INVITATION_BULK_CONCURRENCY"),
		ReservationTTL:  parseDuration(v.GetString("INVITATION_RESERVATION_TTL"), 30*time.Second),
		AcceptURL:       v.GetString("INVITATION_ACCEPT_URL"),
		LinkSecret:      v.GetString("INVITATION_LINK_SECRET"),
	}

	cfg.Mail = MailConfig{
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
	}

	cfg.Cache = CacheConfig{
		Enabled:  v.GetBool("ENABLE_EVENT_CACHE"),
		EventTTL: parseDuration(v.GetString("EVENT_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Worker = WorkerConfig{
		ExtendSeriesSchedule:     v.GetString("WORKER_EXTEND_SERIES_SCHEDULE"),
		ExpireInvitationSchedule: v.GetString("WORKER_EXPIRE_INVITATIONS_SCHEDULE"),
		QueueWorkers:             v.GetInt("NOTIFICATION_WORKERS"),
		QueueRetries:             v.GetInt("NOTIFICATION_RETRIES"),
	}

	cfg.Templates = TemplatesConfig{File: v.GetString("EVENT_TEMPLATES_FILE")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "church_music")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULING_ALLOW_MULTI_ROLE", false)
	v.SetDefault("SCHEDULING_FORBID_DUPLICATE_ROLES", false)
	v.SetDefault("SCHEDULING_SIGNUP_REQUIRES_CONFIRMATION", true)

	v.SetDefault("RECURRENCE_MAX_INSTANCES", 104)

	v.SetDefault("INVITATION_TTL", "168h")
	v.SetDefault("INVITATION_DISPATCH_POLICY", DispatchStrict)
	v.SetDefault("INVITATION_DISPATCH_TIMEOUT", "10s")
	v.SetDefault("INVITATION_BULK_CONCURRENCY", 4)
	v.SetDefault("INVITATION_RESERVATION_TTL", "30s")
	v.SetDefault("INVITATION_ACCEPT_URL", "http://localhost:3000/invitations/accept")
	v.SetDefault("INVITATION_LINK_SECRET", "dev_invitation_secret")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.org")
	v.SetDefault("MAIL_FROM_NAME", "Church Music")

	v.SetDefault("ENABLE_EVENT_CACHE", false)
	v.SetDefault("EVENT_CACHE_TTL", "2m")

	v.SetDefault("WORKER_EXTEND_SERIES_SCHEDULE", "@daily")
	v.SetDefault("WORKER_EXPIRE_INVITATIONS_SCHEDULE", "@hourly")
	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_RETRIES", 3)

	v.SetDefault("EVENT_TEMPLATES_FILE", "")
}

// normalizePolicy only accepts the known policies; anything else is strict.
func normalizePolicy(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), DispatchSimulateOnRestriction) {
		return DispatchSimulateOnRestriction
	}
	return DispatchStrict
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
