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

// Storage drivers.
const (
	StorageLocal    = "local"
	StorageS3       = "s3"
	StorageSupabase = "supabase"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Archive  ArchiveConfig
	Jobs     JobsConfig
	Mail     MailConfig
	Geocode  GeocodeConfig
	Intake   IntakeConfig
	Admin    AdminConfig
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
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the object store backend and its buckets.
type StorageConfig struct {
	Driver          string
	FilesBucket     string
	MediaBucket     string
	LocalDir        string
	SignedURLSecret string
	SignedURLTTL    time.Duration

	S3       S3Config
	Supabase SupabaseConfig
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
}

// ArchiveConfig tunes the ZIP builder.
type ArchiveConfig struct {
	FetchConcurrency int
	CompressionLevel int
	MaxFileSizeBytes int64
	FetchTimeout     time.Duration
}

// JobsConfig configures asynchronous archive builds.
type JobsConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
	BufferSize        int
	Retention         time.Duration
	CleanupInterval   time.Duration
}

// MailConfig configures the Resend notification sender.
type MailConfig struct {
	ResendAPIKey string
	From         string
	To           []string
}

// GeocodeConfig configures reverse geocoding.
type GeocodeConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// IntakeConfig bounds multipart uploads.
type IntakeConfig struct {
	MaxUploadBytes int64
	MaxFiles       int
}

// AdminConfig seeds the first admin account at startup.
type AdminConfig struct {
	Email    string
	Password string
	FullName string
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
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Enabled:  v.GetBool("ENABLE_CACHE"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		FilesBucket:     v.GetString("STORAGE_FILES_BUCKET"),
		MediaBucket:     v.GetString("STORAGE_MEDIA_BUCKET"),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 30*time.Minute),
		S3: S3Config{
			Region:    v.GetString("S3_REGION"),
			Endpoint:  v.GetString("S3_ENDPOINT"),
			AccessKey: v.GetString("S3_ACCESS_KEY"),
			SecretKey: v.GetString("S3_SECRET_KEY"),
			PublicURL: strings.TrimRight(v.GetString("S3_PUBLIC_URL"), "/"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
			ServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		},
	}

	cfg.Archive = ArchiveConfig{
		FetchConcurrency: v.GetInt("ARCHIVE_FETCH_CONCURRENCY"),
		CompressionLevel: v.GetInt("ARCHIVE_COMPRESSION_LEVEL"),
		MaxFileSizeBytes: v.GetInt64("ARCHIVE_MAX_FILE_SIZE"),
		FetchTimeout:     parseDuration(v.GetString("ARCHIVE_FETCH_TIMEOUT"), 30*time.Second),
	}

	cfg.Jobs = JobsConfig{
		Enabled:           v.GetBool("ENABLE_ARCHIVE_JOBS"),
		WorkerConcurrency: v.GetInt("ARCHIVE_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("ARCHIVE_WORKER_RETRIES"),
		BufferSize:        v.GetInt("ARCHIVE_QUEUE_BUFFER"),
		Retention:         parseDuration(v.GetString("ARCHIVE_JOB_RETENTION"), 7*24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("ARCHIVE_JOB_CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.Mail = MailConfig{
		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		From:         v.GetString("MAIL_FROM"),
		To:           splitAndTrim(v.GetString("MAIL_TO")),
	}

	cfg.Geocode = GeocodeConfig{
		BaseURL:  strings.TrimRight(v.GetString("GEOCODE_BASE_URL"), "/"),
		Timeout:  parseDuration(v.GetString("GEOCODE_TIMEOUT"), 5*time.Second),
		CacheTTL: parseDuration(v.GetString("GEOCODE_CACHE_TTL"), 24*time.Hour),
	}

	cfg.Intake = IntakeConfig{
		MaxUploadBytes: v.GetInt64("INTAKE_MAX_UPLOAD_SIZE"),
		MaxFiles:       v.GetInt("INTAKE_MAX_FILES"),
	}

	cfg.Admin = AdminConfig{
		Email:    v.GetString("ADMIN_EMAIL"),
		Password: v.GetString("ADMIN_PASSWORD"),
		FullName: v.GetString("ADMIN_FULL_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "partage")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_CACHE", true)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("STORAGE_FILES_BUCKET", "construction-files")
	v.SetDefault("STORAGE_MEDIA_BUCKET", "audio-recordings")
	v.SetDefault("STORAGE_LOCAL_DIR", "./data/storage")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "30m")
	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("ARCHIVE_FETCH_CONCURRENCY", 4)
	v.SetDefault("ARCHIVE_COMPRESSION_LEVEL", 6)
	v.SetDefault("ARCHIVE_MAX_FILE_SIZE", 200*1024*1024)
	v.SetDefault("ARCHIVE_FETCH_TIMEOUT", "30s")

	v.SetDefault("ENABLE_ARCHIVE_JOBS", true)
	v.SetDefault("ARCHIVE_WORKER_CONCURRENCY", 2)
	v.SetDefault("ARCHIVE_WORKER_RETRIES", 3)
	v.SetDefault("ARCHIVE_QUEUE_BUFFER", 64)
	v.SetDefault("ARCHIVE_JOB_RETENTION", "168h")
	v.SetDefault("ARCHIVE_JOB_CLEANUP_INTERVAL", "1h")

	v.SetDefault("MAIL_FROM", "Partage <onboarding@resend.dev>")
	v.SetDefault("MAIL_TO", "")

	v.SetDefault("GEOCODE_BASE_URL", "https://api-adresse.data.gouv.fr")
	v.SetDefault("GEOCODE_TIMEOUT", "5s")
	v.SetDefault("GEOCODE_CACHE_TTL", "24h")

	v.SetDefault("INTAKE_MAX_UPLOAD_SIZE", 256*1024*1024)
	v.SetDefault("INTAKE_MAX_FILES", 50)
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
