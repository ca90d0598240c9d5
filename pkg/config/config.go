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

// Backup drivers accepted by BACKUP_DRIVER.
const (
	BackupDriverFile     = "file"
	BackupDriverPostgres = "postgres"
	BackupDriverRedis    = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Backup   BackupConfig
	Roster   RosterConfig
	Period   PeriodConfig
	Export   ExportConfig
	Metrics  MetricsConfig
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
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BackupConfig selects where the session snapshot is persisted.
type BackupConfig struct {
	Driver    string
	SessionID string
	FileDir   string
}

// RosterConfig controls roster upload parsing.
type RosterConfig struct {
	CodeColumns    []string
	NameColumns    []string
	MaxUploadBytes int64
}

// PeriodConfig bounds the year selector.
type PeriodConfig struct {
	MinYear int
	MaxYear int
}

// ExportConfig governs rendered sheet storage and download links.
type ExportConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	Retention         time.Duration
	SheetName         string
	Filename          string
	WorkerConcurrency int
	WorkerRetries     int
}

type MetricsConfig struct {
	Enabled bool
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
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Backup = BackupConfig{
		Driver:    strings.ToLower(strings.TrimSpace(v.GetString("BACKUP_DRIVER"))),
		SessionID: v.GetString("BACKUP_SESSION_ID"),
		FileDir:   v.GetString("BACKUP_FILE_DIR"),
	}

	maxUpload := v.GetInt64("ROSTER_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	cfg.Roster = RosterConfig{
		CodeColumns:    splitAndTrim(v.GetString("ROSTER_CODE_COLUMNS")),
		NameColumns:    splitAndTrim(v.GetString("ROSTER_NAME_COLUMNS")),
		MaxUploadBytes: maxUpload,
	}

	cfg.Period = PeriodConfig{
		MinYear: v.GetInt("PERIOD_MIN_YEAR"),
		MaxYear: v.GetInt("PERIOD_MAX_YEAR"),
	}
	if cfg.Period.MaxYear < cfg.Period.MinYear {
		return nil, errors.New("PERIOD_MAX_YEAR must not be lower than PERIOD_MIN_YEAR")
	}

	cfg.Export = ExportConfig{
		StorageDir:        v.GetString("EXPORT_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORT_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORT_SIGNED_URL_TTL"), 24*time.Hour),
		Retention:         parseDuration(v.GetString("EXPORT_RETENTION"), 72*time.Hour),
		SheetName:         v.GetString("EXPORT_SHEET_NAME"),
		Filename:          v.GetString("EXPORT_FILENAME"),
		WorkerConcurrency: v.GetInt("EXPORT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORT_WORKER_RETRIES"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	switch cfg.Backup.Driver {
	case BackupDriverFile, BackupDriverPostgres, BackupDriverRedis:
	default:
		return nil, errors.New("BACKUP_DRIVER must be one of file, postgres, redis")
	}

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
	v.SetDefault("DB_NAME", "attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "attendance:snapshot:")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BACKUP_DRIVER", BackupDriverFile)
	v.SetDefault("BACKUP_SESSION_ID", "attendance-entry")
	v.SetDefault("BACKUP_FILE_DIR", "./backup")

	v.SetDefault("ROSTER_CODE_COLUMNS", "Post Code,Pos Code,Employee Code")
	v.SetDefault("ROSTER_NAME_COLUMNS", "Employee Name,Name")
	v.SetDefault("ROSTER_MAX_UPLOAD_BYTES", 10*1024*1024)

	v.SetDefault("PERIOD_MIN_YEAR", 2020)
	v.SetDefault("PERIOD_MAX_YEAR", 2030)

	v.SetDefault("EXPORT_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORT_SIGNED_URL_SECRET", "dev_export_secret")
	v.SetDefault("EXPORT_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORT_RETENTION", "72h")
	v.SetDefault("EXPORT_SHEET_NAME", "Attendance")
	v.SetDefault("EXPORT_FILENAME", "attendance_sheet")
	v.SetDefault("EXPORT_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORT_WORKER_RETRIES", 2)

	v.SetDefault("ENABLE_METRICS", true)
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
