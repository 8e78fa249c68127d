package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Storage    StorageConfig
	S3         S3Config
	Extraction ExtractionConfig
	Queue      QueueConfig
	Ingest     IngestConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DB drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBConfig holds database connection settings.
type DBConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"sslmode"`
	MaxOpen    int    `mapstructure:"max_open"`
	MaxIdle    int    `mapstructure:"max_idle"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DSN returns the connection string for the configured driver.
func (d *DBConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", d.SQLitePath)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Storage providers.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// StorageConfig holds upload storage settings.
type StorageConfig struct {
	Provider      string `mapstructure:"provider"`
	Dir           string `mapstructure:"dir"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	MaxFiles      int    `mapstructure:"max_files"`
}

// MaxFileSize returns the per-file limit in bytes.
func (s *StorageConfig) MaxFileSize() int64 {
	return s.MaxFileSizeMB << 20
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// ExtractionConfig holds layout extraction limits.
type ExtractionConfig struct {
	TimeoutSecs  int   `mapstructure:"timeout_secs"`
	SyncMaxBytes int64 `mapstructure:"sync_max_bytes"`
}

// Timeout returns the extraction deadline.
func (e *ExtractionConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// QueueConfig holds background pipeline settings.
type QueueConfig struct {
	Size int `mapstructure:"size"`
}

// IngestConfig holds watched-directory settings. An empty Dir disables the watcher.
type IngestConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
	Uploader string        `mapstructure:"uploader"`
}

// JWTConfig holds bearer-token verification settings. An empty secret disables verification.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// RateLimitConfig holds per-client upload rate limits.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings. Level "debug" keeps gin in debug mode;
// Format is "console" or "plain".
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from environment variables with the CERTMAP_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CERTMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":3001")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "certmap")
	v.SetDefault("db.password", "certmap_secret")
	v.SetDefault("db.name", "certmap")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)
	v.SetDefault("db.sqlite_path", "data/certmap.db")

	// Storage defaults
	v.SetDefault("storage.provider", StorageLocal)
	v.SetDefault("storage.dir", "uploads")
	v.SetDefault("storage.max_file_size_mb", 20)
	v.SetDefault("storage.max_files", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "certmap-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.presign_expiry", 3600)

	// Extraction defaults
	v.SetDefault("extraction.timeout_secs", 30)
	v.SetDefault("extraction.sync_max_bytes", 2<<20)

	// Queue defaults
	v.SetDefault("queue.size", 100)

	// Ingest defaults
	v.SetDefault("ingest.dir", "")
	v.SetDefault("ingest.debounce", "500ms")
	v.SetDefault("ingest.uploader", "watcher")

	// JWT defaults
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	// Rate limit defaults
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 10)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:5173,http://127.0.0.1:5173")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":               "CERTMAP_SERVER_PORT",
		"server.read_timeout":       "CERTMAP_SERVER_READ_TIMEOUT",
		"server.write_timeout":      "CERTMAP_SERVER_WRITE_TIMEOUT",
		"server.environment":        "CERTMAP_SERVER_ENVIRONMENT",
		"db.driver":                 "CERTMAP_DB_DRIVER",
		"db.host":                   "CERTMAP_DB_HOST",
		"db.port":                   "CERTMAP_DB_PORT",
		"db.user":                   "CERTMAP_DB_USER",
		"db.password":               "CERTMAP_DB_PASSWORD",
		"db.name":                   "CERTMAP_DB_NAME",
		"db.sslmode":                "CERTMAP_DB_SSLMODE",
		"db.max_open":               "CERTMAP_DB_MAX_OPEN",
		"db.max_idle":               "CERTMAP_DB_MAX_IDLE",
		"db.sqlite_path":            "CERTMAP_DB_SQLITE_PATH",
		"storage.provider":          "CERTMAP_STORAGE_PROVIDER",
		"storage.dir":               "CERTMAP_STORAGE_DIR",
		"storage.max_file_size_mb":  "CERTMAP_STORAGE_MAX_FILE_SIZE_MB",
		"storage.max_files":         "CERTMAP_STORAGE_MAX_FILES",
		"s3.region":                 "CERTMAP_S3_REGION",
		"s3.bucket":                 "CERTMAP_S3_BUCKET",
		"s3.endpoint":               "CERTMAP_S3_ENDPOINT",
		"s3.access_key":             "CERTMAP_S3_ACCESS_KEY",
		"s3.secret_key":             "CERTMAP_S3_SECRET_KEY",
		"s3.presign_expiry":         "CERTMAP_S3_PRESIGN_EXPIRY",
		"extraction.timeout_secs":   "CERTMAP_EXTRACTION_TIMEOUT_SECS",
		"extraction.sync_max_bytes": "CERTMAP_EXTRACTION_SYNC_MAX_BYTES",
		"queue.size":                "CERTMAP_QUEUE_SIZE",
		"ingest.dir":                "CERTMAP_INGEST_DIR",
		"ingest.debounce":           "CERTMAP_INGEST_DEBOUNCE",
		"ingest.uploader":           "CERTMAP_INGEST_UPLOADER",
		"jwt.secret":                "CERTMAP_JWT_SECRET",
		"jwt.issuer":                "CERTMAP_JWT_ISSUER",
		"rate_limit.rps":            "CERTMAP_RATE_LIMIT_RPS",
		"rate_limit.burst":          "CERTMAP_RATE_LIMIT_BURST",
		"log.level":                 "CERTMAP_LOG_LEVEL",
		"log.format":                "CERTMAP_LOG_FORMAT",
		"cors.allowed_origins":      "CERTMAP_CORS_ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Hosting platforms set a PORT env var. Use it if CERTMAP_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("CERTMAP_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Driver:     strings.ToLower(v.GetString("db.driver")),
		Host:       v.GetString("db.host"),
		Port:       v.GetInt("db.port"),
		User:       v.GetString("db.user"),
		Password:   v.GetString("db.password"),
		Name:       v.GetString("db.name"),
		SSLMode:    v.GetString("db.sslmode"),
		MaxOpen:    v.GetInt("db.max_open"),
		MaxIdle:    v.GetInt("db.max_idle"),
		SQLitePath: v.GetString("db.sqlite_path"),
	}
	if cfg.DB.Driver != DriverPostgres && cfg.DB.Driver != DriverSQLite {
		return nil, fmt.Errorf("config: unsupported db driver %q", cfg.DB.Driver)
	}

	cfg.Storage = StorageConfig{
		Provider:      strings.ToLower(v.GetString("storage.provider")),
		Dir:           v.GetString("storage.dir"),
		MaxFileSizeMB: v.GetInt64("storage.max_file_size_mb"),
		MaxFiles:      v.GetInt("storage.max_files"),
	}
	if cfg.Storage.Provider != StorageLocal && cfg.Storage.Provider != StorageS3 {
		return nil, fmt.Errorf("config: unsupported storage provider %q", cfg.Storage.Provider)
	}

	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Extraction = ExtractionConfig{
		TimeoutSecs:  v.GetInt("extraction.timeout_secs"),
		SyncMaxBytes: v.GetInt64("extraction.sync_max_bytes"),
	}
	cfg.Queue = QueueConfig{
		Size: v.GetInt("queue.size"),
	}
	cfg.Ingest = IngestConfig{
		Dir:      v.GetString("ingest.dir"),
		Debounce: v.GetDuration("ingest.debounce"),
		Uploader: v.GetString("ingest.uploader"),
	}
	cfg.JWT = JWTConfig{
		Secret: v.GetString("jwt.secret"),
		Issuer: v.GetString("jwt.issuer"),
	}
	cfg.RateLimit = RateLimitConfig{
		RPS:   v.GetFloat64("rate_limit.rps"),
		Burst: v.GetInt("rate_limit.burst"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: corsOrigins,
	}

	return cfg, nil
}
