package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	Status    StatusConfig
	Storage   StorageConfig
	Extractor ExtractorConfig
	R2        R2Config
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	PublicURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WorkerConfig struct {
	ClipConcurrency     int
	PlaylistConcurrency int
	TaskTimeout         time.Duration
	MaxRedeliveries     int
}

// StatusConfig controls status record expiry
type StatusConfig struct {
	Retention time.Duration
	// ReadGrace is how long a terminal record survives after its first read.
	// Zero deletes it immediately. Whole seconds only.
	ReadGrace time.Duration
}

type StorageConfig struct {
	WorkDir          string
	DownloadDir      string
	ArchiveRetention time.Duration
}

type ExtractorConfig struct {
	Binary           string
	Timeout          time.Duration // 0 disables the timeout
	MaxPlaylistItems int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// Configured reports whether enough R2 settings are present to build a client
func (c R2Config) Configured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// IsLocal reports whether the process should run without Redis
func (c ServerConfig) IsLocal() bool {
	return strings.EqualFold(c.Env, "local")
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("worker.clip_concurrency", "CLIP_CONCURRENCY")
	_ = v.BindEnv("worker.playlist_concurrency", "PLAYLIST_CONCURRENCY")
	_ = v.BindEnv("worker.task_timeout", "TASK_TIMEOUT")
	_ = v.BindEnv("worker.max_redeliveries", "MAX_REDELIVERIES")
	_ = v.BindEnv("status.retention", "STATUS_RETENTION")
	_ = v.BindEnv("status.read_grace", "STATUS_READ_GRACE")
	_ = v.BindEnv("storage.work_dir", "WORK_DIR")
	_ = v.BindEnv("storage.download_dir", "DOWNLOAD_DIR")
	_ = v.BindEnv("storage.archive_retention", "ARCHIVE_RETENTION")
	_ = v.BindEnv("extractor.binary", "YTDLP_BINARY")
	_ = v.BindEnv("extractor.timeout", "YTDLP_TIMEOUT")
	_ = v.BindEnv("extractor.max_playlist_items", "MAX_PLAYLIST_ITEMS")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Worker defaults: playlist jobs are heavier, each one runs a bulk download
	v.SetDefault("worker.clip_concurrency", 5)
	v.SetDefault("worker.playlist_concurrency", 2)
	v.SetDefault("worker.task_timeout", "2h")
	v.SetDefault("worker.max_redeliveries", 3)

	v.SetDefault("status.retention", "1h")
	v.SetDefault("status.read_grace", "0s")

	v.SetDefault("storage.work_dir", "./temp_work")
	v.SetDefault("storage.download_dir", "./temp_downloads")
	v.SetDefault("storage.archive_retention", "10m")

	v.SetDefault("extractor.binary", "yt-dlp")
	v.SetDefault("extractor.timeout", "0s")
	v.SetDefault("extractor.max_playlist_items", 10)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			PublicURL: strings.TrimRight(v.GetString("server.public_url"), "/"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Worker: WorkerConfig{
			ClipConcurrency:     v.GetInt("worker.clip_concurrency"),
			PlaylistConcurrency: v.GetInt("worker.playlist_concurrency"),
			TaskTimeout:         v.GetDuration("worker.task_timeout"),
			MaxRedeliveries:     v.GetInt("worker.max_redeliveries"),
		},
		Status: StatusConfig{
			Retention: v.GetDuration("status.retention"),
			ReadGrace: v.GetDuration("status.read_grace"),
		},
		Storage: StorageConfig{
			WorkDir:          v.GetString("storage.work_dir"),
			DownloadDir:      v.GetString("storage.download_dir"),
			ArchiveRetention: v.GetDuration("storage.archive_retention"),
		},
		Extractor: ExtractorConfig{
			Binary:           v.GetString("extractor.binary"),
			Timeout:          v.GetDuration("extractor.timeout"),
			MaxPlaylistItems: v.GetInt("extractor.max_playlist_items"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings that would stall the workers or leak state
func (c *Config) Validate() error {
	if c.Worker.ClipConcurrency <= 0 {
		return fmt.Errorf("worker.clip_concurrency must be positive, got %d", c.Worker.ClipConcurrency)
	}
	if c.Worker.PlaylistConcurrency <= 0 {
		return fmt.Errorf("worker.playlist_concurrency must be positive, got %d", c.Worker.PlaylistConcurrency)
	}
	if c.Worker.MaxRedeliveries < 0 {
		return fmt.Errorf("worker.max_redeliveries must not be negative, got %d", c.Worker.MaxRedeliveries)
	}
	if c.Status.Retention <= 0 {
		return fmt.Errorf("status.retention must be positive, got %s", c.Status.Retention)
	}
	if c.Status.ReadGrace < 0 {
		return fmt.Errorf("status.read_grace must not be negative, got %s", c.Status.ReadGrace)
	}
	// Redis expiries are whole seconds; a fractional grace would be rounded
	if c.Status.ReadGrace%time.Second != 0 {
		return fmt.Errorf("status.read_grace must be a whole number of seconds, got %s", c.Status.ReadGrace)
	}
	if c.Storage.ArchiveRetention <= 0 {
		return fmt.Errorf("storage.archive_retention must be positive, got %s", c.Storage.ArchiveRetention)
	}
	if c.Storage.WorkDir == "" || c.Storage.DownloadDir == "" {
		return fmt.Errorf("storage.work_dir and storage.download_dir are required")
	}
	if c.Extractor.Binary == "" {
		return fmt.Errorf("extractor.binary is required")
	}
	return nil
}
