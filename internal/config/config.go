// Package config loads application configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers understood by StorageDriver.
const (
	DriverMinio  = "minio"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port      string
	AppEnv    string
	ServerURL string // externally visible origin used to build proxy URLs
	CORS      []string

	// Object storage (S3-compatible: MinIO locally, any S3 provider in production)
	StorageDriver           string
	StorageEndpoint         string
	StorageRegion           string
	StorageAccessKey        string
	StorageSecretKey        string
	StorageBucket           string
	StorageUseSSL           bool
	StorageAutoCreateBucket bool
	StoragePublicPolicy     bool
	// StatCacheSize bounds the HEAD metadata cache; 0 disables it.
	StatCacheSize int
	StatCacheTTL  time.Duration

	VideoUploadsEnabled  bool
	FFmpegPath           string
	MaxUploadBytes       int64
	ImageQuality         int
	ImageMaxDimension    int
	TranscodeConcurrency int

	// UploadJWTSecret guards POST /upload when non-empty. Tokens are issued
	// by the external auth service; this service only verifies them.
	UploadJWTSecret string

	LogLevel slog.Level
	LogJSON  bool
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	return &Config{
		Port:      getEnv("PORT", "3000"),
		AppEnv:    getEnv("APP_ENV", "development"),
		ServerURL: strings.TrimRight(getEnv("SERVER_URL", "http://localhost:3000"), "/"),
		CORS:      getList("CORS_ORIGINS", []string{"*"}),

		StorageDriver:           strings.ToLower(getEnv("STORAGE_DRIVER", DriverMinio)),
		StorageEndpoint:         getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageRegion:           getEnv("STORAGE_REGION", "us-east-1"),
		StorageAccessKey:        getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey:        getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageBucket:           getEnv("STORAGE_BUCKET", "media"),
		StorageUseSSL:           getBool("STORAGE_USE_SSL", false),
		StorageAutoCreateBucket: getBool("STORAGE_AUTO_CREATE_BUCKET", true),
		StoragePublicPolicy:     getBool("STORAGE_PUBLIC_POLICY", true),
		StatCacheSize:           getInt("STAT_CACHE_SIZE", 1024),
		StatCacheTTL:            getDuration("STAT_CACHE_TTL", 5*time.Minute),

		VideoUploadsEnabled:  getBool("VIDEO_UPLOADS_ENABLED", false),
		FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
		MaxUploadBytes:       getInt64("MAX_UPLOAD_BYTES", 50<<20),
		ImageQuality:         getInt("IMAGE_QUALITY", 80),
		ImageMaxDimension:    getInt("IMAGE_MAX_DIMENSION", 0),
		TranscodeConcurrency: getInt("TRANSCODE_CONCURRENCY", runtime.NumCPU()),

		UploadJWTSecret: getEnv("UPLOAD_JWT_SECRET", ""),

		LogLevel: getLevel("LOG_LEVEL", slog.LevelInfo),
		LogJSON:  getBool("LOG_JSON", false),
	}
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid log level, using default", "key", key, "value", v)
		return fallback
	}
	return level
}
