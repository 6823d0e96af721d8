package config

import (
	"errors"
	"fmt"
	"time"
)

// StorageBackend selects the storage adapter.
type StorageBackend string

const (
	StorageNone  StorageBackend = "none"
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int // default: engine concurrency
	QueueSize   int // max queued jobs before backpressure; default: 256
	JobTimeout  time.Duration

	// Retry of transient storage failures.
	MaxRetries int
	RetryDelay time.Duration

	// Default encode options applied when a request does not override.
	DefaultQuality int // 1-100; default 80
	DefaultFormat  string

	// Streaming / memory limits.
	MaxImageBytes int64 // 0 = no limit
	ChunkSize     int   // streaming chunk size in bytes; default 32 KiB

	// Storage.
	Storage StorageBackend
	Local   LocalConfig
	S3      S3Config

	// Engine holds the initial process-wide engine settings.
	Engine EngineOptions

	// Codec backend: "go" (pure Go adapters) or "vips" (libvips).
	Backend string

	// HTTP service.
	Server ServerConfig

	// Logging.
	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "text" or "json"
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string
	Permissions uint32 // default 0644
}

// S3Config configures the S3-compatible storage adapter.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // host[:port], e.g. s3.amazonaws.com or a MinIO address
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// EngineOptions are the file/flag form of the engine settings.
type EngineOptions struct {
	Cache        bool
	CacheEntries int // max cached rasters; default 64
	SIMD         bool
	// Concurrency caps simultaneous pipeline runs. 0 means one per CPU.
	Concurrency int
}

// ServerConfig configures the HTTP transform service.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:    0, // resolved at runtime from the engine concurrency
		QueueSize:      256,
		JobTimeout:     30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		DefaultQuality: 80,
		DefaultFormat:  "jpeg",
		ChunkSize:      32 * 1024,
		Storage:        StorageNone,
		Local:          LocalConfig{Permissions: 0o644},
		Engine: EngineOptions{
			Cache:        true,
			CacheEntries: 64,
			SIMD:         true,
		},
		Backend: "go",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("config: MaxRetries must not be negative")
	}
	if c.Engine.Concurrency < 0 {
		return errors.New("config: Engine.Concurrency must not be negative")
	}
	if c.Engine.Cache && c.Engine.CacheEntries <= 0 {
		return errors.New("config: Engine.CacheEntries must be positive when the cache is enabled")
	}
	switch c.Storage {
	case "", StorageNone:
	case StorageLocal:
		if c.Local.RootDir == "" {
			return errors.New("config: Local.RootDir is required for local storage")
		}
	case StorageS3:
		if c.S3.Bucket == "" || c.S3.Endpoint == "" {
			return errors.New("config: S3.Bucket and S3.Endpoint are required for s3 storage")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage)
	}
	switch c.Backend {
	case "", "go", "vips":
	default:
		return fmt.Errorf("config: unknown codec backend %q", c.Backend)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}
