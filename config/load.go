package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape. Pointer fields distinguish "absent" from
// zero so a file only overrides what it names.
type fileConfig struct {
	WorkerCount    *int    `toml:"worker_count" yaml:"worker_count"`
	QueueSize      *int    `toml:"queue_size" yaml:"queue_size"`
	JobTimeout     *string `toml:"job_timeout" yaml:"job_timeout"`
	MaxRetries     *int    `toml:"max_retries" yaml:"max_retries"`
	RetryDelay     *string `toml:"retry_delay" yaml:"retry_delay"`
	DefaultQuality *int    `toml:"default_quality" yaml:"default_quality"`
	DefaultFormat  *string `toml:"default_format" yaml:"default_format"`
	MaxImageBytes  *int64  `toml:"max_image_bytes" yaml:"max_image_bytes"`
	ChunkSize      *int    `toml:"chunk_size" yaml:"chunk_size"`
	Backend        *string `toml:"backend" yaml:"backend"`
	LogLevel       *string `toml:"log_level" yaml:"log_level"`
	LogFormat      *string `toml:"log_format" yaml:"log_format"`

	Storage *struct {
		Backend *string `toml:"backend" yaml:"backend"`
		Local   *struct {
			RootDir     *string `toml:"root_dir" yaml:"root_dir"`
			Permissions *uint32 `toml:"permissions" yaml:"permissions"`
		} `toml:"local" yaml:"local"`
		S3 *struct {
			Bucket          *string `toml:"bucket" yaml:"bucket"`
			Region          *string `toml:"region" yaml:"region"`
			Endpoint        *string `toml:"endpoint" yaml:"endpoint"`
			AccessKeyID     *string `toml:"access_key_id" yaml:"access_key_id"`
			SecretAccessKey *string `toml:"secret_access_key" yaml:"secret_access_key"`
			UseSSL          *bool   `toml:"use_ssl" yaml:"use_ssl"`
		} `toml:"s3" yaml:"s3"`
	} `toml:"storage" yaml:"storage"`

	Engine *struct {
		Cache        *bool `toml:"cache" yaml:"cache"`
		CacheEntries *int  `toml:"cache_entries" yaml:"cache_entries"`
		SIMD         *bool `toml:"simd" yaml:"simd"`
		Concurrency  *int  `toml:"concurrency" yaml:"concurrency"`
	} `toml:"engine" yaml:"engine"`

	Server *struct {
		Addr            *string `toml:"addr" yaml:"addr"`
		ReadTimeout     *string `toml:"read_timeout" yaml:"read_timeout"`
		WriteTimeout    *string `toml:"write_timeout" yaml:"write_timeout"`
		ShutdownTimeout *string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `toml:"server" yaml:"server"`
}

// Load reads a TOML (.toml) or YAML (.yaml, .yml) file on top of Default()
// and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext on top of Default().
func Parse(data []byte, ext string) (Config, error) {
	var fc fileConfig
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("decode toml: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}

	cfg := Default()
	if err := fc.apply(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(c *Config) error {
	setInt(&c.WorkerCount, fc.WorkerCount)
	setInt(&c.QueueSize, fc.QueueSize)
	setInt(&c.MaxRetries, fc.MaxRetries)
	setInt(&c.DefaultQuality, fc.DefaultQuality)
	setInt(&c.ChunkSize, fc.ChunkSize)
	setString(&c.DefaultFormat, fc.DefaultFormat)
	setString(&c.Backend, fc.Backend)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.MaxImageBytes != nil {
		c.MaxImageBytes = *fc.MaxImageBytes
	}
	if err := setDuration(&c.JobTimeout, fc.JobTimeout, "job_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.RetryDelay, fc.RetryDelay, "retry_delay"); err != nil {
		return err
	}

	if s := fc.Storage; s != nil {
		if s.Backend != nil {
			c.Storage = StorageBackend(*s.Backend)
		}
		if l := s.Local; l != nil {
			setString(&c.Local.RootDir, l.RootDir)
			if l.Permissions != nil {
				c.Local.Permissions = *l.Permissions
			}
		}
		if s3 := s.S3; s3 != nil {
			setString(&c.S3.Bucket, s3.Bucket)
			setString(&c.S3.Region, s3.Region)
			setString(&c.S3.Endpoint, s3.Endpoint)
			setString(&c.S3.AccessKeyID, s3.AccessKeyID)
			setString(&c.S3.SecretAccessKey, s3.SecretAccessKey)
			if s3.UseSSL != nil {
				c.S3.UseSSL = *s3.UseSSL
			}
		}
	}

	if e := fc.Engine; e != nil {
		if e.Cache != nil {
			c.Engine.Cache = *e.Cache
		}
		if e.SIMD != nil {
			c.Engine.SIMD = *e.SIMD
		}
		setInt(&c.Engine.CacheEntries, e.CacheEntries)
		setInt(&c.Engine.Concurrency, e.Concurrency)
	}

	if s := fc.Server; s != nil {
		setString(&c.Server.Addr, s.Addr)
		for _, d := range []struct {
			dst  *time.Duration
			src  *string
			name string
		}{
			{&c.Server.ReadTimeout, s.ReadTimeout, "server.read_timeout"},
			{&c.Server.WriteTimeout, s.WriteTimeout, "server.write_timeout"},
			{&c.Server.ShutdownTimeout, s.ShutdownTimeout, "server.shutdown_timeout"},
		} {
			if err := setDuration(d.dst, d.src, d.name); err != nil {
				return err
			}
		}
	}
	return nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, name string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
