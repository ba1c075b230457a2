// Package config loads claimdesk settings from defaults, an optional YAML
// file, and CLAIMDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"claimdesk/internal/blob"
	"claimdesk/internal/core"
)

// EnvPrefix namespaces environment overrides: http.addr is CLAIMDESK_HTTP_ADDR.
const EnvPrefix = "CLAIMDESK"

const redacted = "******"

// Config is the effective process configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Blob      BlobConfig      `mapstructure:"blob" yaml:"blob"`
	Documents DocumentsConfig `mapstructure:"documents" yaml:"documents"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// DatabaseConfig locates the row store. URL and Key are the hosted
// database endpoint and its access key.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver"`
	URL          string `mapstructure:"url" yaml:"url"`
	Key          string `mapstructure:"key" yaml:"key"`
	SQLitePath   string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

type BlobConfig struct {
	Driver            string `mapstructure:"driver" yaml:"driver"`
	FSRoot            string `mapstructure:"fs_root" yaml:"fs_root"`
	S3Bucket          string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region          string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3PathStyle       bool   `mapstructure:"s3_path_style" yaml:"s3_path_style"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id" yaml:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key" yaml:"s3_secret_access_key"`
}

type DocumentsConfig struct {
	MaxSizeMB int64 `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RateBurst:         20,
		},
		Database: DatabaseConfig{
			Driver:     string(core.StoragePostgres),
			SQLitePath: "claimdesk.db",
		},
		Blob: BlobConfig{
			Driver:   string(blob.DriverFilesystem),
			FSRoot:   "./blobdata",
			S3Region: "us-east-1",
		},
		Documents: DocumentsConfig{MaxSizeMB: 10},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// NewViper returns a viper instance seeded with Defaults and bound to the
// CLAIMDESK_ environment.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	defaults := map[string]any{
		"http.addr":                 d.HTTP.Addr,
		"http.read_header_timeout":  d.HTTP.ReadHeaderTimeout,
		"http.shutdown_timeout":     d.HTTP.ShutdownTimeout,
		"http.rate_limit":           d.HTTP.RateLimit,
		"http.rate_burst":           d.HTTP.RateBurst,
		"database.driver":           d.Database.Driver,
		"database.url":              d.Database.URL,
		"database.key":              d.Database.Key,
		"database.sqlite_path":      d.Database.SQLitePath,
		"database.max_open_conns":   d.Database.MaxOpenConns,
		"blob.driver":               d.Blob.Driver,
		"blob.fs_root":              d.Blob.FSRoot,
		"blob.s3_bucket":            d.Blob.S3Bucket,
		"blob.s3_region":            d.Blob.S3Region,
		"blob.s3_endpoint":          d.Blob.S3Endpoint,
		"blob.s3_path_style":        d.Blob.S3PathStyle,
		"blob.s3_access_key_id":     d.Blob.S3AccessKeyID,
		"blob.s3_secret_access_key": d.Blob.S3SecretAccessKey,
		"documents.max_size_mb":     d.Documents.MaxSizeMB,
		"log.level":                 d.Log.Level,
		"log.format":                d.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Decode reads the configuration held by v without validating it.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Database.Driver) {
	case core.StoragePostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
		if strings.TrimSpace(c.Database.Key) == "" {
			errs = append(errs, errors.New("database.key is required for the postgres driver"))
		}
	case core.StorageSQLite, core.StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverS3:
		if c.Blob.S3Bucket == "" {
			errs = append(errs, errors.New("blob.s3_bucket is required for the s3 driver"))
		}
	case blob.DriverFilesystem, blob.DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown blob.driver %q", c.Blob.Driver))
	}
	if c.Documents.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("documents.max_size_mb must be positive"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Storage converts the database section for core.OpenRowStore.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:       core.StorageDriver(c.Database.Driver),
		URL:          c.Database.URL,
		Key:          c.Database.Key,
		SQLitePath:   c.Database.SQLitePath,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// BlobStore converts the blob section for blob.Open.
func (c Config) BlobStore() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3Region,
			Bucket:          c.Blob.S3Bucket,
			Endpoint:        c.Blob.S3Endpoint,
			AccessKeyID:     c.Blob.S3AccessKeyID,
			SecretAccessKey: c.Blob.S3SecretAccessKey,
			PathStyle:       c.Blob.S3PathStyle,
		},
	}
}

// MaxDocumentBytes returns the upload limit in bytes.
func (c Config) MaxDocumentBytes() int64 { return c.Documents.MaxSizeMB << 20 }

// Redacted returns a copy with secrets masked for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Database.Key = mask(c.Database.Key)
	c.Blob.S3SecretAccessKey = mask(c.Blob.S3SecretAccessKey)
	return c
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("unknown log.level %q", raw)
	}
	return level, nil
}
