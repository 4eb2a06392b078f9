// Package config loads runtime settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"port"`
	BaseURL     string `mapstructure:"base_url"`
	DatabaseURL string `mapstructure:"database_url"`
	LogLevel    string `mapstructure:"log_level"`

	AccessSecret  string        `mapstructure:"jwt_secret"`
	RefreshSecret string        `mapstructure:"jwt_refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_token_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`

	S3Endpoint       string `mapstructure:"s3_endpoint"`
	S3PublicEndpoint string `mapstructure:"s3_public_endpoint"`
	S3Bucket         string `mapstructure:"s3_bucket"`
	S3AccessKey      string `mapstructure:"s3_access_key"`
	S3SecretKey      string `mapstructure:"s3_secret_key"`
	S3Region         string `mapstructure:"s3_region"`

	RedisURL  string `mapstructure:"redis_url"`
	AMQPURL   string `mapstructure:"amqp_url"`
	GeoIPPath string `mapstructure:"geoip_db_path"`

	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

var defaults = map[string]any{
	"port":              "8080",
	"base_url":          "http://localhost:8080",
	"log_level":         "info",
	"access_token_ttl":  15 * time.Minute,
	"refresh_token_ttl": 10 * 24 * time.Hour,
	"request_timeout":   30 * time.Second,
	"storage_timeout":   60 * time.Second,
	"max_upload_bytes":  int64(500 * 1024 * 1024),
	"s3_endpoint":       "http://localhost:3900",
	"s3_bucket":         "vibeverse",
	"s3_region":         "eu-central-1",
}

// Load reads .env (when present), then a config file if configFile is not
// empty, then the environment. Each key is read from VIBEVERSE_<KEY> first
// and <KEY> second, so DATABASE_URL and JWT_SECRET work unprefixed.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for _, key := range keys() {
		upper := strings.ToUpper(key)
		if err := v.BindEnv(key, "VIBEVERSE_"+upper, upper); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.AccessSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("access token lifetime must be shorter than refresh token lifetime"))
	}
	return errors.Join(errs...)
}

func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

func keys() []string {
	return []string{
		"port", "base_url", "database_url", "log_level",
		"jwt_secret", "jwt_refresh_secret", "access_token_ttl", "refresh_token_ttl",
		"request_timeout", "storage_timeout", "max_upload_bytes",
		"s3_endpoint", "s3_public_endpoint", "s3_bucket", "s3_access_key", "s3_secret_key", "s3_region",
		"redis_url", "amqp_url", "geoip_db_path",
		"webhook_url", "webhook_secret",
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
