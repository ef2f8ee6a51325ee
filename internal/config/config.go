// Package config loads scriptyard's server configuration from environment
// variables (SCRIPTYARD_ prefix), an optional YAML file, and defaults,
// following the teacher's own config.Load() convention of layering
// viper.SetDefault under an explicit config file under viper.BindEnv, so
// environment variables override the file and the file overrides defaults.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, typed server configuration.
type Config struct {
	DataPath string `mapstructure:"data_path"`

	HTTPHost string `mapstructure:"http_host"`
	HTTPPort string `mapstructure:"http_port"`

	SecretKey string `mapstructure:"secret_key"`

	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
	AdminEmail    string `mapstructure:"admin_email"`

	DefaultScriptTimeoutSeconds int `mapstructure:"default_script_timeout_seconds"`
	DefaultMemoryLimitMB        int `mapstructure:"default_memory_limit_mb"`

	RateLimitEnabled bool   `mapstructure:"rate_limit_enabled"`
	DefaultAPIKey    string `mapstructure:"default_api_key"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     string `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPFrom     string `mapstructure:"smtp_from"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	Debug     bool   `mapstructure:"debug"`

	WorkerPoolSize            int   `mapstructure:"worker_pool_size"`
	RunQueueCapacity          int   `mapstructure:"run_queue_capacity"`
	OutputByteBudgetPerStream int64 `mapstructure:"output_byte_budget_per_stream"`
	RetentionKeepNewest       int   `mapstructure:"retention_keep_newest"`
	RetentionMaxAgeDays       int   `mapstructure:"retention_max_age_days"`
	OrphanGracePeriodSeconds  int   `mapstructure:"orphan_grace_period_seconds"`
}

// GenerateRandomPassword returns a cryptographically random password
// suitable for seeding the first admin user when admin_password is left
// unset. Callers are expected to log the result exactly once at startup.
func GenerateRandomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("config: generate random password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DefaultScriptTimeout returns DefaultScriptTimeoutSeconds as a Duration.
func (c *Config) DefaultScriptTimeout() time.Duration {
	return time.Duration(c.DefaultScriptTimeoutSeconds) * time.Second
}

// OrphanGracePeriod returns OrphanGracePeriodSeconds as a Duration.
func (c *Config) OrphanGracePeriod() time.Duration {
	return time.Duration(c.OrphanGracePeriodSeconds) * time.Second
}

const envPrefix = "SCRIPTYARD"

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_path", "./scriptyard-data")
	v.SetDefault("http_host", "127.0.0.1")
	v.SetDefault("http_port", "8080")
	v.SetDefault("default_script_timeout_seconds", 300)
	v.SetDefault("default_memory_limit_mb", 512)
	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("debug", false)
	v.SetDefault("worker_pool_size", 4)
	v.SetDefault("run_queue_capacity", 64)
	v.SetDefault("output_byte_budget_per_stream", 1<<20)
	v.SetDefault("retention_keep_newest", 100)
	v.SetDefault("retention_max_age_days", 30)
	v.SetDefault("orphan_grace_period_seconds", 60)
}

var configKeys = []string{
	"data_path", "http_host", "http_port", "secret_key",
	"admin_username", "admin_password", "admin_email",
	"default_script_timeout_seconds", "default_memory_limit_mb",
	"rate_limit_enabled", "default_api_key",
	"smtp_host", "smtp_port", "smtp_username", "smtp_password", "smtp_from",
	"log_level", "log_format", "debug",
	"worker_pool_size", "run_queue_capacity", "output_byte_budget_per_stream",
	"retention_keep_newest", "retention_max_age_days", "orphan_grace_period_seconds",
}

// Load resolves configuration from (in increasing priority): built-in
// defaults, an optional YAML file at configFile (ignored if empty or
// missing), then SCRIPTYARD_-prefixed environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("config: data_path must not be empty")
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("config: worker_pool_size must be positive")
	}
	if c.RunQueueCapacity <= 0 {
		return fmt.Errorf("config: run_queue_capacity must be positive")
	}
	switch c.LogFormat {
	case "console", "json", "text":
	default:
		return fmt.Errorf("config: log_format must be console, text or json, got %q", c.LogFormat)
	}
	return nil
}
