package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/psantana5/euclid/internal/tlsconfig"
	"github.com/psantana5/euclid/pkg/cleanup"
	"github.com/psantana5/euclid/pkg/logging"
	"github.com/psantana5/euclid/pkg/retry"
	"github.com/psantana5/euclid/pkg/store"
	"github.com/psantana5/euclid/pkg/tracing"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EUCLID_SERVER_ADDRESS
const EnvPrefix = "EUCLID"

// Config is the full runtime configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch"`
	Client    ClientConfig    `mapstructure:"client" yaml:"client"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	MetricsAddress  string        `mapstructure:"metrics_address" yaml:"metrics_address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLSCert         string        `mapstructure:"tls_cert" yaml:"tls_cert,omitempty"`
	TLSKey          string        `mapstructure:"tls_key" yaml:"tls_key,omitempty"`
	// TLSClientCA enables mutual TLS on the API listener
	TLSClientCA string `mapstructure:"tls_client_ca" yaml:"tls_client_ca,omitempty"`
}

type StoreConfig struct {
	Type            string        `mapstructure:"type" yaml:"type"`
	Path            string        `mapstructure:"path" yaml:"path"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn,omitempty"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	// File additionally writes to /var/log/euclid/<component>.log
	File      bool `mapstructure:"file" yaml:"file"`
	MaxSizeMB int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	RPS     float64 `mapstructure:"rps" yaml:"rps"`
	Burst   int     `mapstructure:"burst" yaml:"burst"`
	// TrustedProxies may set X-Forwarded-For; IPs or CIDRs
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies,omitempty"`
}

type AuthConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	APIKeyHash string `mapstructure:"api_key_hash" yaml:"api_key_hash,omitempty"`
}

type BatchConfig struct {
	// Workers of 0 means one per logical CPU
	Workers  int `mapstructure:"workers" yaml:"workers"`
	MaxPairs int `mapstructure:"max_pairs" yaml:"max_pairs"`
}

type ClientConfig struct {
	ServerURL  string        `mapstructure:"server_url" yaml:"server_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	CAFile     string        `mapstructure:"ca_file" yaml:"ca_file,omitempty"`
	CertFile   string        `mapstructure:"cert_file" yaml:"cert_file,omitempty"`
	KeyFile    string        `mapstructure:"key_file" yaml:"key_file,omitempty"`
}

type RetentionConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAge         time.Duration `mapstructure:"max_age" yaml:"max_age"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	VacuumInterval time.Duration `mapstructure:"vacuum_interval" yaml:"vacuum_interval"`
}

// SetDefaults registers every key so environment overrides apply to all of them
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.tls_client_ca", "")

	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.path", "euclid.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_open_conns", 25)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", false)
	v.SetDefault("log.max_size_mb", 100)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "euclid")
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.trusted_proxies", []string{})

	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.api_key_hash", "")

	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.max_pairs", 10000)

	v.SetDefault("client.server_url", "")
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.ca_file", "")
	v.SetDefault("client.cert_file", "")
	v.SetDefault("client.key_file", "")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.max_age", 30*24*time.Hour)
	v.SetDefault("retention.interval", time.Hour)
	v.SetDefault("retention.vacuum_interval", 7*24*time.Hour)
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. An explicit file must exist; without one,
// $HOME/.euclid/config.yaml is used when present.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".euclid"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Batch.Workers == 0 {
		cfg.Batch.Workers = DetectWorkers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DetectWorkers returns the number of logical CPUs
func DetectWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Type {
	case "memory", "sqlite":
	case "postgres", "postgresql":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.type %q is not one of memory, sqlite, postgres", c.Store.Type))
	}

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address must not be empty"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	if c.Server.TLSClientCA != "" && c.Server.TLSCert == "" {
		errs = append(errs, errors.New("server.tls_client_ca requires server.tls_cert"))
	}
	if (c.Client.CertFile == "") != (c.Client.KeyFile == "") {
		errs = append(errs, errors.New("client.cert_file and client.key_file must be set together"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, errors.New("rate_limit.rps and rate_limit.burst must be positive when enabled"))
	}
	if c.Batch.Workers < 0 {
		errs = append(errs, errors.New("batch.workers must not be negative"))
	}
	if c.Batch.MaxPairs < 1 {
		errs = append(errs, errors.New("batch.max_pairs must be at least 1"))
	}
	if c.Retention.Enabled && (c.Retention.MaxAge <= 0 || c.Retention.Interval <= 0) {
		errs = append(errs, errors.New("retention.max_age and retention.interval must be positive when enabled"))
	}
	if c.Client.MaxRetries < 0 {
		errs = append(errs, errors.New("client.max_retries must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// StoreConfig converts to the store package's configuration
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:            c.Store.Type,
		Path:            c.Store.Path,
		DSN:             c.Store.DSN,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime,
	}
}

// TracingConfig converts to the tracing package's configuration
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    c.Tracing.Environment,
		OTLPEndpoint:   c.Tracing.Endpoint,
		Enabled:        c.Tracing.Enabled,
	}
}

// RetryConfig builds the client retry policy
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = c.Client.MaxRetries
	return cfg
}

// CleanupConfig converts to the retention manager's configuration
func (c *Config) CleanupConfig() cleanup.Config {
	return cleanup.Config{
		Enabled:        c.Retention.Enabled,
		MaxAge:         c.Retention.MaxAge,
		Interval:       c.Retention.Interval,
		VacuumInterval: c.Retention.VacuumInterval,
	}
}

// ServerTLS returns the API listener's TLS settings, or nil for plain HTTP
func (c *Config) ServerTLS() (*tls.Config, error) {
	if c.Server.TLSCert == "" {
		return nil, nil
	}
	return tlsconfig.Server(c.Server.TLSCert, c.Server.TLSKey, c.Server.TLSClientCA)
}

// ClientTLS returns the client's TLS settings, or nil when none are configured
func (c *Config) ClientTLS() (*tls.Config, error) {
	if c.Client.CAFile == "" && c.Client.CertFile == "" {
		return nil, nil
	}
	return tlsconfig.Client(c.Client.CAFile, c.Client.CertFile, c.Client.KeyFile)
}

// NewLogger builds the logger described by the log section
func (c *Config) NewLogger(component string) (*logging.Logger, error) {
	level := logging.ParseLevel(c.Log.Level)
	if c.Log.File {
		return logging.NewFileLogger(component, level, c.Log.JSON)
	}
	return logging.NewLogger(level, c.Log.JSON).WithComponent(component), nil
}
