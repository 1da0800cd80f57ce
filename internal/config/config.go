// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level proxy configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig holds settings for the Ollama instance requests are forwarded to.
type UpstreamConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"` // model generation is slow
	HealthTimeout   time.Duration `yaml:"health_timeout"`
}

// URL returns the upstream base URL.
func (u UpstreamConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", u.Host, u.Port)
}

// CacheConfig holds response cache settings. When Redis.Host is empty the
// proxy falls back to an in-process cache; when Enabled is false no caching
// happens at all.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"` // in-process cache only
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis backend settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns the host:port address of the Redis backend, or "" when unset.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	// KeyFile is a line-delimited file of API keys, re-read on refresh.
	KeyFile string `yaml:"key_file"`
	// Salt for key hashing. When supplied, the key file is expected to
	// contain pre-salted hashes; when absent a random salt is generated
	// and the key file is treated as raw keys.
	Salt string `yaml:"salt"`
	// RefreshInterval is how long a loaded key set is trusted before a
	// verify call triggers a re-read. Clamped to a 2s floor.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// AlreadySalted is derived from whether Salt was supplied explicitly.
	AlreadySalted bool `yaml:"-"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    330 * time.Second, // must outlast the upstream generate timeout
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			Host:            "ollama",
			Port:            11434,
			GenerateTimeout: 300 * time.Second,
			HealthTimeout:   5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
			MaxSize: 10_000,
			Redis: RedisConfig{
				Host: "redis",
				Port: 6379,
			},
		},
		Auth: AuthConfig{
			KeyFile:         "/api_keys.txt",
			RefreshInterval: 10 * time.Second,
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables
// and deriving the salt policy. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = expandEnv(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// An explicitly supplied salt means the key file holds pre-salted
	// hashes. Otherwise generate a throwaway salt for this process and
	// treat file entries as raw keys.
	if cfg.Auth.Salt != "" {
		cfg.Auth.AlreadySalted = true
	} else {
		salt, err := randomSalt()
		if err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		cfg.Auth.Salt = salt
	}

	return cfg, nil
}

// randomSalt generates a process-local salt. The "DEF" prefix marks it as a
// generated default in logs and debugging sessions.
func randomSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "DEF" + base64.RawURLEncoding.EncodeToString(buf), nil
}
