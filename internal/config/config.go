package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Activity   ActivityConfig   `yaml:"activity"`
	Seed       SeedConfig       `yaml:"seed"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	// HeaderUserID carries the caller id resolved by the upstream auth gateway.
	HeaderUserID string `yaml:"header_user_id"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// IsProduction reports whether internal error details must be hidden from clients.
func (a AppConfig) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(a.Environment))
	return env == "production" || env == "prod"
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// DispatchConfig bounds the nearby-request search.
type DispatchConfig struct {
	DefaultMaxDistanceKm float64 `yaml:"default_max_distance_km"`
	DefaultPageSize      int     `yaml:"default_page_size"`
	MaxPageSize          int     `yaml:"max_page_size"`
}

type ActivityConfig struct {
	QueueSize       int    `yaml:"queue_size"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryBaseMs     int    `yaml:"retry_base_ms"`
	RetryMaxMs      int    `yaml:"retry_max_ms"`
	StreamKey       string `yaml:"stream_key"`
	StreamMaxLength int64  `yaml:"stream_max_length"`
}

type SeedConfig struct {
	UsersFile string `yaml:"users_file"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Dispatch.DefaultMaxDistanceKm <= 0 {
		return errors.New("dispatch.default_max_distance_km must be positive")
	}
	if c.Dispatch.DefaultPageSize <= 0 || c.Dispatch.MaxPageSize < c.Dispatch.DefaultPageSize {
		return fmt.Errorf("invalid dispatch page sizes: default=%d max=%d",
			c.Dispatch.DefaultPageSize, c.Dispatch.MaxPageSize)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}
	if c.API.GRPC.TLS.Enabled && (c.API.GRPC.TLS.CertFile == "" || c.API.GRPC.TLS.KeyFile == "") {
		return errors.New("grpc tls requires cert_file and key_file")
	}

	return ValidateAPIKeys(c.API.Auth)
}

// ValidateAPIKeys rejects empty and duplicate client keys.
func ValidateAPIKeys(auth APIAuthConfig) error {
	seen := make(map[string]bool)
	for i, k := range auth.APIKeys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key #%d (%s) is empty", i, k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client %q", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "roadassist"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.HeaderUserID == "" {
		c.API.HeaderUserID = "X-User-ID"
	}
	if c.Database.BusyTimeoutMs == 0 {
		c.Database.BusyTimeoutMs = 5000
	}

	if c.Dispatch.DefaultMaxDistanceKm == 0 {
		c.Dispatch.DefaultMaxDistanceKm = 50
	}
	if c.Dispatch.DefaultPageSize == 0 {
		c.Dispatch.DefaultPageSize = 10
	}
	if c.Dispatch.MaxPageSize == 0 {
		c.Dispatch.MaxPageSize = 100
	}

	if c.Activity.QueueSize == 0 {
		c.Activity.QueueSize = 256
	}
	if c.Activity.MaxRetries == 0 {
		c.Activity.MaxRetries = 5
	}
	if c.Activity.RetryBaseMs == 0 {
		c.Activity.RetryBaseMs = 200
	}
	if c.Activity.RetryMaxMs == 0 {
		c.Activity.RetryMaxMs = 5000
	}
	if c.Activity.StreamKey == "" {
		c.Activity.StreamKey = "roadassist:activity"
	}
	if c.Activity.StreamMaxLength == 0 {
		c.Activity.StreamMaxLength = 10000
	}

	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
}
