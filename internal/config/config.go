// Package config loads the service configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Detector   DetectorConfig   `yaml:"detector"`
	Explorer   ExplorerConfig   `yaml:"explorer"`
	Minio      MinioConfig      `yaml:"minio"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Auth       AuthConfig       `yaml:"auth"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

type ServerConfig struct {
	Port            int `yaml:"port"`
	ShutdownSeconds int `yaml:"shutdownSeconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql, postgres or memory
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type DetectorConfig struct {
	Provider       string `yaml:"provider"` // http or openai
	URL            string `yaml:"url"`
	APIKey         string `yaml:"apiKey"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type ExplorerConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	APIKey         string `yaml:"apiKey"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
}

type RateLimitConfig struct {
	WindowSeconds int `yaml:"windowSeconds"`
	MaxRequests   int `yaml:"maxRequests"`
}

type AuthConfig struct {
	// APIKeys maps owner id -> API key.
	APIKeys map[string]string `yaml:"apiKeys"`
}

type ReconcilerConfig struct {
	IntervalSeconds   int `yaml:"intervalSeconds"`
	StaleAfterMinutes int `yaml:"staleAfterMinutes"`
}

// Load reads the YAML file at path, applies defaults and env overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, ShutdownSeconds: 15},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver:  "memory",
			Host:    "localhost",
			Port:    3306,
			SSLMode: "disable",
		},
		Detector:   DetectorConfig{Provider: "http", TimeoutSeconds: 30},
		Explorer:   ExplorerConfig{TimeoutSeconds: 10},
		Minio:      MinioConfig{BucketName: "scan-reports", Region: "us-east-1"},
		RateLimit:  RateLimitConfig{WindowSeconds: 60, MaxRequests: 60},
		Reconciler: ReconcilerConfig{IntervalSeconds: 60, StaleAfterMinutes: 15},
	}
}

// Secrets can come from the environment instead of the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DETECTOR_API_KEY"); v != "" {
		cfg.Detector.APIKey = v
	}
	if v := os.Getenv("EXPLORER_API_KEY"); v != "" {
		cfg.Explorer.APIKey = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Minio.SecretKey = v
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Detector.Provider {
	case "http", "openai":
	default:
		return fmt.Errorf("unknown detector provider %q", c.Detector.Provider)
	}
	if c.Detector.Provider == "http" && c.Detector.URL == "" {
		return fmt.Errorf("detector.url is required for the http provider")
	}
	if c.Detector.Provider == "openai" && c.Detector.APIKey == "" {
		return fmt.Errorf("detector.apiKey is required for the openai provider")
	}
	if len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.apiKeys must define at least one key")
	}
	if c.RateLimit.WindowSeconds <= 0 || c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rateLimit window and max must be positive")
	}
	return nil
}

func (c *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

func (c *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c *DetectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *ExplorerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c *ReconcilerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *ReconcilerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}
