package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the viewer and dev backend configuration.
// Values come from an optional YAML file (CONFIG_FILE) and are overridden by the environment.
type Config struct {
	Environment string `yaml:"environment"`

	Server struct {
		Port        int      `yaml:"port"`
		Host        string   `yaml:"host"`
		CORSOrigins []string `yaml:"cors_origins"` // empty allows any origin
	} `yaml:"server"`

	Backend struct {
		BaseURL string `yaml:"base_url"`
		Timeout int    `yaml:"timeout_seconds"` // 0 means no timeout
		Port    int    `yaml:"port"`            // listen port of the dev backend
	} `yaml:"backend"`

	Auth struct {
		Enabled bool `yaml:"enabled"`
		// seeded by the dev backend when the password is set
		AdminUsername string `yaml:"admin_username"`
		AdminEmail    string `yaml:"admin_email"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"auth"`

	Overlay struct {
		Demo     bool   `yaml:"demo"`
		DemoFile string `yaml:"demo_file"`
	} `yaml:"overlay"`

	Session struct {
		Secret  string `yaml:"secret"`
		IdleTTL int    `yaml:"idle_ttl_minutes"`
	} `yaml:"session"`

	Upload struct {
		MaxImageMB int `yaml:"max_image_mb"`
	} `yaml:"upload"`

	History struct {
		Limit int `yaml:"limit"`
	} `yaml:"history"`

	RateLimit struct {
		AuthPerMinute int `yaml:"auth_per_minute"`
	} `yaml:"rate_limit"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	// Database and JWT are only used by the dev backend
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	JWT struct {
		Secret     string `yaml:"secret"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"jwt"`

	GRPC struct {
		Port int `yaml:"port"`
	} `yaml:"grpc"`

	StaticDir string `yaml:"static_dir"`
}

// Development secrets; production refuses to start with them
const (
	defaultSessionSecret = "change-me-in-production"
	defaultJWTSecret     = "dev-secret"
)

// Defaults returns the built-in configuration
func Defaults() *Config {
	cfg := &Config{Environment: "development"}
	cfg.Server.Port = 8080
	cfg.Server.Host = "0.0.0.0"
	cfg.Backend.BaseURL = "http://localhost:8000/api"
	cfg.Backend.Port = 8000
	cfg.Auth.Enabled = true
	cfg.Auth.AdminUsername = "admin"
	cfg.Auth.AdminEmail = "admin@example.com"
	cfg.Overlay.Demo = false
	cfg.Session.Secret = defaultSessionSecret
	cfg.Session.IdleTTL = 720
	cfg.Upload.MaxImageMB = 20
	cfg.History.Limit = 100
	cfg.RateLimit.AuthPerMinute = 10
	cfg.Logging.Level = "info"
	cfg.Database.DSN = "host=localhost user=postgres password=postgres dbname=wristsight port=5432 sslmode=disable TimeZone=UTC"
	cfg.JWT.Secret = defaultJWTSecret
	cfg.JWT.TTLMinutes = 30
	cfg.GRPC.Port = 9090
	cfg.StaticDir = "static"
	return cfg
}

// LoadConfig reads CONFIG_FILE when set, then applies environment overrides
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	// Server
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.Server.CORSOrigins)

	// Backend API
	cfg.Backend.BaseURL = getEnv("API_BASE_URL", cfg.Backend.BaseURL)
	cfg.Backend.Timeout = getEnvInt("API_TIMEOUT_SECONDS", cfg.Backend.Timeout)
	cfg.Backend.Port = getEnvInt("BACKEND_PORT", cfg.Backend.Port)

	cfg.Auth.Enabled = getEnvBool("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.AdminUsername = getEnv("ADMIN_USERNAME", cfg.Auth.AdminUsername)
	cfg.Auth.AdminEmail = getEnv("ADMIN_EMAIL", cfg.Auth.AdminEmail)
	cfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.Auth.AdminPassword)
	cfg.Overlay.Demo = getEnvBool("DEMO_OVERLAY", cfg.Overlay.Demo)
	cfg.Overlay.DemoFile = getEnv("DEMO_OVERLAY_FILE", cfg.Overlay.DemoFile)

	cfg.Session.Secret = getEnv("SESSION_SECRET", cfg.Session.Secret)
	cfg.Session.IdleTTL = getEnvInt("SESSION_IDLE_TTL_MINUTES", cfg.Session.IdleTTL)
	cfg.Upload.MaxImageMB = getEnvInt("UPLOAD_MAX_IMAGE_MB", cfg.Upload.MaxImageMB)
	cfg.History.Limit = getEnvInt("HISTORY_LIMIT", cfg.History.Limit)
	cfg.RateLimit.AuthPerMinute = getEnvInt("AUTH_RATE_PER_MINUTE", cfg.RateLimit.AuthPerMinute)

	// Logging
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)

	// Dev backend
	cfg.Database.DSN = getEnv("DATABASE_DSN", cfg.Database.DSN)
	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.TTLMinutes = getEnvInt("JWT_TTL_MINUTES", cfg.JWT.TTLMinutes)
	cfg.GRPC.Port = getEnvInt("GRPC_PORT", cfg.GRPC.Port)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)

	if cfg.History.Limit < 1 || cfg.History.Limit > 100 {
		return nil, fmt.Errorf("history limit must be between 1 and 100, got %d", cfg.History.Limit)
	}
	if cfg.Backend.Timeout < 0 {
		return nil, fmt.Errorf("API timeout must not be negative, got %d", cfg.Backend.Timeout)
	}
	if cfg.IsProduction() {
		if cfg.Session.Secret == "" || cfg.Session.Secret == defaultSessionSecret {
			return nil, fmt.Errorf("SESSION_SECRET must be set in production")
		}
		if cfg.JWT.Secret == "" || cfg.JWT.Secret == defaultJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
	}
	return cfg, nil
}

// Addr returns host:port for the HTTP listener
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BackendAddr returns host:port for the dev backend listener
func (c *Config) BackendAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Backend.Port)
}

// APITimeout returns the backend request timeout; zero disables it
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv returns the environment variable or the default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or the default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvBool accepts 1/0, true/false, yes/no, on/off
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
