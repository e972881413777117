package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageMySQL    = "mysql"
)

// Lock backends
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Logging
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	// Storage configuration
	StorageDriver string      `yaml:"storage_driver"`
	DatabaseURL   string      `yaml:"database_url"`
	MySQL         MySQLConfig `yaml:"mysql"`

	// Per-account locking
	LockBackend   string        `yaml:"lock_backend"`
	LockExpiry    time.Duration `yaml:"lock_expiry"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`

	// Event publishing; disabled when no brokers are set
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	// API keys as bcrypt hashes bound to roles
	APIKeys []APIKey `yaml:"api_keys"`

	CommitTimeout  time.Duration `yaml:"commit_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// MySQLConfig holds connection settings for the mysql storage driver.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// APIKey binds a bcrypt hash of a key to a role.
type APIKey struct {
	Role string `yaml:"role"`
	Hash string `yaml:"hash"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		Env:            "development",
		AllowedOrigins: []string{"http://localhost:3000"},
		StorageDriver:  StorageMemory,
		MySQL: MySQLConfig{
			Host: "localhost",
			Port: 3306,
			User: "root",
		},
		LockBackend:    LockLocal,
		LockExpiry:     8 * time.Second,
		RedisURL:       "localhost:6379",
		KafkaTopic:     "ledger.events",
		CommitTimeout:  5 * time.Second,
		RateLimitRPS:   100,
		RateLimitBurst: 20,
	}
}

// Load reads an optional .env file, an optional YAML file named by
// CONFIG_FILE, then environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom is Load without the .env step, reading yamlPath when non-empty.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)
	c.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.StorageDriver = getEnv("STORAGE_DRIVER", c.StorageDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.MySQL.Host = getEnv("MYSQL_HOST", c.MySQL.Host)
	c.MySQL.Port = getEnvAsInt("MYSQL_PORT", c.MySQL.Port)
	c.MySQL.User = getEnv("MYSQL_USER", c.MySQL.User)
	c.MySQL.Password = getEnv("MYSQL_PASSWORD", c.MySQL.Password)
	c.MySQL.Database = getEnv("MYSQL_DATABASE", c.MySQL.Database)

	c.LockBackend = getEnv("LOCK_BACKEND", c.LockBackend)
	c.LockExpiry = getEnvAsDuration("LOCK_EXPIRY", c.LockExpiry)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)

	c.KafkaBrokers = getEnvAsList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)

	if raw := os.Getenv("API_KEYS"); raw != "" {
		keys, err := ParseAPIKeys(raw)
		if err != nil {
			return err
		}
		c.APIKeys = keys
	}

	c.CommitTimeout = getEnvAsDuration("COMMIT_TIMEOUT", c.CommitTimeout)
	c.RateLimitRPS = getEnvAsFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	return nil
}

// ParseAPIKeys parses "role:hash,role:hash". bcrypt hashes contain
// neither ',' nor ':' so no quoting is needed.
func ParseAPIKeys(raw string) ([]APIKey, error) {
	var keys []APIKey
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		role, hash, ok := strings.Cut(item, ":")
		if !ok || role == "" || hash == "" {
			return nil, fmt.Errorf("API_KEYS entry %q must be role:hash", item)
		}
		keys = append(keys, APIKey{Role: role, Hash: hash})
	}
	return keys, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	case StorageMySQL:
		if c.MySQL.Database == "" {
			return fmt.Errorf("MYSQL_DATABASE is required for the mysql storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	if c.LockBackend == LockRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis lock backend")
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if len(c.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS is required")
	}

	if c.CommitTimeout <= 0 {
		return fmt.Errorf("COMMIT_TIMEOUT must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
