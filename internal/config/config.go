package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Security      SecurityConfig
	Cache         CacheConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers     []string
	OrderTopic  string
	EventsTopic string
}

type ElasticsearchConfig struct {
	URL       string
	Username  string
	Password  string
	ItemIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// AuthConfig carries the token signing material and claim constants.
type AuthConfig struct {
	SecretKey         string
	RotationSecretKey string
	Issuer            string
	Audience          string
	AccessTokenTTL    time.Duration
	MaxTokenAge       time.Duration
}

// RateLimitRule maps an endpoint path prefix to a fixed-window limit.
type RateLimitRule struct {
	Prefix      string
	MaxRequests int
	Window      time.Duration
}

type RateLimitConfig struct {
	Enabled        bool
	DefaultMax     int
	DefaultWindow  time.Duration
	Rules          []RateLimitRule
	StoreTimeout   time.Duration
	StoreCooldown  time.Duration
	SweepInterval  time.Duration
	EntryRetention time.Duration
}

type SecurityConfig struct {
	MaxFailedAttempts int
	AttemptWindow     time.Duration
	LockoutDuration   time.Duration
}

type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Known placeholder fragments that must never appear in a deployed secret.
var placeholderSecrets = []string{"default", "your-secret", "your-super-secret"}

// Load reads configuration from the environment (optionally seeded from .env)
// and validates the fail-fast invariants. It returns an error rather than
// panicking so main can log and exit cleanly.
func Load() (*Config, error) {
	// .env is optional; real deployments inject env vars directly.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvInt("SERVER_PORT", 8000),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", "127.0.0.1:9042"),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "mig_catalog"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", "localhost:9092"),
			OrderTopic:  getEnv("KAFKA_ORDER_TOPIC", "catalog.orders"),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "catalog.security-events"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:       getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
			ItemIndex: getEnv("ELASTICSEARCH_ITEM_INDEX", "catalog-items"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "mig_catalog"),
		},
		Auth: AuthConfig{
			SecretKey:         getEnv("SECRET_KEY", ""),
			RotationSecretKey: getEnv("ROTATION_SECRET_KEY", ""),
			Issuer:            getEnv("TOKEN_ISSUER", "mig-catalog-api"),
			Audience:          getEnv("TOKEN_AUDIENCE", "mig-catalog-users"),
			AccessTokenTTL:    getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
			MaxTokenAge:       getEnvDuration("MAX_TOKEN_AGE", time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
			DefaultMax:    getEnvInt("RATE_LIMIT_DEFAULT", 100),
			DefaultWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			Rules: []RateLimitRule{
				{Prefix: "/api/v1/auth/login", MaxRequests: 5, Window: time.Minute},
				{Prefix: "/api/v1/auth/register", MaxRequests: 3, Window: 5 * time.Minute},
				{Prefix: "/api/v1/users", MaxRequests: 100, Window: time.Minute},
				{Prefix: "/api/v1/items", MaxRequests: 200, Window: time.Minute},
				{Prefix: "/api/v1/orders", MaxRequests: 50, Window: time.Minute},
				{Prefix: "/api/v1/articles", MaxRequests: 100, Window: time.Minute},
			},
			StoreTimeout:   getEnvDuration("RATE_LIMIT_STORE_TIMEOUT", 2*time.Second),
			StoreCooldown:  getEnvDuration("RATE_LIMIT_STORE_COOLDOWN", 30*time.Second),
			SweepInterval:  5 * time.Minute,
			EntryRetention: time.Hour,
		},
		Security: SecurityConfig{
			MaxFailedAttempts: getEnvInt("SECURITY_MAX_FAILED_ATTEMPTS", 10),
			AttemptWindow:     getEnvDuration("SECURITY_ATTEMPT_WINDOW", time.Hour),
			LockoutDuration:   getEnvDuration("SECURITY_LOCKOUT_DURATION", 15*time.Minute),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_TTL", time.Hour),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "us-east-1"),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("USER_BUCKETS", 64),
			EventBuckets: getEnvInt("EVENT_BUCKETS", 16),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := ValidateSecretKey(c.Auth.SecretKey); err != nil {
		return err
	}

	if c.IsProduction() {
		if c.Auth.RotationSecretKey == "" {
			return fmt.Errorf("ROTATION_SECRET_KEY must be set in production")
		}
		if strings.Contains(c.Redis.URL, "localhost") {
			return fmt.Errorf("REDIS_URL must not point at localhost in production")
		}
		for _, origin := range c.Server.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("ALLOWED_ORIGINS must not contain wildcards in production")
			}
		}
	}

	return nil
}

// ValidateSecretKey enforces the startup invariant on token signing material:
// present, at least 64 characters, and not a known placeholder.
func ValidateSecretKey(key string) error {
	if key == "" {
		return fmt.Errorf("SECRET_KEY must be set in all environments")
	}
	if len(key) < 64 {
		return fmt.Errorf("SECRET_KEY must be at least 64 characters long")
	}
	lower := strings.ToLower(key)
	for _, placeholder := range placeholderSecrets {
		if strings.Contains(lower, placeholder) {
			return fmt.Errorf("SECRET_KEY must be changed from default value")
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
