package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cashback  CashbackConfig  `yaml:"cashback"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	GRPCPort               int    `yaml:"grpc_port"` // 0 disables the health server
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	User                   string `yaml:"user"`
	Password               string `yaml:"password"`
	Database               string `yaml:"database"`
	SSLMode                string `yaml:"ssl_mode"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	MigrateOnStart         bool   `yaml:"migrate_on_start"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret             string `yaml:"secret"`
	Issuer             string `yaml:"issuer"`
	AccessTokenExpiry  int    `yaml:"access_token_expiry_minutes"`
	ServiceTokenExpiry int    `yaml:"service_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `yaml:"format"` // "json" or "text"
	File       string `yaml:"file"`   // optional, rotated
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RedisConfig backs the idempotency cache. An empty Addr keeps it in memory.
type RedisConfig struct {
	Addr                  string `yaml:"addr"`
	Password              string `yaml:"password"`
	DB                    int    `yaml:"db"`
	IdempotencyTTLMinutes int    `yaml:"idempotency_ttl_minutes"`
}

// KafkaConfig contains sale consumer and ledger event publisher settings.
// Without brokers both are disabled.
type KafkaConfig struct {
	Brokers             []string `yaml:"brokers"`
	SalesTopic          string   `yaml:"sales_topic"`
	EventsTopic         string   `yaml:"events_topic"`
	GroupID             string   `yaml:"group_id"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireCashback string `yaml:"expire_cashback"`
}

// CashbackConfig contains ledger tuning knobs
type CashbackConfig struct {
	ExpireBatchSize int `yaml:"expire_batch_size"`
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.GRPCPort)
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Kafka
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Kafka.Brokers = splitList(val)
	}
	if val := os.Getenv("KAFKA_SALES_TOPIC"); val != "" {
		c.Kafka.SalesTopic = val
	}
	if val := os.Getenv("KAFKA_EVENTS_TOPIC"); val != "" {
		c.Kafka.EventsTopic = val
	}
	if val := os.Getenv("KAFKA_GROUP_ID"); val != "" {
		c.Kafka.GroupID = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
	if val := os.Getenv("LOG_FILE"); val != "" {
		c.Log.File = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		return fmt.Errorf("grpc port must differ from server port")
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Kafka validation
	if len(c.Kafka.Brokers) > 0 && c.Kafka.SalesTopic == c.Kafka.EventsTopic && c.Kafka.SalesTopic != "" {
		return fmt.Errorf("kafka sales and events topics must differ")
	}

	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 15
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 20
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetimeMinutes == 0 {
		c.Database.ConnMaxLifetimeMinutes = 30
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "cashback-ledger"
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 15
	}
	if c.JWT.ServiceTokenExpiry == 0 {
		c.JWT.ServiceTokenExpiry = 60
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Redis.IdempotencyTTLMinutes == 0 {
		c.Redis.IdempotencyTTLMinutes = 24 * 60
	}
	if c.Kafka.SalesTopic == "" {
		c.Kafka.SalesTopic = "sales"
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "cashback-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "cashback-ledger"
	}
	if c.Kafka.WriteTimeoutSeconds == 0 {
		c.Kafka.WriteTimeoutSeconds = 5
	}

	// Scheduler defaults
	if c.Scheduler.ExpireCashback == "" {
		c.Scheduler.ExpireCashback = "0 0 3 * * *" // 3 AM UTC
	}

	// Cashback defaults
	if c.Cashback.ExpireBatchSize == 0 {
		c.Cashback.ExpireBatchSize = 500
	}
	if c.Cashback.DefaultPageSize == 0 {
		c.Cashback.DefaultPageSize = 20
	}
	if c.Cashback.MaxPageSize == 0 {
		c.Cashback.MaxPageSize = 100
	}
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the health server listen address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Redis.IdempotencyTTLMinutes) * time.Minute
}

func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
