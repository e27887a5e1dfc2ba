// Package config provides configuration management for Taskloop.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Taskloop.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Events     EventsConfig     `mapstructure:"events"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Recurrence RecurrenceConfig `mapstructure:"recurrence"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int      `mapstructure:"writeTimeout"` // in seconds
	CORSOrigins  []string `mapstructure:"corsOrigins"`
}

// DatabaseConfig holds database connection configuration.
// Driver selects between sqlite (file-backed, default) and postgres.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"` // sqlite file path
	URL      string `mapstructure:"url"`  // full postgres DSN; overrides the individual fields
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Name          string `mapstructure:"name"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig controls event publication.
// When disabled, completion and reminder events are dropped and the
// background workers stay idle.
type EventsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	OutboxInterval int  `mapstructure:"outboxInterval"` // in seconds
	OutboxBatch    int  `mapstructure:"outboxBatch"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwtSecret"`
	TokenDuration int    `mapstructure:"tokenDuration"` // in seconds
	BcryptCost    int    `mapstructure:"bcryptCost"`
}

// SchedulerConfig holds the reminder sweep configuration.
type SchedulerConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Tick      int  `mapstructure:"tick"` // in seconds
	BatchSize int  `mapstructure:"batchSize"`
}

// AgentConfig holds the chat agent configuration.
type AgentConfig struct {
	Model             string `mapstructure:"model"`
	APIKey            string `mapstructure:"apiKey"`
	BaseURL           string `mapstructure:"baseUrl"`
	MaxToolIterations int    `mapstructure:"maxToolIterations"`
	MaxInflight       int    `mapstructure:"maxInflight"`
	TurnTimeout       int    `mapstructure:"turnTimeout"` // in seconds
}

// RecurrenceConfig holds the recurrence worker configuration.
type RecurrenceConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	QueueGroup string         `mapstructure:"queueGroup"`
	TaskAPIURL string         `mapstructure:"taskApiUrl"`
	Database   DatabaseConfig `mapstructure:"database"`
}

// NotifierConfig holds the notification worker configuration.
type NotifierConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	QueueGroup    string         `mapstructure:"queueGroup"`
	TemplatesPath string         `mapstructure:"templatesPath"`
	SMTP          SMTPConfig     `mapstructure:"smtp"`
	Database      DatabaseConfig `mapstructure:"database"`
}

// SMTPConfig holds SMTP transport settings.
// An empty host selects the log-only sender.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// MCPConfig holds the MCP tool server configuration.
type MCPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Port     int    `mapstructure:"port"`
	APIURL   string `mapstructure:"apiUrl"`
	APIToken string `mapstructure:"apiToken"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TokenDurationTime returns the token duration as a time.Duration.
func (a *AuthConfig) TokenDurationTime() time.Duration {
	return time.Duration(a.TokenDuration) * time.Second
}

// TickDuration returns the sweep period as a time.Duration.
func (s *SchedulerConfig) TickDuration() time.Duration {
	return time.Duration(s.Tick) * time.Second
}

// OutboxIntervalDuration returns the outbox drain cadence as a time.Duration.
func (e *EventsConfig) OutboxIntervalDuration() time.Duration {
	return time.Duration(e.OutboxInterval) * time.Second
}

// TurnTimeoutDuration returns the chat turn deadline as a time.Duration.
func (a *AgentConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(a.TurnTimeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("TASKLOOP_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15)
	v.SetDefault("server.writeTimeout", 15)
	v.SetDefault("server.corsOrigins", []string{"*"})

	// Database defaults - sqlite file in the working directory
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./taskloop.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "taskloop")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "taskloop")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "taskloop")
	v.SetDefault("nats.maxReconnects", 10)

	// Events defaults
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.outboxInterval", 2)
	v.SetDefault("events.outboxBatch", 100)

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenDuration", 86400) // 24 hours
	v.SetDefault("auth.bcryptCost", 0)        // 0 means bcrypt.DefaultCost

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", 60)
	v.SetDefault("scheduler.batchSize", 200)

	// Agent defaults
	v.SetDefault("agent.model", "gpt-4o")
	v.SetDefault("agent.apiKey", "")
	v.SetDefault("agent.baseUrl", "")
	v.SetDefault("agent.maxToolIterations", 8)
	v.SetDefault("agent.maxInflight", 4)
	v.SetDefault("agent.turnTimeout", 90)

	// Recurrence worker defaults
	v.SetDefault("recurrence.enabled", true)
	v.SetDefault("recurrence.queueGroup", "recurrence-workers")
	v.SetDefault("recurrence.taskApiUrl", "http://localhost:8080")
	v.SetDefault("recurrence.database.driver", "sqlite")
	v.SetDefault("recurrence.database.path", "./taskloop-recurrence.db")

	// Notifier worker defaults
	v.SetDefault("notifier.enabled", true)
	v.SetDefault("notifier.queueGroup", "notification-workers")
	v.SetDefault("notifier.templatesPath", "")
	v.SetDefault("notifier.smtp.host", "")
	v.SetDefault("notifier.smtp.port", 587)
	v.SetDefault("notifier.smtp.username", "")
	v.SetDefault("notifier.smtp.password", "")
	v.SetDefault("notifier.smtp.from", "reminders@taskloop.local")
	v.SetDefault("notifier.database.driver", "sqlite")
	v.SetDefault("notifier.database.path", "./taskloop-notifier.db")

	// MCP defaults
	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.port", 8090)
	v.SetDefault("mcp.apiUrl", "http://localhost:8080")
	v.SetDefault("mcp.apiToken", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix TASKLOOP_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/taskloop/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("TASKLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("server.readTimeout", "TASKLOOP_SERVER_READ_TIMEOUT")
	_ = v.BindEnv("server.writeTimeout", "TASKLOOP_SERVER_WRITE_TIMEOUT")
	_ = v.BindEnv("server.corsOrigins", "TASKLOOP_SERVER_CORS_ORIGINS")
	_ = v.BindEnv("database.dbName", "TASKLOOP_DATABASE_DB_NAME")
	_ = v.BindEnv("database.sslMode", "TASKLOOP_DATABASE_SSL_MODE")
	_ = v.BindEnv("database.maxConns", "TASKLOOP_DATABASE_MAX_CONNS")
	_ = v.BindEnv("database.minConns", "TASKLOOP_DATABASE_MIN_CONNS")
	_ = v.BindEnv("nats.maxReconnects", "TASKLOOP_NATS_MAX_RECONNECTS")
	_ = v.BindEnv("events.outboxInterval", "TASKLOOP_EVENTS_OUTBOX_INTERVAL")
	_ = v.BindEnv("events.outboxBatch", "TASKLOOP_EVENTS_OUTBOX_BATCH")
	_ = v.BindEnv("auth.jwtSecret", "TASKLOOP_AUTH_JWT_SECRET")
	_ = v.BindEnv("auth.tokenDuration", "TASKLOOP_AUTH_TOKEN_DURATION")
	_ = v.BindEnv("auth.bcryptCost", "TASKLOOP_AUTH_BCRYPT_COST")
	_ = v.BindEnv("scheduler.batchSize", "TASKLOOP_SCHEDULER_BATCH_SIZE")
	_ = v.BindEnv("agent.apiKey", "TASKLOOP_AGENT_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("agent.baseUrl", "TASKLOOP_AGENT_BASE_URL")
	_ = v.BindEnv("agent.maxToolIterations", "TASKLOOP_AGENT_MAX_TOOL_ITERATIONS")
	_ = v.BindEnv("agent.maxInflight", "TASKLOOP_AGENT_MAX_INFLIGHT")
	_ = v.BindEnv("agent.turnTimeout", "TASKLOOP_AGENT_TURN_TIMEOUT")
	_ = v.BindEnv("recurrence.queueGroup", "TASKLOOP_RECURRENCE_QUEUE_GROUP")
	_ = v.BindEnv("recurrence.taskApiUrl", "TASKLOOP_RECURRENCE_TASK_API_URL")
	_ = v.BindEnv("notifier.queueGroup", "TASKLOOP_NOTIFIER_QUEUE_GROUP")
	_ = v.BindEnv("notifier.templatesPath", "TASKLOOP_NOTIFIER_TEMPLATES_PATH")
	_ = v.BindEnv("mcp.apiUrl", "TASKLOOP_MCP_API_URL")
	_ = v.BindEnv("mcp.apiToken", "TASKLOOP_MCP_API_TOKEN")
	_ = v.BindEnv("logging.outputPath", "TASKLOOP_LOGGING_OUTPUT_PATH")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/taskloop/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Database validation
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required when database.driver is sqlite")
		}
	case "postgres":
		if cfg.Database.URL == "" && cfg.Database.Host == "" {
			errs = append(errs, "database.url or database.host is required when database.driver is postgres")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	// Auth validation - generate random secret if not set (dev mode)
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = generateDevSecret()
	}
	if cfg.Auth.TokenDuration <= 0 {
		errs = append(errs, "auth.tokenDuration must be positive")
	}
	if cfg.Auth.BcryptCost != 0 && (cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31) {
		errs = append(errs, "auth.bcryptCost must be 0 (default) or between 4 and 31")
	}

	// Scheduler validation
	if cfg.Scheduler.Tick <= 0 {
		errs = append(errs, "scheduler.tick must be positive")
	}
	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, "scheduler.batchSize must be positive")
	}

	// Events validation
	if cfg.Events.OutboxInterval <= 0 {
		errs = append(errs, "events.outboxInterval must be positive")
	}
	if cfg.Events.OutboxBatch <= 0 {
		errs = append(errs, "events.outboxBatch must be positive")
	}

	// Agent validation
	if cfg.Agent.MaxToolIterations <= 0 {
		errs = append(errs, "agent.maxToolIterations must be positive")
	}
	if cfg.Agent.MaxInflight <= 0 {
		errs = append(errs, "agent.maxInflight must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// IsDevSecret reports whether the JWT secret was generated rather than configured.
func (a *AuthConfig) IsDevSecret() bool {
	return strings.HasPrefix(a.JWTSecret, "dev-secret-")
}

// generateDevSecret generates a random secret for development mode.
func generateDevSecret() string {
	// Use a fixed dev secret with a warning prefix
	// In production, users should set TASKLOOP_AUTH_JWT_SECRET
	return "dev-secret-change-in-production-" + fmt.Sprintf("%d", time.Now().UnixNano())
}
